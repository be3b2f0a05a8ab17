// Command badger_inspect dumps the relay's Badger records as a table for
// local debugging. Read-only: it can run next to a live relay process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, user:)")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "At", "Who", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// msgid: entries only point at primary keys, skip them
			if strings.HasPrefix(key, "msgid:") {
				continue
			}

			err := item.Value(func(value []byte) error {
				kind, at, who, detail := describe(key, value)
				table.Append([]string{shorten(key, 48), kind, at, who, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

// describe decodes a record based on its key prefix.
func describe(key string, value []byte) (kind, at, who, detail string) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var record struct {
			From      string    `json:"from"`
			To        string    `json:"to"`
			Content   string    `json:"content"`
			Read      bool      `json:"read"`
			CreatedAt time.Time `json:"createdAt"`
		}
		if err := json.Unmarshal(value, &record); err != nil {
			return "MSG", "", "", fmt.Sprintf("unreadable: %v", err)
		}
		status := "unread"
		if record.Read {
			status = "read"
		}
		return "MSG", record.CreatedAt.Format("15:04:05"),
			shorten(record.From, 8) + "→" + shorten(record.To, 8),
			fmt.Sprintf("[%s] %s", status, shorten(record.Content, 40))
	case strings.HasPrefix(key, "conv:"):
		var record struct {
			Participants       []string  `json:"participants"`
			LastMessagePreview string    `json:"lastMessagePreview"`
			LastMessageAt      time.Time `json:"lastMessageAt"`
		}
		if err := json.Unmarshal(value, &record); err != nil {
			return "CONV", "", "", fmt.Sprintf("unreadable: %v", err)
		}
		return "CONV", record.LastMessageAt.Format("15:04:05"),
			strings.Join(record.Participants, ", "),
			shorten(record.LastMessagePreview, 40)
	case strings.HasPrefix(key, "user:"):
		var record struct {
			Username string     `json:"username"`
			Name     string     `json:"name"`
			LastSeen *time.Time `json:"lastSeen"`
		}
		if err := json.Unmarshal(value, &record); err != nil {
			return "USER", "", "", fmt.Sprintf("unreadable: %v", err)
		}
		lastSeen := "never"
		if record.LastSeen != nil {
			lastSeen = record.LastSeen.Format("15:04:05")
		}
		return "USER", lastSeen, record.Username, record.Name
	default:
		return "?", "", "", fmt.Sprintf("%d bytes", len(value))
	}
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
