// Package broker is the message-bus boundary of the relay: a thin NATS
// client plus the dispatch table that routes inbound bus messages to the
// registered topic handlers.
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const reconnectWait = 2 * time.Second

// Connect dials the bus with unlimited reconnects; losing the broker must
// never take the relay down with it.
func Connect(log *slog.Logger, url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("chat-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("Bus disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Bus reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bus connection failed: %w", err)
	}
	log.Info("Bus connected", "url", nc.ConnectedUrl())
	return nc, nil
}

// Publish JSON-encodes a payload and publishes it to a topic.
func Publish(log *slog.Logger, nc *nats.Conn, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	if err := nc.Publish(topic, data); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	log.Debug("Message published", "topic", topic)
	return nil
}

// Drain flushes pending messages and closes the connection, falling back
// to a force close when draining fails.
func Drain(log *slog.Logger, nc *nats.Conn) {
	log.Info("Draining bus connection...")
	if err := nc.Drain(); err != nil {
		log.Error("Error draining bus connection", "error", err)
		nc.Close()
		log.Warn("Bus connection force closed after drain failure")
		return
	}
	log.Info("Bus connection drained")
}
