//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Emitter pushes one logical event to the live connections of its target.
// Delivery is best-effort and at-most-once per connection: a slow or gone
// consumer loses the event, nothing is retried.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, payload any)
	Broadcast(ctx context.Context, event string, payload any)
}

// IRegistry tracks which users are currently reachable and on which
// physical connections. A user is online iff its connection set is non-empty.
type IRegistry interface {
	// AddConnection reports true only when the user had zero prior connections.
	AddConnection(userID, connectionID string) bool
	// RemoveConnection reports true only when the removal empties the user's
	// connection set; unknown connections or users are a no-op.
	RemoveConnection(userID, connectionID string) bool
	OnlineUserIDs() []string
	IsOnline(userID string) bool
	Connections(userID string) []string
}
