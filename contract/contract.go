//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-hub/domain/event"
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

// Conn is one live connection of one user. Enqueue must never block: the
// dispatcher hands the event to a per-connection buffer and a writer goroutine
// drains it towards the wire. A false return means the buffer was full or the
// connection is closing; the event is simply dropped for that connection.
type Conn interface {
	Enqueue(e event.DomainEvent) bool
	Close()
}

// IRegistry is the authoritative in-process map of live connections.
type IRegistry interface {
	Register(userID string, conn Conn) (connID int64, becameOnline bool)
	Unregister(userID string, connID int64) (wentOffline bool)
	ConnectionsFor(userID string) []Conn
	OnlineUserIDs() []string
}

// IDispatcher accepts persisted-state events for best-effort live push.
type IDispatcher interface {
	Dispatch(e event.DomainEvent)
}

// EventSink consumes domain events out of band (indexing, projections).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}
