//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
)

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

// Channel is one live device connection. Push is best-effort and must not
// block the caller; Close is safe to call more than once.
type Channel interface {
	Push(f domain.Frame) error
	Close(code int, reason string)
}

// IRegistry tracks which users are reachable and over which channels.
type IRegistry interface {
	Register(userID string, ch Channel)
	Deregister(userID string, ch Channel)
	ChannelsFor(userID string) []Channel
	OnlineIDs() []string
}

// Verifier resolves an opaque credential into a user identity.
type Verifier interface {
	Verify(token string) (string, error)
}
