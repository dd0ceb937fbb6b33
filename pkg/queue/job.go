package queue

import "context"

// Job handles one message type.
type Job interface {
	Name() string
	Type() string
	// Handle receives the payload as json.RawMessage. Returning an error
	// schedules a retry until the retry limit is reached.
	Handle(ctx context.Context, payload interface{}) error
}
