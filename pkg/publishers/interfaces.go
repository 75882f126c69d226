package publishers

import "context"

// Publisher sends events to a downstream sink (SQS, HTTP, Kafka, etc).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// closer is implemented by publishers that hold connections.
type closer interface {
	Close() error
}
