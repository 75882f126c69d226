package httpclient

import (
	"context"
	"time"
)

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
	// Duration is the time between sending the request and receiving the response.
	Duration() time.Duration
}

// Client abstracts GET calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string) (Response, error)
}

// Logger is the logging surface the transport reports to.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) DebugObj(string, string, interface{}) {}
