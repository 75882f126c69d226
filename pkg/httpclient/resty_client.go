package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a RestyClient. A zero timeout means requests never time out
// on their own; the caller's context still applies.
func NewRestyClient(timeout time.Duration, log Logger) *RestyClient {
	c := NewRestyHTTPClient(timeout)
	if log == nil {
		log = noopLogger{}
	}
	c.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.DebugObj("upstream response", "http_response", map[string]any{
			"method":     resp.Request.Method,
			"url":        resp.Request.URL,
			"status":     resp.StatusCode(),
			"elapsed_ms": resp.Time().Milliseconds(),
			"bytes":      len(resp.Body()),
		})
		return nil
	})
	return &RestyClient{client: c}
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
// Retries stay disabled.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetRetryCount(0)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// Get performs an HTTP GET request. Non-2xx statuses are returned as responses, not errors.
func (r *RestyClient) Get(ctx context.Context, url string) (Response, error) {
	resp, err := r.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte            { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int         { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Duration() time.Duration { return r.resp.Time() }
