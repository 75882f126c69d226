package thinkup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/samvad-hq/thinkup-relay/pkg/httpclient"
)

const postAPIPath = "api/v1/post.php?"

// Logger defines the logging surface the client relies on.
type Logger interface {
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}

// Diagnostics is the state left behind by the most recent call.
type Diagnostics struct {
	StatusCode int             `json:"status_code"`
	Error      ErrorDescriptor `json:"error"`
	Args       Args            `json:"args"`
	URL        string          `json:"url"`
}

// Client calls the ThinkUp post API rooted at a fixed base URL.
//
// The base URL is used verbatim and is expected to end with a slash
// (for example "http://localhost/thinkup/webapp/"). It is not validated here;
// a bad value surfaces as a transport error on the first call.
type Client struct {
	baseURL    string
	postAPIURL string
	http       httpclient.Client
	log        Logger
	rawQuery   bool

	mu   sync.Mutex
	diag Diagnostics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty transport.
func WithHTTPClient(hc httpclient.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for call outcomes.
func WithLogger(log Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRawQuery writes argument keys and values into the URL without escaping,
// matching what older deployments of the relay sent.
func WithRawQuery() Option {
	return func(c *Client) { c.rawQuery = true }
}

// NewClient creates a client for the ThinkUp instance at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		postAPIURL: baseURL + postAPIPath,
		log:        noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewRestyClient(0, c.log)
	}
	return c
}

// BaseURL returns the base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Call issues one GET for callType with the merged arguments.
//
// API errors (200 with an "error" key) and non-200 statuses are reported through
// Result.Outcome with a nil error. Transport failures wrap ErrTransport and
// undecodable 200 bodies wrap ErrDecode.
func (c *Client) Call(ctx context.Context, callType string, required, optional Args) (Result, error) {
	args := mergeArgs(required, optional)
	url := c.postAPIURL + "type=" + escape(callType, c.rawQuery) + args.encode(c.rawQuery)
	res := Result{CallType: callType, URL: url, Args: args}

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return res, fmt.Errorf("%w: get %s: %w", ErrTransport, callType, err)
	}
	res.StatusCode = resp.StatusCode()
	res.Elapsed = resp.Duration()
	c.recordResponse(res)

	if res.StatusCode != http.StatusOK {
		res.Outcome = OutcomeHTTPError
		c.log.WarnObj("thinkup call failed", "thinkup_http_error", map[string]any{
			"call_type": callType,
			"status":    res.StatusCode,
			"url":       url,
		})
		return res, nil
	}

	body := resp.Body()
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrDecode, callType, err)
	}

	if obj, ok := parsed.(map[string]any); ok {
		if _, failed := obj["error"]; failed {
			desc := ErrorDescriptor{
				Type:    stringField(obj, "type"),
				Message: stringField(obj, "message"),
			}
			c.recordError(desc)
			res.Outcome = OutcomeAPIError
			res.APIError = &desc
			c.log.WarnObj("thinkup api error", "thinkup_api_error", map[string]any{
				"call_type": callType,
				"type":      desc.Type,
				"message":   desc.Message,
			})
			return res, nil
		}
	}

	res.Outcome = OutcomeSuccess
	res.Data = json.RawMessage(body)
	c.log.DebugObj("thinkup call succeeded", "thinkup_call", map[string]any{
		"call_type":  callType,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	})
	return res, nil
}

// recordResponse overwrites status, URL and args. The error descriptor is only
// replaced by recordError, so it keeps describing the last API error.
func (c *Client) recordResponse(res Result) {
	c.mu.Lock()
	c.diag.StatusCode = res.StatusCode
	c.diag.URL = res.URL
	c.diag.Args = res.Args.Clone()
	c.mu.Unlock()
}

func (c *Client) recordError(desc ErrorDescriptor) {
	c.mu.Lock()
	c.diag.Error = desc
	c.mu.Unlock()
}

// Diagnostics returns a snapshot of the state left by the most recent call.
func (c *Client) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.diag
	d.Args = d.Args.Clone()
	return d
}

// LastStatusCode returns the status of the most recent response, or 0 before any.
func (c *Client) LastStatusCode() int { return c.Diagnostics().StatusCode }

// LastError returns the descriptor of the most recent API error.
func (c *Client) LastError() ErrorDescriptor { return c.Diagnostics().Error }

// LastArgs returns the merged arguments of the most recent call.
func (c *Client) LastArgs() Args { return c.Diagnostics().Args }

// LastURL returns the URL of the most recent call.
func (c *Client) LastURL() string { return c.Diagnostics().URL }

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
