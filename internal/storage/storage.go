// Package storage keeps a short history of relay calls for debugging.
// Response payloads are never stored.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry describes one completed (or failed) call.
type Entry struct {
	ID           string            `json:"id"`
	Route        string            `json:"route,omitempty"`
	CallType     string            `json:"call_type"`
	URL          string            `json:"url"`
	Args         map[string]string `json:"args,omitempty"`
	StatusCode   int               `json:"status_code"`
	Outcome      string            `json:"outcome"`
	ErrorType    string            `json:"error_type,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Failure      string            `json:"failure,omitempty"`
	ElapsedMs    int64             `json:"elapsed_ms"`
	At           time.Time         `json:"at"`
}

// Store records call entries and lists the most recent ones, newest first.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	EntryTTL        time.Duration
	CleanupInterval time.Duration
	MaxEntries      int
}

const (
	defaultEntryTTL        = 24 * time.Hour
	defaultCleanupInterval = time.Hour
	defaultMaxEntries      = 500
)

// NewStore creates the configured journal backend. target is the file path for
// bbolt and the server address for redis.
func NewStore(typ, target string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("bbolt journal requires a path")
		}
		return openBolt(target, opts)
	case "redis":
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("redis journal requires an address")
		}
		return openRedis(target, opts)
	default:
		return nil, fmt.Errorf("unsupported journal type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = defaultEntryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	return opts
}

func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

type noopStore struct{}

func (noopStore) Append(context.Context, Entry) error          { return nil }
func (noopStore) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (noopStore) Close() error                                 { return nil }
