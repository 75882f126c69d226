package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samvad-hq/thinkup-relay/internal/config"
	"github.com/samvad-hq/thinkup-relay/internal/logger"
	"github.com/samvad-hq/thinkup-relay/internal/routes"
	"github.com/samvad-hq/thinkup-relay/internal/server"
	"github.com/samvad-hq/thinkup-relay/internal/storage"
	"github.com/samvad-hq/thinkup-relay/pkg/httpclient"
	"github.com/samvad-hq/thinkup-relay/pkg/publishers"
	"github.com/samvad-hq/thinkup-relay/pkg/thinkup"
)

const (
	shutdownTimeout = 10 * time.Second
	// recordTimeout bounds the journal append and event publish that follow each call.
	recordTimeout = 5 * time.Second
)

// Relay is the relay runtime. It owns the ThinkUp client, the call journal, the
// event publishers and the echo server that exposes them.
type Relay struct {
	cfg    *config.Config
	client *thinkup.Client
	routes *routes.Registry
	store  storage.Store
	fanout *publishers.Fanout
	echo   *echo.Echo
	log    logger.Logger

	recordTimeout time.Duration
}

// NewRelay builds a relay runtime from config files.
func NewRelay(ctx context.Context, cfg *config.Config, log logger.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	routeReg, err := routes.LoadRegistry(cfg.RoutesFile)
	if err != nil {
		return nil, fmt.Errorf("load routes registry: %w", err)
	}
	routeList := routeReg.All()
	paths := make([]string, 0, len(routeList))
	for _, r := range routeList {
		paths = append(paths, r.Path)
	}
	log.InfoObj("routes registry loaded", "routes_meta", map[string]any{
		"count": len(paths),
		"paths": paths,
	})

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.JournalType, journalTarget(cfg), storage.Options{
		EntryTTL:        cfg.JournalTTL,
		CleanupInterval: cfg.JournalCleanupInterval,
		MaxEntries:      cfg.JournalMaxEntries,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init call journal: %w", err)
	}
	log.InfoObj("call journal initialized", "journal_config", map[string]any{
		"type":                     cfg.JournalType,
		"target":                   journalTarget(cfg),
		"entry_ttl_seconds":        int(cfg.JournalTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.JournalCleanupInterval.Seconds()),
		"max_entries":              cfg.JournalMaxEntries,
	})

	opts := []thinkup.Option{
		thinkup.WithHTTPClient(httpclient.NewRestyClient(cfg.ThinkUpTimeout, log)),
		thinkup.WithLogger(log),
	}
	if cfg.ThinkUpRawQuery {
		opts = append(opts, thinkup.WithRawQuery())
	}
	client := thinkup.NewClient(cfg.ThinkUpBaseURL, opts...)

	r := &Relay{
		cfg:    cfg,
		client: client,
		routes: routeReg,
		store:  store,
		fanout: fanout,
		log:    log,

		recordTimeout: recordTimeout,
	}
	r.echo = server.New(r, routeReg, log)
	return r, nil
}

// buildFanout loads the publishers file if one is configured. No file means no
// publishers.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubs), nil
}

func journalTarget(cfg *config.Config) string {
	switch cfg.JournalType {
	case "bbolt":
		return cfg.BBoltPath
	case "redis":
		return cfg.RedisAddr
	default:
		return ""
	}
}

// Handler returns the HTTP handler serving the relay routes.
func (r *Relay) Handler() http.Handler { return r.echo }

// BaseURL returns the ThinkUp base URL calls are made against.
func (r *Relay) BaseURL() string { return r.client.BaseURL() }

// Diagnostics returns the client's last-call state.
func (r *Relay) Diagnostics() thinkup.Diagnostics { return r.client.Diagnostics() }

// RecentCalls lists journal entries, newest first.
func (r *Relay) RecentCalls(ctx context.Context, limit int) ([]storage.Entry, error) {
	return r.store.Recent(ctx, limit)
}

// Invoke performs the call behind route, then journals and publishes it. Journal
// and publisher failures are logged and never fail the call; both together are
// bounded by recordTimeout and ignore the caller's cancellation.
func (r *Relay) Invoke(ctx context.Context, route routes.Route, positional []string, optional thinkup.Args) (thinkup.Result, error) {
	start := time.Now()
	res, err := r.client.Invoke(ctx, route.Call, positional, optional)

	entry := newEntry(uuid.NewString(), route, res, err, start)
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.recordTimeout)
	defer cancel()
	r.record(recordCtx, entry)
	return res, err
}

func (r *Relay) record(ctx context.Context, entry storage.Entry) {
	if err := r.store.Append(ctx, entry); err != nil {
		r.log.WarnObj("call journal append failed", "journal_error", map[string]any{
			"call_id": entry.ID,
			"error":   err.Error(),
		})
	}

	if r.fanout.Size() == 0 {
		return
	}
	delivered, err := r.fanout.Publish(ctx, eventFromEntry(entry))
	if err != nil {
		r.log.WarnObj("call event publish failed", "publish_error", map[string]any{
			"call_id":   entry.ID,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}

func newEntry(id string, route routes.Route, res thinkup.Result, err error, start time.Time) storage.Entry {
	e := storage.Entry{
		ID:         id,
		Route:      route.Path,
		CallType:   res.CallType,
		URL:        res.URL,
		Args:       res.Args.Clone(),
		StatusCode: res.StatusCode,
		Outcome:    string(res.Outcome),
		ElapsedMs:  time.Since(start).Milliseconds(),
		At:         start.UTC(),
	}
	if e.CallType == "" {
		e.CallType = route.Call
	}
	if res.APIError != nil {
		e.ErrorType = res.APIError.Type
		e.ErrorMessage = res.APIError.Message
	}
	if err != nil {
		e.Failure = err.Error()
	}
	return e
}

func eventFromEntry(e storage.Entry) publishers.Event {
	return publishers.Event{
		CallID:       e.ID,
		Route:        e.Route,
		CallType:     e.CallType,
		URL:          e.URL,
		Args:         e.Args,
		StatusCode:   e.StatusCode,
		Outcome:      e.Outcome,
		ErrorType:    e.ErrorType,
		ErrorMessage: e.ErrorMessage,
		Failure:      e.Failure,
		OccurredAt:   e.At,
	}
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully and
// releases the journal and publishers.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil || r.echo == nil {
		return fmt.Errorf("relay is not initialized")
	}
	defer r.close()

	errCh := make(chan error, 1)
	go func() {
		r.log.InfoObj("relay listening", "relay_state", map[string]any{
			"addr":     r.cfg.HTTPAddr,
			"base_url": r.client.BaseURL(),
			"routes":   len(r.routes.All()),
		})
		errCh <- r.echo.Start(r.cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
		r.log.InfoObj("relay shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// close releases the journal and publishers, logging any errors encountered.
func (r *Relay) close() {
	if err := r.store.Close(); err != nil {
		r.log.ErrorObj("call journal close failed", "error", err)
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("publishers close failed", "error", err)
	}
}
