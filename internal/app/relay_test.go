package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/thinkup-relay/internal/config"
	"github.com/samvad-hq/thinkup-relay/pkg/publishers"
)

func newThinkUpServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webapp/api/v1/post.php" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("type") {
		case "user_posts":
			_, _ = w.Write([]byte(`[{"text":"hi","user":{"screen_name":"alice"}}]`))
		case "post":
			_, _ = w.Write([]byte(`{"error":{},"type":"PostNotFoundException","message":"no such post"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type eventSink struct {
	mu     sync.Mutex
	events []publishers.Event
}

func (s *eventSink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt publishers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode event: %v", err)
		}
		s.mu.Lock()
		s.events = append(s.events, evt)
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *eventSink) all() []publishers.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishers.Event(nil), s.events...)
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:                "thinkup-relay",
		Env:                    "test",
		HTTPAddr:               "127.0.0.1:0",
		ThinkUpBaseURL:         baseURL,
		JournalType:            "bbolt",
		BBoltPath:              filepath.Join(t.TempDir(), "journal.db"),
		JournalTTL:             time.Hour,
		JournalCleanupInterval: time.Hour,
		JournalMaxEntries:      10,
	}
}

func writePublishersFile(t *testing.T, url string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "publishers.yaml")
	raw := "publishers:\n  - id: hook\n    type: http\n    http:\n      url: " + url + "\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write publishers file: %v", err)
	}
	return path
}

func get(relay *Relay, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	relay.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRelayServesJournalsAndPublishes(t *testing.T) {
	thinkup := newThinkUpServer(t)
	sink := &eventSink{}
	hook := httptest.NewServer(sink.handler(t))
	defer hook.Close()

	cfg := testConfig(t, thinkup.URL+"/webapp/")
	cfg.PublishersFile = writePublishersFile(t, hook.URL)

	relay, err := NewRelay(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer relay.close()

	rec := get(relay, "/user_posts/alice?count=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != "alice: hi<br />" {
		t.Fatalf("unexpected body %q", body)
	}

	entries, err := relay.RecentCalls(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.CallType != "user_posts" || entry.Route != "/user_posts/:username" || entry.Outcome != "success" {
		t.Fatalf("unexpected journal entry %+v", entry)
	}
	if entry.Args["username"] != "alice" || entry.Args["count"] != "2" || entry.ID == "" {
		t.Fatalf("unexpected journal args/id %+v", entry)
	}

	events := sink.all()
	if len(events) != 1 || events[0].CallID != entry.ID || events[0].StatusCode != http.StatusOK {
		t.Fatalf("unexpected published events %+v", events)
	}
}

func TestRelayJournalsAPIErrors(t *testing.T) {
	thinkup := newThinkUpServer(t)
	relay, err := NewRelay(context.Background(), testConfig(t, thinkup.URL+"/webapp/"), nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer relay.close()

	rec := get(relay, "/post/99")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "PostNotFoundException") {
		t.Fatalf("expected diagnostics fragment, got %d %q", rec.Code, rec.Body.String())
	}
	if got := relay.Diagnostics().Error.Type; got != "PostNotFoundException" {
		t.Fatalf("diagnostics error type = %q", got)
	}

	entries, _ := relay.RecentCalls(context.Background(), 1)
	if len(entries) != 1 || entries[0].Outcome != "api_error" || entries[0].ErrorMessage != "no such post" {
		t.Fatalf("unexpected journal entries %+v", entries)
	}
}

func TestRelayJournalsTransportFailures(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	base := dead.URL + "/webapp/"
	dead.Close()

	relay, err := NewRelay(context.Background(), testConfig(t, base), nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer relay.close()

	if rec := get(relay, "/related_posts/7"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	entries, _ := relay.RecentCalls(context.Background(), 1)
	if len(entries) != 1 || entries[0].Failure == "" || entries[0].StatusCode != 0 {
		t.Fatalf("expected failed call in journal, got %+v", entries)
	}
	if relay.Diagnostics().StatusCode != 0 {
		t.Fatalf("transport failure should not touch diagnostics")
	}
}

func TestNewRelayRejectsBadConfig(t *testing.T) {
	if _, err := NewRelay(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	cfg := testConfig(t, "http://thinkup.test/")
	cfg.JournalType = "mongo"
	if _, err := NewRelay(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported journal")
	}

	cfg = testConfig(t, "http://thinkup.test/")
	cfg.PublishersFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewRelay(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for missing publishers file")
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	relay, err := NewRelay(context.Background(), testConfig(t, "http://thinkup.test/"), nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRelayBoundsStalledPublisher(t *testing.T) {
	thinkup := newThinkUpServer(t)
	release := make(chan struct{})
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer hook.Close()
	defer close(release)

	cfg := testConfig(t, thinkup.URL+"/webapp/")
	cfg.PublishersFile = writePublishersFile(t, hook.URL)

	relay, err := NewRelay(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer relay.close()
	relay.recordTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/user_posts/alice", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		relay.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("request blocked by a stalled publisher")
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "alice: hi<br />" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	entries, err := relay.RecentCalls(context.Background(), 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected the call to be journaled despite the stalled publisher, got %+v (%v)", entries, err)
	}
}
