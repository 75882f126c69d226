package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/labstack/echo/v4"
	"github.com/samvad-hq/thinkup-relay/internal/routes"
	"github.com/samvad-hq/thinkup-relay/internal/storage"
	"github.com/samvad-hq/thinkup-relay/pkg/thinkup"
)

type invocation struct {
	route      routes.Route
	positional []string
	optional   thinkup.Args
}

type fakeRelay struct {
	result   thinkup.Result
	err      error
	diag     thinkup.Diagnostics
	entries  []storage.Entry
	calls    []invocation
	gotLimit int
}

func (f *fakeRelay) Invoke(_ context.Context, route routes.Route, positional []string, optional thinkup.Args) (thinkup.Result, error) {
	f.calls = append(f.calls, invocation{route: route, positional: positional, optional: optional})
	return f.result, f.err
}

func (f *fakeRelay) RecentCalls(_ context.Context, limit int) ([]storage.Entry, error) {
	f.gotLimit = limit
	return f.entries, nil
}

func (f *fakeRelay) Diagnostics() thinkup.Diagnostics { return f.diag }
func (f *fakeRelay) BaseURL() string                  { return "http://thinkup.test/webapp/" }

func newTestServer(relay *fakeRelay) *echo.Echo {
	return New(relay, routes.Default(), nil)
}

func serve(e *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRouteBindsPathAndQueryParams(t *testing.T) {
	relay := &fakeRelay{result: thinkup.Result{
		Outcome: thinkup.OutcomeSuccess,
		Data:    json.RawMessage(`[{"text":"hello <b>","user":{"screen_name":"alice"}}]`),
	}}
	e := newTestServer(relay)

	rec := serve(e, "/user_posts_in_range/alice/2011-01-01/2011-02-01?count=5&count=9&network=twitter")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextHTML) {
		t.Fatalf("expected html content type, got %q", ct)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected request id header")
	}

	if len(relay.calls) != 1 {
		t.Fatalf("expected one invocation, got %d", len(relay.calls))
	}
	got := relay.calls[0]
	if got.route.Call != thinkup.CallUserPostsInRange {
		t.Fatalf("unexpected call type %q", got.route.Call)
	}
	if strings.Join(got.positional, ",") != "alice,2011-01-01,2011-02-01" {
		t.Fatalf("unexpected positional args %v", got.positional)
	}
	if got.optional["count"] != "5" || got.optional["network"] != "twitter" {
		t.Fatalf("unexpected optional args %v", got.optional)
	}

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if text := doc.Text(); text != "alice: hello <b>" {
		t.Fatalf("unexpected rendered text %q", text)
	}
	if doc.Find("b").Length() != 0 {
		t.Fatalf("post text was not escaped")
	}
}

func TestRouteRendersDiagnosticsOnAPIError(t *testing.T) {
	relay := &fakeRelay{
		result: thinkup.Result{
			Outcome:    thinkup.OutcomeAPIError,
			StatusCode: 200,
			Args:       thinkup.Args{"username": "ghost"},
			URL:        "http://thinkup.test/webapp/api/v1/post.php?type=user_posts&username=ghost",
			APIError:   &thinkup.ErrorDescriptor{Type: "UserNotFoundException", Message: "nope"},
		},
		// Shared client state left by a concurrent request.
		diag: thinkup.Diagnostics{
			StatusCode: 200,
			Args:       thinkup.Args{"username": "someone_else"},
			URL:        "http://thinkup.test/webapp/api/v1/post.php?type=user_posts&username=someone_else",
		},
	}
	e := newTestServer(relay)

	rec := serve(e, "/user_posts/ghost")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for api error, got %d", rec.Code)
	}
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	pre := doc.Find("pre.diagnostics")
	if pre.Length() != 1 {
		t.Fatalf("expected diagnostics block, got %q", rec.Body.String())
	}
	if !strings.Contains(pre.Text(), "UserNotFoundException") || !strings.Contains(pre.Text(), `"username"=>"ghost"`) {
		t.Fatalf("diagnostics missing details: %q", pre.Text())
	}
	if strings.Contains(pre.Text(), "someone_else") {
		t.Fatalf("diagnostics leaked another call's state: %q", pre.Text())
	}
}

func TestHTTPErrorKeepsClientErrorDescriptor(t *testing.T) {
	relay := &fakeRelay{
		result: thinkup.Result{Outcome: thinkup.OutcomeHTTPError, StatusCode: 404, URL: "http://thinkup.test/webapp/api/v1/post.php?type=post&post_id=1"},
		diag:   thinkup.Diagnostics{Error: thinkup.ErrorDescriptor{Type: "PostNotFoundException", Message: "earlier"}},
	}

	rec := serve(newTestServer(relay), "/post/1")
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	text := doc.Find("pre.diagnostics").Text()
	if !strings.Contains(text, "last_response_code=404") || !strings.Contains(text, "PostNotFoundException") {
		t.Fatalf("unexpected diagnostics %q", text)
	}
}

func TestPathParamsAreDecodedOnce(t *testing.T) {
	cases := map[string]string{
		"/user_posts/100%2525":  "100%25",
		"/user_posts/a%2Fb":     "a/b",
		"/user_posts/caf%C3%A9": "café",
	}
	for target, want := range cases {
		relay := &fakeRelay{result: thinkup.Result{Outcome: thinkup.OutcomeSuccess, Data: json.RawMessage(`[]`)}}
		serve(newTestServer(relay), target)
		if len(relay.calls) != 1 {
			t.Fatalf("%s: expected one invocation, got %d", target, len(relay.calls))
		}
		if got := relay.calls[0].positional[0]; got != want {
			t.Fatalf("%s: username = %q, want %q", target, got, want)
		}
	}
}

func TestRouteMapsTransportErrorsToBadGateway(t *testing.T) {
	relay := &fakeRelay{err: fmt.Errorf("%w: get post: connection refused", thinkup.ErrTransport)}
	e := newTestServer(relay)

	if rec := serve(e, "/post/42"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	relay.err = fmt.Errorf("%w: post: unexpected end of JSON input", thinkup.ErrDecode)
	if rec := serve(e, "/post/42"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for decode error, got %d", rec.Code)
	}

	relay.err = errors.New("unexpected")
	if rec := serve(e, "/post/42"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	if rec := serve(newTestServer(&fakeRelay{}), "/followers/alice"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	rec := serve(newTestServer(&fakeRelay{}), "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestDebugCalls(t *testing.T) {
	relay := &fakeRelay{entries: []storage.Entry{{ID: "c1", CallType: "post", StatusCode: 200}}}
	e := newTestServer(relay)

	rec := serve(e, "/debug/calls?limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if relay.gotLimit != 3 {
		t.Fatalf("expected limit 3, got %d", relay.gotLimit)
	}
	var body struct {
		Count int             `json:"count"`
		Calls []storage.Entry `json:"calls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 || body.Calls[0].ID != "c1" {
		t.Fatalf("unexpected body %+v", body)
	}

	serve(e, "/debug/calls")
	if relay.gotLimit != defaultCallsLimit {
		t.Fatalf("expected default limit, got %d", relay.gotLimit)
	}
	if rec := serve(e, "/debug/calls?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestDebugDiagnostics(t *testing.T) {
	relay := &fakeRelay{diag: thinkup.Diagnostics{StatusCode: 404, URL: "http://thinkup.test/x"}}
	rec := serve(newTestServer(relay), "/debug/diagnostics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		BaseURL     string              `json:"base_url"`
		Diagnostics thinkup.Diagnostics `json:"diagnostics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.BaseURL != "http://thinkup.test/webapp/" || body.Diagnostics.StatusCode != 404 {
		t.Fatalf("unexpected body %+v", body)
	}
}
