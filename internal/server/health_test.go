package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ---------------------------------------------------------------------------
// Fake Pinger for readiness tests
// ---------------------------------------------------------------------------

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// ---------------------------------------------------------------------------
// GET /health: liveness
// ---------------------------------------------------------------------------

// TestHandleHealth_OK verifies that GET /health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// ---------------------------------------------------------------------------
// GET /ready: readiness
// ---------------------------------------------------------------------------

// TestHandleReady_NoPingers verifies that /ready returns 200 with
// ready:true and an empty checks array when no pingers are registered.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

// TestHandleReady_AllHealthy verifies that /ready returns 200 with
// ready:true when all pingers succeed.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "llm", err: nil},
		&fakePinger{name: "store:supabase", err: nil},
	)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK {
			t.Errorf("check %q: expected ok:true", c.Name)
		}
		if c.Error != "" {
			t.Errorf("check %q: expected no error, got %q", c.Name, c.Error)
		}
	}
}

// TestHandleReady_OneFailing verifies that /ready returns 503 with
// ready:false when one pinger fails, and the failing check has ok:false
// with a non-empty error field.
func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "llm", err: nil},
		&fakePinger{name: "store:supabase", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}

	var storeCheck *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "store:supabase" {
			storeCheck = &resp.Checks[i]
		}
	}
	if storeCheck == nil {
		t.Fatal("store check missing from response")
	}
	if storeCheck.OK {
		t.Errorf("store check: expected ok:false")
	}
	if storeCheck.Error == "" {
		t.Errorf("store check: expected non-empty error")
	}
}

// TestHandleReady_AllFailing verifies that /ready returns 503 with
// ready:false and all checks showing ok:false when every pinger fails.
func TestHandleReady_AllFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(
		&fakePinger{name: "llm", err: errors.New("timeout")},
		&fakePinger{name: "store:supabase", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}
	for _, c := range resp.Checks {
		if c.OK {
			t.Errorf("check %q: expected ok:false", c.Name)
		}
	}
}

// TestHandleReady_ContentType verifies the response always has Content-Type
// application/json regardless of check outcome.
func TestHandleReady_ContentType(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(&fakePinger{name: "llm", err: errors.New("down")})
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}

// TestHandleReady_PreservesOrder verifies that checks are reported in
// registration order even though checks run concurrently.
func TestHandleReady_PreservesOrder(t *testing.T) {
	t.Parallel()

	names := []string{"store:sqlite", "llm:ollama", "cache:redis", "llm:gemini"}
	pingers := make([]Pinger, len(names))
	for i, n := range names {
		pingers[i] = &fakePinger{name: n}
	}
	s := newReadyTestServer(pingers...)
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, c := range resp.Checks {
		if c.Name != names[i] {
			t.Errorf("checks[%d] = %q, want %q", i, c.Name, names[i])
		}
	}
}

// fakeHealthChecker is a provider.HealthChecker returning err.
type fakeHealthChecker struct{ err error }

func (f fakeHealthChecker) HealthCheck(context.Context) error { return f.err }

// fakeStorePing is a store with only a Ping method.
type fakeStorePing struct{ err error }

func (f fakeStorePing) Ping(context.Context) error { return f.err }

func TestPingers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		pinger   Pinger
		wantName string
		wantErr  bool
	}{
		{"store ok", NewStorePinger(fakeStorePing{}, "sqlite"), "store:sqlite", false},
		{"store down", NewStorePinger(fakeStorePing{err: errors.New("refused")}, "postgres"), "store:postgres", true},
		{"llm ok", NewLLMPinger(fakeHealthChecker{}, "gemini"), "llm:gemini", false},
		{"llm down", NewLLMPinger(fakeHealthChecker{err: errors.New("401")}, "openai"), "llm:openai", true},
		{"llm without check", NewLLMPinger(nil, "ark"), "llm:ark", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.pinger.Name(); got != tc.wantName {
				t.Errorf("Name() = %q, want %q", got, tc.wantName)
			}
			err := tc.pinger.Ping(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
