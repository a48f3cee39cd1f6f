package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// send issues n requests from remoteAddr and returns the status codes.
func send(h http.Handler, n int, newReq func() *http.Request, remoteAddr string) []int {
	codes := make([]int, n)
	for i := range n {
		req := newReq()
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	return codes
}

func TestRateLimit_DefaultsPerRoute(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(nil, slog.Default())
	defer stop()

	for route, want := range defaultRateLimits {
		if got := rl.limits[route]; got != want {
			t.Errorf("%s: limit = %+v, want %+v", route, got, want)
		}
	}
	if rl.limits[routeUpload].Burst >= rl.limits[routeQuery].Burst {
		t.Errorf("upload burst %d should be below query burst %d",
			rl.limits[routeUpload].Burst, rl.limits[routeQuery].Burst)
	}
}

func TestRateLimit_OverridesMergeWithDefaults(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(map[string]RateLimit{
		routeUpload: {RPS: 0.5},
		routeQuery:  {Burst: 50},
	}, slog.Default())
	defer stop()

	if got := rl.limits[routeUpload]; got != (RateLimit{RPS: 0.5, Burst: 3}) {
		t.Errorf("upload = %+v", got)
	}
	if got := rl.limits[routeQuery]; got != (RateLimit{RPS: 10, Burst: 50}) {
		t.Errorf("query = %+v", got)
	}
	if got := rl.limits[routeClear]; got != defaultRateLimits[routeClear] {
		t.Errorf("clear = %+v", got)
	}
}

func TestRateLimit_BlocksOverBurst(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(map[string]RateLimit{routeQuery: {RPS: 0.001, Burst: 2}}, slog.Default())
	defer stop()
	h := rl.middleware(routeQuery, okHandler)

	codes := send(h, 3, func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/query", nil)
	}, "10.0.0.1:9999")

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests: got %v, want two 200s first", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request: expected 429, got %d", codes[2])
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(map[string]RateLimit{routeClear: {RPS: 0.001, Burst: 1}}, slog.Default())
	defer stop()
	h := rl.middleware(routeClear, okHandler)

	req := httptest.NewRequest(http.MethodPost, "/clear", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/clear", nil)
	req2.RemoteAddr = "10.0.0.2:1234"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)

	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if w2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(map[string]RateLimit{routeClear: {RPS: 0.001, Burst: 1}}, slog.Default())
	defer stop()
	h := rl.middleware(routeClear, okHandler)

	newReq := func() *http.Request { return httptest.NewRequest(http.MethodPost, "/clear", nil) }
	send(h, 5, newReq, "192.168.1.1:1111")

	if codes := send(h, 1, newReq, "192.168.1.2:2222"); codes[0] != http.StatusOK {
		t.Errorf("second IP: expected 200, got %d", codes[0])
	}
}

// TestRateLimit_RoutesHaveSeparateBuckets drives the real handler: a client
// that has drained its /upload budget can still /query.
func TestRateLimit_RoutesHaveSeparateBuckets(t *testing.T) {
	t.Parallel()

	h := newHandlerTestServer(t, Deps{}, &Config{RateLimits: map[string]RateLimit{
		routeUpload: {RPS: 0.001, Burst: 1},
		routeQuery:  {RPS: 0.001, Burst: 5},
	}})
	const addr = "203.0.113.7:4000"

	upload := func() *http.Request {
		body, ct := multipartBody(t, uploadField, map[string]string{"a.pdf": "x"}, []string{"a.pdf"})
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)
		return req
	}
	query := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"q"}`))
	}

	if codes := send(h, 2, upload, addr); codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("uploads: got %v, want [200 429]", codes)
	}
	for i, code := range send(h, 5, query, addr) {
		if code != http.StatusOK {
			t.Errorf("query %d after upload limit: expected 200, got %d", i, code)
		}
	}
	if codes := send(h, 1, query, addr); codes[0] != http.StatusTooManyRequests {
		t.Errorf("query past its own burst: expected 429, got %d", codes[0])
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}

func TestRateLimit_EvictRemovesIdleEntries(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(nil, slog.Default())
	defer stop()

	rl.getLimiter(routeQuery, "10.0.0.1")
	rl.getLimiter(routeQuery, "10.0.0.2")

	idle := bucketKey{route: routeQuery, ip: "10.0.0.1"}
	rl.mu.Lock()
	rl.buckets[idle].lastSeen = time.Now().Add(-2 * limiterTTL)
	rl.mu.Unlock()

	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets[idle]; ok {
		t.Error("idle entry should have been evicted")
	}
	if _, ok := rl.buckets[bucketKey{route: routeQuery, ip: "10.0.0.2"}]; !ok {
		t.Error("recent entry should be kept")
	}
}
