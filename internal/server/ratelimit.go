package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docrag-go/internal/logging"
)

// Route names used as rate limit keys.
const (
	routeUpload = "upload"
	routeQuery  = "query"
	routeClear  = "clear"
)

// RateLimit is a token bucket setting for one route, applied per client IP.
type RateLimit struct {
	// RPS is the sustained request rate (requests/second).
	RPS float64
	// Burst is the maximum instantaneous burst.
	Burst int
}

// defaultRateLimits reflects what each route costs. An upload embeds every
// page of every file, a query embeds once and calls the LLM, and clear is
// rare.
var defaultRateLimits = map[string]RateLimit{
	routeUpload: {RPS: 1, Burst: 3},
	routeQuery:  {RPS: 10, Burst: 20},
	routeClear:  {RPS: 1, Burst: 2},
}

// limiterTTL is how long an idle client keeps its buckets.
const limiterTTL = 5 * time.Minute

// bucketKey identifies one client's bucket on one route.
type bucketKey struct {
	route string
	ip    string
}

// bucket holds a token-bucket limiter and the last time it was used, so
// idle entries can be evicted.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-route, per-IP token bucket. Each route has its
// own budget, so a client draining /upload can still /query. Stale buckets
// are evicted every minute to bound memory usage.
type rateLimiter struct {
	// mu protects buckets.
	mu sync.Mutex
	// buckets maps (route, IP) to its limiter.
	buckets map[bucketKey]*bucket
	// limits holds the resolved setting per route.
	limits map[string]RateLimit
	log    *slog.Logger
}

// newRateLimiter constructs a rateLimiter and starts the background eviction
// goroutine, which exits when the returned stop function is called. Routes
// missing from limits, or with a zero field, take defaultRateLimits.
func newRateLimiter(limits map[string]RateLimit, log *slog.Logger) (*rateLimiter, func()) {
	resolved := make(map[string]RateLimit, len(defaultRateLimits))
	for route, def := range defaultRateLimits {
		l := limits[route]
		if l.RPS <= 0 {
			l.RPS = def.RPS
		}
		if l.Burst <= 0 {
			l.Burst = def.Burst
		}
		resolved[route] = l
	}
	for route, l := range limits {
		if _, ok := resolved[route]; !ok {
			resolved[route] = l
		}
	}

	rl := &rateLimiter{
		buckets: make(map[bucketKey]*bucket),
		limits:  resolved,
		log:     log,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// getLimiter returns the limiter for ip on route, creating it on first use.
func (rl *rateLimiter) getLimiter(route, ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{route: route, ip: ip}
	b, ok := rl.buckets[key]
	if !ok {
		l := rl.limits[route]
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.RPS), l.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// evictLoop removes buckets idle for longer than limiterTTL until stopCh
// is closed.
func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-limiterTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// middleware enforces route's limit before delegating to next. Rejected
// requests get 429 with a Retry-After header.
func (rl *rateLimiter) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.getLimiter(route, ip).Allow() {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("route", route),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP from the request, stripping the port.
// X-Forwarded-For is not trusted; put a proxy that rewrites RemoteAddr in
// front when deploying behind a load balancer.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
