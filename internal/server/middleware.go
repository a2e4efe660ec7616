package server

import (
	"container/list"
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
	"pkt.systems/pslog"
)

// corsPolicy decides which origins may call the run endpoint. Preview frames are
// sandboxed without allow-same-origin, so their requests carry "Origin: null"
// and only a "*" entry admits them.
type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
}

func newCORSPolicy(origins []string) *corsPolicy {
	if len(origins) == 0 {
		return nil
	}
	p := &corsPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.anyOrigin = true
		}
		p.origins[o] = struct{}{}
	}
	return p
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or "".
func (p *corsPolicy) allowedOrigin(origin string) string {
	switch {
	case origin == "":
		return ""
	case p.anyOrigin:
		return "*"
	}
	if _, ok := p.origins[origin]; ok {
		return origin
	}
	return ""
}

// CORSMiddleware lets preview documents post to the wrapped endpoint and answers
// its preflight requests. With no origins configured it adds nothing.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(origins)
	return func(next http.Handler) http.Handler {
		if policy == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allow := policy.allowedOrigin(r.Header.Get("Origin")); allow != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				if allow != "*" {
					h.Add("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			// The preview frame is a srcdoc document and inherits this policy,
			// so user code keeps inline scripts, eval and remote resources.
			w.Header().Set("Content-Security-Policy",
				"default-src 'self' https:; "+
					"script-src 'self' 'unsafe-inline' 'unsafe-eval' https:; "+
					"style-src 'self' 'unsafe-inline' https:; "+
					"img-src 'self' data: blob: https:; "+
					"font-src 'self' data: https:; "+
					"connect-src 'self' https:; "+
					"frame-ancestors 'self'")

			next.ServeHTTP(w, r)
		})
	}
}

const (
	// evictionLogInterval is the minimum time between eviction warnings.
	evictionLogInterval = 30 * time.Second
	limiterIdle         = 10 * time.Minute
	limiterSweep        = 5 * time.Minute
)

// clientLimiter is the token bucket of one client address.
type clientLimiter struct {
	addr     string
	bucket   *rate.Limiter
	lastSeen time.Time
}

// limiterTable holds one token bucket per client, least recently used first
// out when the table is full.
type limiterTable struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	max     int
	clock   clock.PassiveClock
	byAddr  map[string]*list.Element
	recency *list.List // front is the most recently seen client

	evicted    int
	lastWarned time.Time
	log        pslog.Logger
}

func newLimiterTable(rps float64, burst, maxClients int, clk clock.PassiveClock, log pslog.Logger) *limiterTable {
	if maxClients <= 0 {
		maxClients = 10000
	}
	return &limiterTable{
		limit:   rate.Limit(rps),
		burst:   burst,
		max:     maxClients,
		clock:   clk,
		byAddr:  make(map[string]*list.Element),
		recency: list.New(),
		log:     log,
	}
}

// allow takes a token from addr's bucket, creating the bucket on first sight.
func (t *limiterTable) allow(addr string) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byAddr[addr]; ok {
		t.recency.MoveToFront(e)
		cl := e.Value.(*clientLimiter)
		cl.lastSeen = now
		return cl.bucket.AllowN(now, 1)
	}

	if t.recency.Len() >= t.max {
		t.evictOldestLocked(now)
	}
	cl := &clientLimiter{addr: addr, bucket: rate.NewLimiter(t.limit, t.burst), lastSeen: now}
	t.byAddr[addr] = t.recency.PushFront(cl)
	return cl.bucket.AllowN(now, 1)
}

func (t *limiterTable) evictOldestLocked(now time.Time) {
	back := t.recency.Back()
	if back == nil {
		return
	}
	t.recency.Remove(back)
	delete(t.byAddr, back.Value.(*clientLimiter).addr)

	t.evicted++
	if now.Sub(t.lastWarned) >= evictionLogInterval {
		t.log.Warn("ratelimit.evicted", "count", t.evicted, "capacity", t.max)
		t.lastWarned = now
		t.evicted = 0
	}
}

// sweep forgets clients idle for longer than idle. Recency order follows the
// last request, so idle clients collect at the back.
func (t *limiterTable) sweep(idle time.Duration) int {
	cutoff := t.clock.Now().Add(-idle)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for e := t.recency.Back(); e != nil; {
		cl := e.Value.(*clientLimiter)
		if cl.lastSeen.After(cutoff) {
			break
		}
		prev := e.Prev()
		t.recency.Remove(e)
		delete(t.byAddr, cl.addr)
		removed++
		e = prev
	}
	return removed
}

func (t *limiterTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recency.Len()
}

// RateLimitMiddleware gives every client address a token bucket of rps requests
// per second with the given burst, tracking at most maxClients addresses.
// Idle buckets are swept by a goroutine that runs until ctx is cancelled; the
// returned channel closes when it has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxClients int) (func(http.Handler) http.Handler, <-chan struct{}) {
	table := newLimiterTable(rps, burst, maxClients, clock.RealClock{}, pslog.Ctx(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := table.sweep(limiterIdle); n > 0 {
					table.log.Debug("ratelimit.swept", "clients", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !table.allow(clientAddr(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return middleware, done
}

// LoggerMiddleware stores the server logger in each request context.
func LoggerMiddleware(logger pslog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := pslog.ContextWithLogger(r.Context(), logger.With("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientAddr is the address rate limits are keyed on. Forwarding headers are
// only believed when the peer is a loopback or private proxy. X-Forwarded-For
// is walked right to left and the first hop outside the proxies wins.
func clientAddr(r *http.Request) string {
	peer, ok := parseAddr(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !trustedProxy(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, ok := parseAddr(strings.TrimSpace(hops[i]))
			if !ok {
				break
			}
			if !trustedProxy(hop) || i == 0 {
				return hop.String()
			}
		}
	}
	if xri, ok := parseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ok {
		return xri.String()
	}
	return peer.String()
}

// parseAddr accepts "ip" or "ip:port".
func parseAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(s); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

func trustedProxy(a netip.Addr) bool {
	return a.IsLoopback() || a.IsPrivate()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
