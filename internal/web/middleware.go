package web

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiters []*rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps per-client limiters in memory, one per configured window.
// Idle clients are dropped after visitorTTL.
type limiterStore struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	windows     []rate.Limit
	bursts      []int
	lastCleanup time.Time
	now         func() time.Time
}

func newLimiterStore(perSecond, perMinute int, now func() time.Time) *limiterStore {
	s := &limiterStore{visitors: map[string]*visitor{}, now: now, lastCleanup: now()}
	if perSecond > 0 {
		s.windows = append(s.windows, rate.Limit(perSecond))
		s.bursts = append(s.bursts, perSecond)
	}
	if perMinute > 0 {
		s.windows = append(s.windows, rate.Every(time.Minute/time.Duration(perMinute)))
		s.bursts = append(s.bursts, perMinute)
	}
	return s
}

// quota describes the tightest window after a request was counted.
type quota struct {
	limit     int
	remaining int
	reset     time.Time
	retry     time.Duration
}

// allow reports whether the client may make a request now. Every window is
// charged so a burst cannot borrow from the longer window.
func (s *limiterStore) allow(client string) (bool, quota) {
	if len(s.windows) == 0 {
		return true, quota{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	v, ok := s.visitors[client]
	if !ok {
		v = &visitor{}
		for i, w := range s.windows {
			v.limiters = append(v.limiters, rate.NewLimiter(w, s.bursts[i]))
		}
		s.visitors[client] = v
	}
	v.lastSeen = now
	if now.Sub(s.lastCleanup) > visitorTTL {
		for id, other := range s.visitors {
			if now.Sub(other.lastSeen) > visitorTTL {
				delete(s.visitors, id)
			}
		}
		s.lastCleanup = now
	}
	allowed := true
	var q quota
	for i, l := range v.limiters {
		if !l.AllowN(now, 1) {
			allowed = false
		}
		tokens := l.TokensAt(now)
		perSecond := float64(s.windows[i])
		remaining := int(math.Floor(tokens))
		if remaining < 0 {
			remaining = 0
		}
		if i == 0 || remaining < q.remaining {
			q.limit = s.bursts[i]
			q.remaining = remaining
			q.reset = now.Add(seconds((float64(s.bursts[i]) - tokens) / perSecond))
		}
		if tokens < 1 {
			if wait := seconds((1 - tokens) / perSecond); wait > q.retry {
				q.retry = wait
			}
		}
	}
	return allowed, q
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}

func rateLimit(store *limiterStore, tooMany http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, q := store.allow(clientIP(r))
			if q.limit > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(q.limit))
				h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(ceilSeconds(time.Duration(q.reset.UnixNano())), 10))
			}
			if !ok {
				retry := ceilSeconds(q.retry)
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				tooMany(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"style-src 'self' cdn.jsdelivr.net",
	"script-src 'self' cdn.jsdelivr.net",
	"font-src cdn.jsdelivr.net",
	"img-src data: 'self'",
}, "; ")

func securityHeaders(hsts bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
