package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Decision describes the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	start time.Time
	count int
}

// Limiter admits up to max requests per caller per fixed window. Counters
// reset when the window elapses; there is no carry-over between windows.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	window  time.Duration
	max     int
	done    chan struct{}
}

func NewLimiter(windowDur time.Duration, max int) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		window:  windowDur,
		max:     max,
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Take records one request for key and reports whether it is admitted.
func (l *Limiter) Take(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}

	resetAt := w.start.Add(l.window)
	if w.count >= l.max {
		return Decision{Allowed: false, Limit: l.max, Remaining: 0, ResetAt: resetAt}
	}
	w.count++
	return Decision{Allowed: true, Limit: l.max, Remaining: l.max - w.count, ResetAt: resetAt}
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, w := range l.windows {
				if now.Sub(w.start) >= l.window {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *Limiter) Stop() {
	close(l.done)
}

// Middleware enforces the limiter on every request, keyed by network origin:
// the client IP, or the resolved owner when auth already ran upstream. Every
// response carries the X-RateLimit headers, rejected ones included.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetOwnerFromContext(r.Context())
		if key == "" {
			key = clientIP(r)
		}

		d := l.Take(key, time.Now())
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(d.ResetAt).Seconds())+1))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
