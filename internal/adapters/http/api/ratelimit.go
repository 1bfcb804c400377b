package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused client limiter is kept.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter is a token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	rate    rate.Limit
	burst   int
	hops    int
	now     func() time.Time
}

// LimiterOption applies a configuration option to the Limiter.
type LimiterOption func(*Limiter)

// WithTrustedHops sets how many proxies in front of the server append to
// X-Forwarded-For. Zero ignores the header and keys on the peer address.
func WithTrustedHops(n int) LimiterOption {
	return func(l *Limiter) {
		if n >= 0 {
			l.hops = n
		}
	}
}

// NewLimiter allows perMinute events per client with the given burst.
// perMinute < 1 disables limiting.
func NewLimiter(perMinute, burst int, opts ...LimiterOption) *Limiter {
	r := rate.Inf
	if perMinute > 0 {
		r = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		clients: make(map[string]*limiterEntry),
		rate:    r,
		burst:   burst,
		hops:    1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AllowRequest is Allow keyed by the request's client address.
func (l *Limiter) AllowRequest(r *http.Request) bool {
	return l.Allow(ClientKey(r, l.hops))
}

// Allow reports whether key may proceed now and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}

// Cleanup drops limiters idle for longer than limiterIdle and returns how
// many were removed.
func (l *Limiter) Cleanup() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, e := range l.clients {
		if now.Sub(e.seen) > limiterIdle {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Cleanup()
		}
	}
}

// ClientKey identifies the caller. Each of the trustedHops proxies in front
// of the server appends the address it received the request from to
// X-Forwarded-For, so the entry trustedHops from the right is the first one
// a client cannot forge. Entries further left are ignored.
func ClientKey(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var entries []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, e := range strings.Split(v, ",") {
				if e = strings.TrimSpace(e); e != "" {
					entries = append(entries, e)
				}
			}
		}
		if n := len(entries); n > 0 {
			return entries[max(n-trustedHops, 0)]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
