// Package ratelimit provides a global plus per-client token bucket limiter
// for the conversion service.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	idleTTL         = 10 * time.Minute
	cleanupInterval = time.Minute
)

type tokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(rate, burst int) *tokenBucket {
	if burst < rate {
		burst = rate
	}
	return &tokenBucket{
		rate:   float64(rate),
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *tokenBucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Limiter applies a global bucket and one bucket per client IP.
// A zero rate disables that dimension.
type Limiter struct {
	global *tokenBucket

	ipRate, ipBurst int
	mu              sync.Mutex
	clients         map[string]*tokenBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter returns nil when both rates are zero, meaning unlimited.
func NewLimiter(globalRate, globalBurst, ipRate, ipBurst int) *Limiter {
	if globalRate <= 0 && ipRate <= 0 {
		return nil
	}
	l := &Limiter{
		ipRate:  ipRate,
		ipBurst: ipBurst,
		clients: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	if globalRate > 0 {
		l.global = newTokenBucket(globalRate, globalBurst)
	}
	if ipRate > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	if l.ipRate > 0 && !l.client(ip).allow() {
		return false
	}
	if l.global != nil && !l.global.allow() {
		return false
	}
	return true
}

func (l *Limiter) client(ip string) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[ip]
	if !ok {
		b = newTokenBucket(l.ipRate, l.ipBurst)
		l.clients[ip] = b
	}
	return b
}

func (l *Limiter) cleanupLoop() {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-t.C:
			l.mu.Lock()
			for ip, b := range l.clients {
				if now.Sub(b.idleSince()) > idleTTL {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the background cleanup goroutine.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects requests over the limit with 429. onLimited may be nil.
func (l *Limiter) Middleware(next http.Handler, onLimited func()) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			if onLimited != nil {
				onLimited()
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop or the remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
