package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onterra/onterra-web/internal/httpmw"
	"github.com/onterra/onterra-web/internal/log"
)

var ErrInvalidOptions = errors.New("ratelimit: invalid options")

// Metrics is implemented by metrics.ServerMetrics. Nil is allowed.
type Metrics interface {
	IncRateLimitDenied(limiter string)
	IncRateLimitCapacity(limiter string)
}

type Options struct {
	// Name labels logs and metrics, e.g. "public" or "revalidate".
	Name string

	// PerSecond refills the bucket; Burst is its size.
	PerSecond float64
	Burst     int

	// TTL is how long an idle client stays tracked. Sweeps run every TTL/2.
	TTL time.Duration

	// MaxClients caps the tracked set; unseen clients are rejected while
	// it is full. Negative disables the cap.
	MaxClients int

	Logger  log.Logger
	Metrics Metrics
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.PerSecond == 0 {
		o.PerSecond = 10
	}
	if o.Burst == 0 {
		o.Burst = 30
	}
	if o.TTL == 0 {
		o.TTL = 5 * time.Minute
	}
	if o.MaxClients == 0 {
		o.MaxClients = 100_000
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

func (o Options) validate() error {
	switch {
	case o.PerSecond < 0 || math.IsNaN(o.PerSecond) || math.IsInf(o.PerSecond, 0):
		return fmt.Errorf("%w: PerSecond must be a positive number", ErrInvalidOptions)
	case o.Burst < 1:
		return fmt.Errorf("%w: Burst must be at least 1", ErrInvalidOptions)
	case o.TTL < time.Millisecond:
		return fmt.Errorf("%w: TTL too short", ErrInvalidOptions)
	}
	return nil
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
	warned   bool
}

// Limiter keeps one token bucket per client IP.
type Limiter struct {
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	full    bool
}

// New builds a Limiter whose sweeper runs until ctx is done.
func New(ctx context.Context, opts Options) (*Limiter, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	l := &Limiter{opts: opts, now: time.Now, clients: make(map[string]*client)}
	go l.sweepEvery(ctx, opts.TTL/2)
	return l, nil
}

// Allow spends one token for ip.
func (l *Limiter) Allow(ctx context.Context, ip string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		if l.opts.MaxClients > 0 && len(l.clients) >= l.opts.MaxClients {
			first := !l.full
			l.full = true
			l.mu.Unlock()
			if first {
				l.opts.Logger.Warn(ctx, "rate limiter full, rejecting new clients",
					"limiter", l.opts.Name, "clients", l.opts.MaxClients)
				if l.opts.Metrics != nil {
					l.opts.Metrics.IncRateLimitCapacity(l.opts.Name)
				}
			}
			l.denied()
			return false
		}
		c = &client{bucket: rate.NewLimiter(rate.Limit(l.opts.PerSecond), l.opts.Burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	allowed := c.bucket.AllowN(now, 1)
	warn := !allowed && !c.warned
	if warn {
		c.warned = true
	}
	l.mu.Unlock()

	if allowed {
		return true
	}
	// once per client until it is swept
	if warn {
		l.opts.Logger.Warn(ctx, "rate limit triggered", "limiter", l.opts.Name, "client.address", ip)
	}
	l.denied()
	return false
}

func (l *Limiter) denied() {
	if l.opts.Metrics != nil {
		l.opts.Metrics.IncRateLimitDenied(l.opts.Name)
	}
}

// Len is the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) sweepEvery(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

// sweep forgets clients idle for longer than TTL.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > l.opts.TTL {
			delete(l.clients, ip)
		}
	}
	if l.opts.MaxClients <= 0 || len(l.clients) < l.opts.MaxClients {
		l.full = false
	}
}

// retryAfter is the whole seconds until one token is back.
func (l *Limiter) retryAfter() string {
	if l.opts.PerSecond <= 0 {
		return "60"
	}
	return strconv.Itoa(max(1, int(math.Ceil(1/l.opts.PerSecond))))
}

// Middleware answers 429 once the client's bucket is empty. The client
// address comes from httpmw.ClientIP, which must run first.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), httpmw.ClientIPFromContext(r.Context())) {
			h := w.Header()
			h.Set("Content-Type", "application/json; charset=utf-8")
			h.Set("Cache-Control", "no-store")
			h.Set("Retry-After", l.retryAfter())
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"Too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
