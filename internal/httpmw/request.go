package httpmw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/netip"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
)

// WithRequestID stores id in ctx. An empty id leaves ctx unchanged.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP stores the resolved client address in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the address resolved by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// maxRequestIDLen bounds an upstream-supplied request ID.
const maxRequestIDLen = 64

// RequestID propagates the upstream request ID from header when it looks
// sane and mints one otherwise. The ID is echoed on the response. Upstream
// values with anything outside [A-Za-z0-9._-] are replaced; they end up in
// log fields.
func RequestID(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-Request-Id"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if !validRequestID(id) {
				id = newRequestID()
				r.Header.Set(header, id)
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func newRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ClientIPOptions configures ClientIP.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry (single load
	// balancer), 2 the one before it (CDN then load balancer), and so on.
	TrustedHops int
}

// ClientIP resolves the client address once per request and stores it in the
// context for the rate limiter and the access log.
//
// Forwarded headers are trusted only when the TCP peer is a private address
// and TrustedHops > 0. Otherwise, or when the header has fewer entries than
// hops, they are removed so nothing downstream can read a spoofed value.
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, hops int) string {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		// httptest and unix sockets can hand us a bare address
		if a, aerr := netip.ParseAddr(r.RemoteAddr); aerr == nil {
			peer = netip.AddrPortFrom(a, 0)
		} else {
			stripForwarded(r)
			return "0.0.0.0"
		}
	}
	addr := peer.Addr().Unmap()

	if hops <= 0 || !addr.IsPrivate() {
		stripForwarded(r)
		return addr.String()
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return addr.String()
	}
	entries := strings.Split(strings.Join(xff, ","), ",")
	i := len(entries) - hops
	if i < 0 {
		stripForwarded(r)
		return addr.String()
	}
	if fwd, err := netip.ParseAddr(strings.TrimSpace(entries[i])); err == nil {
		return fwd.Unmap().String()
	}
	return addr.String()
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// MaxBody caps request bodies at n bytes. A declared Content-Length above the
// cap is refused with 413 before the handler runs; a body that grows past it
// fails on read.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"message":"Request body too large"}` + "\n"))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
