package health

import (
	"context"
	"net/http"
	"time"
)

// probeTimeout bounds a single probe evaluation so a stuck check cannot pin
// the load balancer's request.
const probeTimeout = 2 * time.Second

// HealthzHandler answers liveness checks: 200 "ok" or 503 with the reason.
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok\n") }

// ReadyzHandler answers readiness checks: 200 "ready" or 503 with the reason.
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready\n") }

func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			err := p.Check(ctx)
			cancel()
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(okBody))
	}
}
