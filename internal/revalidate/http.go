package revalidate

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onterra/onterra-web/internal/xerrors"
)

// Request is the webhook body.
type Request struct {
	Secret string `json:"secret"`
	Type   string `json:"type"`
	Slug   string `json:"slug,omitempty"`
}

// Ack is the success response. Slug is null when the request had none.
type Ack struct {
	Revalidated bool    `json:"revalidated"`
	Now         int64   `json:"now"`
	Type        string  `json:"type"`
	Slug        *string `json:"slug"`
}

type message struct {
	Message string `json:"message"`
}

const (
	msgInvalidSecret = "Invalid secret"
	msgError         = "Error revalidating"
)

// RegisterRoutes mounts the webhook.
func (d *Dispatcher) RegisterRoutes(r chi.Router) {
	r.Post("/revalidate", d.ServeHTTP)
}

// ServeHTTP handles POST /revalidate. A body that cannot be decoded carries
// no credentials and is rejected like a wrong secret. Nothing from the
// request body is echoed into logs.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error(ctx, xerrors.Newf("panic: %v", rec), "revalidate handler panicked")
			d.observe("error", "none")
			d.writeJSON(ctx, w, http.StatusInternalServerError, message{msgError})
		}
	}()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		d.writeJSON(ctx, w, http.StatusMethodNotAllowed, message{http.StatusText(http.StatusMethodNotAllowed)})
		return
	}

	var req Request
	body := http.MaxBytesReader(w, r.Body, d.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil || !d.Authenticate(req.Secret) {
		d.logger.Warn(ctx, "revalidate rejected",
			"remote_addr", r.RemoteAddr,
			"malformed", err != nil,
		)
		d.observe("rejected", "none")
		d.writeJSON(ctx, w, http.StatusUnauthorized, message{msgInvalidSecret})
		return
	}

	res, err := d.Revalidate(ctx, req.Type, req.Slug)
	if err != nil {
		d.logger.Error(ctx, err, "revalidate failed", "type", req.Type)
		d.observe("error", "none")
		d.writeJSON(ctx, w, http.StatusInternalServerError, message{msgError})
		return
	}
	d.observe("ok", res.Branch())

	// echo what was resolved, never the raw request
	ack := Ack{Revalidated: true, Now: d.now().UnixMilli(), Type: res.Resolution.Type}
	if s := res.Resolution.Slug; s != "" {
		ack.Slug = &s
	}
	d.writeJSON(ctx, w, http.StatusOK, ack)
}

func (d *Dispatcher) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.logger.Warn(ctx, "failed to encode JSON response", "err", err)
	}
}
