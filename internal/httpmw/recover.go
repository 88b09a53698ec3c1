package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a JSON 500.
// http.ErrAbortHandler is re-panicked so net/http can abort the response.
// onPanic, if set, is called once per recovered panic (metrics).
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.New(fmt.Sprintf("panic: %v", rec))
				}
				logger.With(
					"method", r.Method,
					"path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"message":"Internal Server Error"}` + "\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
