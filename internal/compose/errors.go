package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/onterra/onterra-web/internal/content"
)

var (
	// ErrNotFound is returned when a parametric surface instance has no document.
	ErrNotFound = errors.New("compose: not found")
	// ErrUnknownSurface is returned for a pattern no composer serves.
	ErrUnknownSurface = errors.New("compose: unknown surface")
	// ErrMissingDocument marks a required document whose query returned nothing.
	ErrMissingDocument = errors.New("document missing")
)

// CompositionError reports that required documents for a surface could not
// be obtained. No partial view-model accompanies it.
type CompositionError struct {
	Surface string
	Missing []content.QueryID
	Err     error
}

func (e *CompositionError) Error() string {
	ids := make([]string, 0, len(e.Missing))
	for _, id := range e.Missing {
		ids = append(ids, string(id))
	}
	return fmt.Sprintf("compose %s: required documents unavailable [%s]: %v", e.Surface, strings.Join(ids, ", "), e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }
