package content

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a FetchError.
type Kind string

const (
	KindQuery     Kind = "query"     // unknown query, missing param, wrong shape
	KindTransport Kind = "transport" // network or store client failure
	KindTimeout   Kind = "timeout"
	KindStatus    Kind = "status" // non-2xx from the store
	KindDecode    Kind = "decode"
	KindInvalid   Kind = "invalid" // decoded document failed validation
)

// FetchError is returned by every Client operation that fails.
type FetchError struct {
	Query QueryID
	Kind  Kind
	Err   error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("content: fetch %s: %s", e.Query, e.Kind)
	}
	return fmt.Sprintf("content: fetch %s: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a FetchError of kind k.
func IsKind(err error, k Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == k
}

// StatusError is returned by HTTP transports for non-2xx responses. The
// response body is never retained.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// ErrNoSlug is returned when a by-slug query is issued without a slug.
var ErrNoSlug = errors.New("content: slug parameter required")
