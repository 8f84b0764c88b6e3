package matchstats

import (
	"fmt"

	crerr "github.com/cockroachdb/errors"
)

var (
	// ErrTransport marks non-200 responses and connection failures.
	ErrTransport = crerr.New("transport error")
	// ErrDecode marks response bodies that are not valid JSON.
	ErrDecode = crerr.New("decode error")
	// ErrSchema marks upstream documents missing a structurally required key.
	ErrSchema = crerr.New("schema error")
)

type FetchErrorKind string

const (
	FetchErrorTransport FetchErrorKind = "transport"
	FetchErrorDecode    FetchErrorKind = "decode"
)

// FetchError is the typed failure of a single upstream fetch.
// StatusCode is zero when no response was received.
type FetchError struct {
	Kind       FetchErrorKind
	Key        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchErrorDecode:
		return fmt.Sprintf("fetch key=%s: decode error: %v", e.Key, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch key=%s: status=%d", e.Key, e.StatusCode)
	default:
		return fmt.Sprintf("fetch key=%s: %v", e.Key, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == FetchErrorTransport
	case ErrDecode:
		return e.Kind == FetchErrorDecode
	}
	return false
}

// SchemaError reports a required key absent from document Index.
type SchemaError struct {
	Path  string
	Index int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: key %q not found in document %d", e.Path, e.Index)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
