package collection

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrStaleResponseDiscarded is returned to the caller of a fetch that was
	// superseded by a newer one. It never reaches the store's state.
	ErrStaleResponseDiscarded = errors.New("stale response discarded")

	// ErrUnknownFilterKey is returned when a filter patch names a key outside
	// the recognized set.
	ErrUnknownFilterKey = errors.New("unknown filter key")

	// ErrEmptyResponse is returned when a fetcher reports success without a page.
	ErrEmptyResponse = errors.New("fetcher returned no page")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store closed")
)

// TransportError is a failure to reach the backend or to complete the
// exchange. Network is set when no connection could be made (refused,
// unreachable, DNS).
type TransportError struct {
	Op      string
	Timeout bool
	Network bool
	Err     error
}

func (e *TransportError) Error() string {
	kind := "transport error"
	switch {
	case e.Timeout:
		kind = "timeout"
	case e.Network:
		kind = "network error"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-success status returned by the backend.
type ServerError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s http error: status=%d body=%s", e.Op, e.StatusCode, e.Body)
}

// ValidationError lists invalid filter values keyed by filter name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid filters: " + strings.Join(names, ", ")
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsServer reports whether err is a ServerError.
func IsServer(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
