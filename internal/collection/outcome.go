package collection

import "encoding/json"

// State is the lifecycle of the most recent fetch.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	}
	return "unknown"
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Outcome is the tagged result of the authoritative request.
// Items is only set in StateSuccess and Err only in StateFailure.
type Outcome[T any] struct {
	State State
	Items []T
	Err   error
	// Seq is the tag of the request that produced this outcome; 0 while idle.
	Seq uint64
}

// Snapshot is a read-only copy of the store state.
type Snapshot[T Item] struct {
	Items      []T
	Filters    FilterSet
	Pagination PaginationState
	Outcome    Outcome[T]
	// LatestSeq is the tag of the most recently issued fetch.
	LatestSeq uint64
}

// Keys returns the rendering keys of the listed items in order.
func (s Snapshot[T]) Keys() []string {
	keys := make([]string, len(s.Items))
	for i, item := range s.Items {
		keys[i] = item.Key()
	}
	return keys
}

func (s Snapshot[T]) IsLoading() bool { return s.Outcome.State == StateLoading }

func (s Snapshot[T]) IsFailure() bool { return s.Outcome.State == StateFailure }

// IsEmptyResult reports a successful fetch that matched nothing.
// This is not an error and must be rendered differently from a failure.
func (s Snapshot[T]) IsEmptyResult() bool {
	return s.Outcome.State == StateSuccess && len(s.Items) == 0
}
