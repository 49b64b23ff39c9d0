package browse

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/pkg/response"
)

// Outcome error codes exposed to clients
const (
	CodeTransportError = "TRANSPORT_ERROR"
	CodeUpstreamError  = "UPSTREAM_ERROR"
	CodeFetchCancelled = "FETCH_CANCELLED"
	CodeFetchFailed    = "FETCH_FAILED"
)

// SnapshotResponse is the client view of a browse session.
type SnapshotResponse struct {
	SessionID  uuid.UUID                  `json:"session_id"`
	State      collection.State           `json:"state"`
	Items      []activity.Activity        `json:"items"`
	Filters    map[string]string          `json:"filters"`
	Pagination collection.PaginationState `json:"pagination"`
	Empty      bool                       `json:"empty"`
	Error      *OutcomeError              `json:"error,omitempty"`
	Seq        uint64                     `json:"seq"`
	LatestSeq  uint64                     `json:"latest_seq"`
}

// OutcomeError describes why the last fetch failed.
type OutcomeError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Timeout    bool   `json:"timeout,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// SnapshotResponseFrom converts a store snapshot
func SnapshotResponseFrom(id uuid.UUID, snap collection.Snapshot[activity.Activity]) *SnapshotResponse {
	resp := &SnapshotResponse{
		SessionID:  id,
		State:      snap.Outcome.State,
		Items:      snap.Items,
		Filters:    snap.Filters.Map(),
		Pagination: snap.Pagination,
		Empty:      snap.IsEmptyResult(),
		Seq:        snap.Outcome.Seq,
		LatestSeq:  snap.LatestSeq,
	}
	if snap.IsFailure() {
		resp.Error = outcomeError(snap.Outcome.Err)
	}
	return resp
}

// Meta mirrors the pagination in the envelope meta block.
func (s *SnapshotResponse) Meta() response.Meta {
	return response.NewMeta(s.Pagination.TotalItems, s.Pagination.CurrentPage, s.Pagination.PageSize, s.Pagination.TotalPages)
}

func outcomeError(err error) *OutcomeError {
	if err == nil {
		return &OutcomeError{Code: CodeFetchFailed, Message: "Failed to load activities"}
	}

	var te *collection.TransportError
	if errors.As(err, &te) {
		msg := "Activities service connection failed"
		switch {
		case te.Timeout:
			msg = "Activities service timed out"
		case te.Network:
			msg = "Activities service is unreachable"
		}
		return &OutcomeError{Code: CodeTransportError, Message: msg, Timeout: te.Timeout}
	}

	var se *collection.ServerError
	if errors.As(err, &se) {
		return &OutcomeError{Code: CodeUpstreamError, Message: "Activities service returned an error", StatusCode: se.StatusCode}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &OutcomeError{Code: CodeFetchCancelled, Message: "Request was cancelled", Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	return &OutcomeError{Code: CodeFetchFailed, Message: "Failed to load activities"}
}

// SetPageRequest is the body of PUT /sessions/{id}/page
type SetPageRequest struct {
	Page int `json:"page"`
}

// CreateSessionResponse is returned by POST /sessions
type CreateSessionResponse struct {
	SessionID uuid.UUID         `json:"session_id"`
	Snapshot  *SnapshotResponse `json:"snapshot"`
}

// StreamCommand is a client message on the session websocket.
type StreamCommand struct {
	Type    string            `json:"type"`
	Page    int               `json:"page,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Stream command types
const (
	CommandFetch        = "fetch"
	CommandSetPage      = "set_page"
	CommandTypeFilters  = "type_filters"
	CommandApplyFilters = "apply_filters"
	CommandClearFilters = "clear_filters"
)

// Stream event types
const (
	EventSnapshot      = "snapshot"
	EventError         = "error"
	EventSessionClosed = "session_closed"
)

// StreamEvent is a server message on the session websocket.
type StreamEvent struct {
	Type     string            `json:"type"`
	Snapshot *SnapshotResponse `json:"snapshot,omitempty"`
	Error    *OutcomeError     `json:"error,omitempty"`
}
