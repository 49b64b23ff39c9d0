package browse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/pkg/errorhandler"
	"github.com/wanderhost/browse-api/internal/pkg/response"
)

// Handler handles browse session HTTP requests
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
}

// NewHandler creates browse handler
func NewHandler(registry *Registry, allowedOrigins []string) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// CreateSession handles POST /browse/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Create(r.Context())
	if err != nil {
		if errors.Is(err, ErrTooManySessions) {
			response.TooManyRequests(w, "Too many open browse sessions")
			return
		}
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to open browse session", err)
		return
	}

	if r.URL.Query().Get("load") == "true" {
		// A failed first load is still a created session; the snapshot says so.
		_ = sess.Store.Fetch(detach(r))
	}

	response.Created(w, CreateSessionResponse{
		SessionID: sess.ID,
		Snapshot:  SnapshotResponseFrom(sess.ID, sess.Store.Snapshot()),
	})
}

// GetSession handles GET /browse/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeSnapshot(w, sess)
}

// DeleteSession handles DELETE /browse/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}
	if err := h.registry.Close(r.Context(), id); err != nil {
		response.NotFound(w, "Browse session not found")
		return
	}
	response.NoContent(w)
}

// Fetch handles POST /browse/sessions/{id}/fetch (reload / retry)
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, sess.Store.Fetch(detach(r)))
}

// SetFilters handles PATCH /browse/sessions/{id}/filters
// The patch is merged into the active filters without loading.
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch map[string]string
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	h.respond(w, r, sess, sess.Store.SetFilters(patch))
}

// ApplyFilters handles PUT /browse/sessions/{id}/filters
func (h *Handler) ApplyFilters(w http.ResponseWriter, r *http.Request) {
	var filters collection.FilterSet
	if err := response.DecodeJSON(r.Body, &filters); err != nil {
		response.BadRequest(w, "Invalid filters body")
		return
	}
	h.ApplyFilterSet(w, r, filters)
}

// ApplyFilterSet replaces the filters of the session named in the URL and
// writes the resulting snapshot.
func (h *Handler) ApplyFilterSet(w http.ResponseWriter, r *http.Request, filters collection.FilterSet) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, sess.Store.ApplyFilters(detach(r), filters))
}

// ApplyFiltersDebounced handles POST /browse/sessions/{id}/filters/debounced
// Used for keystroke-driven input. Patches within the window accumulate and
// load once.
func (h *Handler) ApplyFiltersDebounced(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch map[string]string
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if err := sess.Store.MergeFiltersDebounced(patch); err != nil {
		h.respond(w, r, sess, err)
		return
	}
	response.Accepted(w, SnapshotResponseFrom(sess.ID, sess.Store.Snapshot()))
}

// ClearFilters handles DELETE /browse/sessions/{id}/filters
func (h *Handler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, sess.Store.ClearFilters(detach(r)))
}

// SetPage handles PUT /browse/sessions/{id}/page
func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SetPageRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	h.respond(w, r, sess, sess.Store.SetPage(detach(r), req.Page))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return nil, false
	}
	sess, err := h.registry.Get(id)
	if err != nil {
		response.NotFound(w, "Browse session not found")
		return nil, false
	}
	return sess, true
}

// respond maps a store operation result onto the response. Load failures
// and superseded loads are not request errors: the snapshot describes them.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, sess *Session, err error) {
	var verr *collection.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ValidationError(w, verr.Fields)
	case errors.Is(err, collection.ErrUnknownFilterKey):
		response.BadRequest(w, err.Error())
	case errors.Is(err, collection.ErrStoreClosed):
		response.NotFound(w, "Browse session not found")
	default:
		writeSnapshot(w, sess)
	}
}

func writeSnapshot(w http.ResponseWriter, sess *Session) {
	snap := SnapshotResponseFrom(sess.ID, sess.Store.Snapshot())
	response.WithMeta(w, snap, snap.Meta())
}

// detach keeps request-scoped values (logger, request ID) but not the
// cancellation: a client hanging up must not turn the session into a failure.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
