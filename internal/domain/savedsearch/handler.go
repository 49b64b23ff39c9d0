package savedsearch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/middleware"
	"github.com/wanderhost/browse-api/internal/pkg/errorhandler"
	"github.com/wanderhost/browse-api/internal/pkg/response"
	"github.com/wanderhost/browse-api/internal/pkg/validator"
)

// FilterApplier applies a filter set to the browse session named in the
// request URL and writes the resulting snapshot.
type FilterApplier interface {
	ApplyFilterSet(w http.ResponseWriter, r *http.Request, filters collection.FilterSet)
}

// Handler handles saved search HTTP requests
type Handler struct {
	repo    Storage
	applier FilterApplier
}

// NewHandler creates saved search handler
func NewHandler(repo Storage, applier FilterApplier) *Handler {
	return &Handler{repo: repo, applier: applier}
}

// List handles GET /browse/saved-searches
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	travelerID := middleware.GetTravelerID(r.Context())

	items, err := h.repo.ListByTraveler(r.Context(), travelerID)
	if err != nil {
		errorhandler.LogDatabaseError(r.Context(), "list saved searches", err)
		response.InternalError(w)
		return
	}

	out := make([]*Response, len(items))
	for i, s := range items {
		out[i] = ResponseFromEntity(s)
	}
	response.OK(w, out)
}

// Create handles POST /browse/saved-searches
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}
	if err := req.Filters.Validate(); err != nil {
		var verr *collection.ValidationError
		if errors.As(err, &verr) {
			response.ValidationError(w, verr.Fields)
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	s, err := NewSavedSearch(middleware.GetTravelerID(r.Context()), req.Name, req.Filters)
	if err != nil {
		response.InternalError(w)
		return
	}

	if err := h.repo.Create(r.Context(), s); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateName):
			response.Conflict(w, "A saved search with this name already exists")
		case errors.Is(err, ErrLimitReached):
			response.Error(w, http.StatusUnprocessableEntity, "LIMIT_REACHED", "Saved search limit reached")
		default:
			errorhandler.LogDatabaseError(r.Context(), "create saved search", err)
			response.InternalError(w)
		}
		return
	}

	response.Created(w, ResponseFromEntity(s))
}

// Delete handles DELETE /browse/saved-searches/{searchID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "searchID"))
	if err != nil {
		response.BadRequest(w, "Invalid saved search ID")
		return
	}

	if err := h.repo.Delete(r.Context(), middleware.GetTravelerID(r.Context()), id); err != nil {
		if errors.Is(err, ErrSavedSearchNotFound) {
			response.NotFound(w, "Saved search not found")
			return
		}
		errorhandler.LogDatabaseError(r.Context(), "delete saved search", err)
		response.InternalError(w)
		return
	}
	response.NoContent(w)
}

// Apply handles POST /browse/sessions/{id}/saved-searches/{searchID}/apply
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "searchID"))
	if err != nil {
		response.BadRequest(w, "Invalid saved search ID")
		return
	}

	s, err := h.repo.GetByID(r.Context(), middleware.GetTravelerID(r.Context()), id)
	if err != nil {
		if errors.Is(err, ErrSavedSearchNotFound) {
			response.NotFound(w, "Saved search not found")
			return
		}
		errorhandler.LogDatabaseError(r.Context(), "get saved search", err)
		response.InternalError(w)
		return
	}

	filters, err := s.FilterSet()
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Saved search is corrupt", err)
		return
	}
	h.applier.ApplyFilterSet(w, r, filters)
}
