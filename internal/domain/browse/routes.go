package browse

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the browse router. Extra registrars add routes that live
// under the same prefix (saved searches).
func (h *Handler) Routes(extra ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()

	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Delete("/sessions/{id}", h.DeleteSession)
	r.Post("/sessions/{id}/fetch", h.Fetch)

	// Filters
	r.Patch("/sessions/{id}/filters", h.SetFilters)
	r.Put("/sessions/{id}/filters", h.ApplyFilters)
	r.Delete("/sessions/{id}/filters", h.ClearFilters)
	r.Post("/sessions/{id}/filters/debounced", h.ApplyFiltersDebounced)

	// Pagination
	r.Put("/sessions/{id}/page", h.SetPage)

	// Realtime
	r.Get("/sessions/{id}/ws", h.Stream)

	for _, register := range extra {
		register(r)
	}
	return r
}
