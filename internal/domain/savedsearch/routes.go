package savedsearch

import (
	"github.com/go-chi/chi/v5"

	"github.com/wanderhost/browse-api/internal/middleware"
)

// Register adds the saved search routes to the browse router.
// All of them require a traveler identity.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireTraveler)

		r.Get("/saved-searches", h.List)
		r.Post("/saved-searches", h.Create)
		r.Delete("/saved-searches/{searchID}", h.Delete)
		r.Post("/sessions/{id}/saved-searches/{searchID}/apply", h.Apply)
	})
}
