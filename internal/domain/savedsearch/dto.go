package savedsearch

import (
	"time"

	"github.com/google/uuid"

	"github.com/wanderhost/browse-api/internal/collection"
)

// CreateRequest is the body of POST /saved-searches
type CreateRequest struct {
	Name    string               `json:"name" validate:"required,min=1,max=80"`
	Filters collection.FilterSet `json:"filters"`
}

// Response is the client view of a saved search
type Response struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Filters   map[string]string `json:"filters"`
	CreatedAt time.Time         `json:"created_at"`
}

// ResponseFromEntity converts a saved search
func ResponseFromEntity(s *SavedSearch) *Response {
	fs, _ := s.FilterSet()
	return &Response{
		ID:        s.ID,
		Name:      s.Name,
		Filters:   fs.Map(),
		CreatedAt: s.CreatedAt,
	}
}
