package savedsearch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/wanderhost/browse-api/internal/collection"
)

// SavedSearch is a named filter preset owned by a traveler
type SavedSearch struct {
	ID         uuid.UUID      `db:"id"`
	TravelerID uuid.UUID      `db:"traveler_id"`
	Name       string         `db:"name"`
	Filters    types.JSONText `db:"filters"`
	CreatedAt  time.Time      `db:"created_at"`
}

// NewSavedSearch builds a preset from a filter set
func NewSavedSearch(travelerID uuid.UUID, name string, filters collection.FilterSet) (*SavedSearch, error) {
	raw, err := json.Marshal(filters)
	if err != nil {
		return nil, err
	}
	return &SavedSearch{
		ID:         uuid.New(),
		TravelerID: travelerID,
		Name:       name,
		Filters:    types.JSONText(raw),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// FilterSet decodes the stored filters. Keys that are no longer recognized
// are dropped.
func (s *SavedSearch) FilterSet() (collection.FilterSet, error) {
	var fs collection.FilterSet
	if len(s.Filters) == 0 {
		return fs, nil
	}
	if err := s.Filters.Unmarshal(&fs); err != nil {
		return collection.FilterSet{}, err
	}
	return fs, nil
}
