package savedsearch

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MaxPerTraveler caps how many presets one traveler may keep
const MaxPerTraveler = 50

const schema = `
CREATE TABLE IF NOT EXISTS saved_searches (
	id          UUID PRIMARY KEY,
	traveler_id UUID NOT NULL,
	name        VARCHAR(80) NOT NULL,
	filters     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT saved_searches_traveler_name_key UNIQUE (traveler_id, name)
);
CREATE INDEX IF NOT EXISTS idx_saved_searches_traveler ON saved_searches (traveler_id, created_at DESC);
`

// Storage is the persistence the handler needs
type Storage interface {
	Create(ctx context.Context, s *SavedSearch) error
	ListByTraveler(ctx context.Context, travelerID uuid.UUID) ([]*SavedSearch, error)
	GetByID(ctx context.Context, travelerID, id uuid.UUID) (*SavedSearch, error)
	Delete(ctx context.Context, travelerID, id uuid.UUID) error
}

// Repository stores saved searches in PostgreSQL
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates saved search repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Create inserts a saved search
func (r *Repository) Create(ctx context.Context, s *SavedSearch) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Serializes creates per traveler until commit, including the first one.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.TravelerID.String()); err != nil {
		return err
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM saved_searches WHERE traveler_id = $1`, s.TravelerID); err != nil {
		return err
	}
	if count >= MaxPerTraveler {
		return ErrLimitReached
	}

	query := `
		INSERT INTO saved_searches (id, traveler_id, name, filters, created_at)
		VALUES (:id, :traveler_id, :name, :filters, :created_at)
	`
	if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	return tx.Commit()
}

// ListByTraveler returns a traveler's presets, newest first
func (r *Repository) ListByTraveler(ctx context.Context, travelerID uuid.UUID) ([]*SavedSearch, error) {
	var items []*SavedSearch
	query := `
		SELECT id, traveler_id, name, filters, created_at
		FROM saved_searches
		WHERE traveler_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &items, query, travelerID); err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID returns a preset owned by the traveler
func (r *Repository) GetByID(ctx context.Context, travelerID, id uuid.UUID) (*SavedSearch, error) {
	var s SavedSearch
	query := `
		SELECT id, traveler_id, name, filters, created_at
		FROM saved_searches
		WHERE id = $1 AND traveler_id = $2
	`
	if err := r.db.GetContext(ctx, &s, query, id, travelerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSavedSearchNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Delete removes a preset owned by the traveler
func (r *Repository) Delete(ctx context.Context, travelerID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = $1 AND traveler_id = $2`, id, travelerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSavedSearchNotFound
	}
	return nil
}
