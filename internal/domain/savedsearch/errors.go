package savedsearch

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrSavedSearchNotFound = errors.New("saved search not found")
	ErrDuplicateName       = errors.New("a saved search with this name already exists")
	ErrLimitReached        = errors.New("saved search limit reached")
)

const sqlStateUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == sqlStateUniqueViolation
}
