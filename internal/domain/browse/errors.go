package browse

import "errors"

var (
	ErrSessionNotFound = errors.New("browse session not found")
	ErrTooManySessions = errors.New("too many open browse sessions")
)
