package domain

import "errors"

// Domain errors
var (
	ErrPlayerNotFound  = errors.New("player not found in leaderboard")
	ErrInvalidIdentity = errors.New("invalid session identity")
	ErrInvalidScore    = errors.New("invalid score value")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrJobRunning      = errors.New("another ranking job is running")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound)
}

// IsClientError reports whether err was caused by bad input
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidIdentity)
}
