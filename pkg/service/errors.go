package service

import "errors"

var (
	// ErrConflict indicates a record with the same id already exists.
	ErrConflict = errors.New("record already exists")

	// ErrRateLimited indicates the caller exceeded the configured rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")
)
