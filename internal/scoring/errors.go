package scoring

import "errors"

var (
	// ErrInvalidRequest means the caller's request failed validation.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyReviewed means the review was already resolved by an analyst.
	ErrAlreadyReviewed = errors.New("already reviewed")
	// ErrStorageUnavailable means a backing store could not serve the call.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrConfiguration means the service is misconfigured and cannot score.
	ErrConfiguration = errors.New("configuration error")
)
