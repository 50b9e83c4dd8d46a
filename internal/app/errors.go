package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidUser     = errors.New("invalid user")
	ErrDuplicateReview = errors.New("review already submitted for this project")
	ErrSelfReview      = errors.New("users cannot review themselves")
	ErrInvalidReview   = errors.New("invalid review")
	ErrInvalidTask     = errors.New("invalid task")
	ErrNotStarted      = errors.New("service not started")

	ErrInvalidProjectUpdate = errors.New("invalid project update")
)
