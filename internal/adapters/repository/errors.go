package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrClosed        = errors.New("store closed")
)
