package database

import "errors"

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")

	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidNumber is returned for phone numbers that cannot be parsed.
	ErrInvalidNumber = errors.New("invalid phone number")
)
