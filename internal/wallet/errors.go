package wallet

import "errors"

var (
	// ErrMergeDateMismatch is shown to the user as is.
	ErrMergeDateMismatch = errors.New("events on different dates cannot be merged; change the date of one of them before merging")
	ErrInvalidDateFilter = errors.New("date filter must be in YYYY-MM-DD format")
	ErrInvalidDate       = errors.New("invalid event date")
	ErrInvalidTime       = errors.New("invalid event time")
)
