package store

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrCapacityFull        = errors.New("event is full")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
