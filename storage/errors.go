package storage

import "errors"

var (
	ErrNotFound = errors.New("storage: not found")
	ErrEmptyKey = errors.New("storage: empty key")
	ErrClosed   = errors.New("storage: closed")
	ErrMismatch = errors.New("storage: replica mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
