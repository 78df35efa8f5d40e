package storage

import "errors"

// ErrAccountNotFound is returned when no account matches the requested id
var ErrAccountNotFound = errors.New("account not found")

// ErrUnknownStrategy is returned when a recommendation names no known strategy
var ErrUnknownStrategy = errors.New("unknown strategy")
