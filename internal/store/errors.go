package store

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("store: not found")
