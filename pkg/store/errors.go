package store

import "errors"

// ErrNotFound is returned by every repository when a row does not
// exist, so services never depend on driver error types.
var ErrNotFound = errors.New("record not found")
