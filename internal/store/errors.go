package store

import "errors"

// ErrNotFound is returned when the token document does not exist.
var ErrNotFound = errors.New("token document not found")
