package domain

import "errors"

// ErrNotFound is returned by stores and external clients when the requested
// record does not exist. Services translate it into apperr kinds.
var ErrNotFound = errors.New("not found")
