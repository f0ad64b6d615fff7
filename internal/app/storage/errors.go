package storage

import "errors"

// ErrNotFound is returned (possibly wrapped) when a requested record does
// not exist. Both the memory and postgres stores normalise their misses to
// this sentinel so services can translate it uniformly.
var ErrNotFound = errors.New("not found")
