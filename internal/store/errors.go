// Package store holds the error contract shared by every storage backend.
package store

import "errors"

// ErrNotFound is returned when a referenced id does not exist. Idempotent
// operations translate it to a benign false; strict operations surface it.
var ErrNotFound = errors.New("store: not found")

// ErrVersionConflict is returned when a compare-and-swap update lost the
// race. Callers retry a bounded number of times before surfacing a storage
// failure.
var ErrVersionConflict = errors.New("store: version conflict")

// ErrDuplicateActiveEdge is returned when an insert would violate the
// one-active-edge-per-(source,target,type,agent) constraint.
var ErrDuplicateActiveEdge = errors.New("store: duplicate active edge")
