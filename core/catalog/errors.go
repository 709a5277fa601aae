package catalog

import "errors"

var (
	ErrNotFound        = errors.New("catalog item not found")
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict means another writer saved the item between our load and persist.
	ErrConflict = errors.New("catalog item was modified concurrently")
)
