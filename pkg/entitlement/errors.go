package entitlement

import "errors"

var (
	ErrNotFound         = errors.New("entitlement not found")
	ErrConflict         = errors.New("entitlement was modified concurrently")
	ErrTooManyConflicts = errors.New("entitlement transition gave up after repeated conflicts")
	ErrMissingUserID    = errors.New("user id is required")
	ErrMissingMarker    = errors.New("event marker is required")
)
