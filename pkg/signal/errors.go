package signal

import "errors"

var (
	ErrStorageNotAvailable = errors.New("signal storage is unavailable")
	ErrMissingKind         = errors.New("signal kind is required")
	ErrNotifierQueueFull   = errors.New("signal notifier queue is full")
	ErrNotifierClosed      = errors.New("signal notifier is closed")
)
