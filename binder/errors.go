package binder

import "github.com/dmitrymomot/entitlements/core"

// Binding errors are HTTPError values so core renders them with the right
// status. Wrapped causes stay in logs.
var (
	ErrMissingContentType   = core.ErrUnsupportedMediaType.WithMessage("missing content type, expected application/json")
	ErrUnsupportedMediaType = core.ErrUnsupportedMediaType.WithMessage("expected application/json")
	ErrInvalidJSON          = core.ErrBadRequest.WithMessage("invalid JSON request body")
	ErrBodyTooLarge         = core.ErrRequestEntityTooLarge.WithMessage("request body too large")
)
