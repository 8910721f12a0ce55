package api

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/entitlements/core"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

// Context is the per-request context handed to client handlers.
type Context struct {
	core.Context
	userID string
}

// UserID returns the caller's id, empty when the header is missing.
func (c Context) UserID() string {
	return c.userID
}

func newContext(w http.ResponseWriter, r *http.Request) Context {
	return Context{
		Context: core.NewContext(w, r),
		userID:  strings.TrimSpace(r.Header.Get(UserHeader)),
	}
}

// requireUser rejects requests without a user id before the handler runs.
func requireUser[R any](next core.HandlerFunc[Context, R]) core.HandlerFunc[Context, R] {
	return func(ctx Context, req R) core.Response {
		if ctx.UserID() == "" {
			return core.JSONError(core.ErrUnauthorized.WithMessage("missing " + UserHeader + " header"))
		}
		return next(ctx, req)
	}
}
