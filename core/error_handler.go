package core

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// NewErrorHandler returns an ErrorHandler that logs err at a level derived
// from its status (warn for 4xx, error for 5xx) and renders it as JSON.
// Request-scoped attributes such as the request id come from the logger's
// context extractors.
func NewErrorHandler[C Context](log *slog.Logger) ErrorHandler[C] {
	if log == nil {
		log = logger.Discard()
	}

	return func(ctx C, err error) {
		status := StatusOf(err)
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		if renderErr := JSONError(err).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
