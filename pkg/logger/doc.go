// Package logger builds slog loggers for the service and keeps attribute
// names consistent.
//
// New creates a *slog.Logger from functional options. WithEnvironment picks
// text output at debug level for development and JSON at info level for
// staging and production. WithContextExtractors injects request-scoped values
// (request id, environment) on every record through LogHandlerDecorator.
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, cfg.ServiceName),
//	    logger.WithLevelName(cfg.LogLevel),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "transition applied",
//	    logger.UserID(userID),
//	    logger.EventID(evt.ID),
//	)
//
// Helpers such as Error and UserID return an empty Attr for empty input, so
// they can be passed without nil checks.
package logger
