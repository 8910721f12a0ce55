// Package requestid tags each HTTP request with a correlation id.
//
// Middleware reuses a well-formed X-Request-ID from the caller or generates a
// UUID, stores it in the request context and echoes it in the response. The
// id reaches log records through LoggerExtractor, which plugs into
// logger.WithContextExtractors.
package requestid
