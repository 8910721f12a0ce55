// Package httpserver runs an http.Handler with configured timeouts and a
// graceful, deadline-bounded shutdown.
//
// Run blocks until its context is cancelled or the listener fails. Signal
// handling belongs to the caller, which lets the server share one context
// with other long-running workers:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Liveness and Readiness return probe handlers; readiness runs named
// dependency checks against the request context.
package httpserver
