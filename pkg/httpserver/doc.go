// Package httpserver runs an http.Handler with configurable timeouts and
// graceful shutdown driven by a context, and provides a JSON health handler.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Run returns once ctx is cancelled and in-flight requests have finished or
// the shutdown timeout passed. Listen errors are wrapped with ErrStart and
// shutdown errors with ErrShutdown.
package httpserver
