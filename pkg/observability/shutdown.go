package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownFunc is a cleanup function run during graceful shutdown.
type ShutdownFunc func(context.Context) error

// WaitForShutdown blocks until SIGINT or SIGTERM, then shuts down the HTTP
// servers and runs the cleanup functions in order. Cleanup errors are logged
// and the first one is returned.
func WaitForShutdown(logger *Logger, timeout time.Duration, servers []*http.Server, funcs ...ShutdownFunc) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	for _, server := range servers {
		if server == nil {
			continue
		}
		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("HTTP server shutdown error")
			if firstErr == nil {
				firstErr = fmt.Errorf("HTTP server shutdown failed: %w", err)
			}
		}
	}

	for i, fn := range funcs {
		if err := fn(ctx); err != nil {
			logger.WithError(err).Errorf("Shutdown function %d failed", i)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		logger.Info("Graceful shutdown complete")
	}
	return firstErr
}
