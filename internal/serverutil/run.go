// Package serverutil runs an HTTP server with optional TLS and a graceful,
// context-bounded shutdown.
package serverutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TLSConfig names the certificate and key files for a TLS listener. Both
// must be set together.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is
// cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run serves until the context is cancelled or the listener fails, then
// shuts down gracefully within the timeout.
func Run(ctx context.Context, srv *http.Server, tlsCfg TLSConfig, shutdownTimeout time.Duration) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	if (tlsCfg.CertFile == "") != (tlsCfg.KeyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tlsCfg.CertFile != "" {
			err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
