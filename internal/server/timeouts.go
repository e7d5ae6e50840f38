// internal/server/timeouts.go
//
// HTTP server construction and lifecycle.
//
// Context
// -------
// Two request profiles share one listener: small JSON admin calls, and
// populate batches that mirror up to a full chunk of posts before they can
// answer.  The write timeout is sized for the batch case; headers and idle
// keep-alives stay on tight budgets.  Run handles the serve loop and a
// signal-driven graceful drain so cmd/web stays declarative.

package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	// A populate batch syncs up to 100 posts across two blog contexts
	// before responding.
	writeTimeout    = 60 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// New constructs the listener with the service's timeout profile.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.  An
// in-progress populate batch finishes inside the drain window; the client
// resumes from its checkpoint after restart.
func Run(srv *http.Server, log *zap.SugaredLogger) error {
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		log.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
