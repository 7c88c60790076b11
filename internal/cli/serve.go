package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/ghmassaro/presenca-treino/internal/http"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Run the HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					a.logger.Error("failed to close storage", "error", cerr)
				}
			}()
			return runServe(cmd.Context(), a)
		},
	}
}

// newHandler builds the HTTP handler for a.
func newHandler(a *app) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:     httptransport.NewAuthHandler(a.auth, a.admins, a.cfg.SecureCookie, a.logger),
		Sessions: httptransport.NewSessionHandler(a.attendance, a.sessions, a.logger),
		Students: httptransport.NewStudentHandler(a.students, a.logger),
		Resolver: a.auth,
		Live:     a.hub,
		Metrics:  a.recorder.Handler(),
		Health:   a.store.Ping,
		Logger:   a.logger,
	})
}

// runServe serves until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func runServe(ctx context.Context, a *app) error {
	server := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           newHandler(a),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("presenca API listening", "addr", server.Addr, "store", a.cfg.Store)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	a.hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("failed to shutdown server", "error", err)
		return err
	}
	a.logger.Info("presenca API stopped")
	return nil
}
