package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Auth     *AuthHandler
	Sessions *SessionHandler
	Students *StudentHandler
	Resolver IdentityResolver
	Live     http.Handler
	Metrics  http.Handler
	// Health reports whether the record store answers.
	Health     func(ctx context.Context) error
	Middleware []func(http.Handler) http.Handler
	Logger     *slog.Logger
}

// NewRouter builds the chi router serving the API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, newResponder(logger)))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Auth != nil {
		r.Post("/login", cfg.Auth.Login)
		r.Post("/logout", cfg.Auth.Logout)
	}

	r.Group(func(r chi.Router) {
		if cfg.Resolver != nil {
			r.Use(RequireIdentity(cfg.Resolver, logger))
		}

		if cfg.Auth != nil {
			r.Get("/me", cfg.Auth.Me)
		}
		if cfg.Live != nil {
			r.Handle("/live", cfg.Live)
		}

		if h := cfg.Sessions; h != nil {
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
				r.Post("/{id}/confirmations", h.Confirm)
				r.Get("/{id}/roster", h.Roster)
			})
			r.Delete("/confirmations/{id}", h.RemoveConfirmation)
			r.Get("/me/attendance", h.MyAttendance)
		}

		if h := cfg.Students; h != nil {
			r.Route("/students", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Put("/{id}", h.Update)
				r.Delete("/{id}", h.Delete)
				r.Put("/{id}/payment-status", h.SetPaymentStatus)
				r.Put("/{id}/payment-terms", h.UpdatePaymentTerms)
			})
			r.Get("/me/profile", h.MyProfile)
			r.Post("/me/payment/proof", h.SubmitPaymentProof)
			r.Post("/me/payment/confirm", h.ConfirmPayment)
			r.Get("/ranking", h.Ranking)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error, resp responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				resp.loggerFor(r.Context()).WarnContext(r.Context(), "health check failed", "error", err)
				resp.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		resp.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
