package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/application"
	"github.com/ghmassaro/presenca-treino/internal/config"
	"github.com/ghmassaro/presenca-treino/internal/identity"
	"github.com/ghmassaro/presenca-treino/internal/logging"
	"github.com/ghmassaro/presenca-treino/internal/metrics"
	"github.com/ghmassaro/presenca-treino/internal/persistence"
	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
	"github.com/ghmassaro/presenca-treino/internal/persistence/sqlite"
	"github.com/ghmassaro/presenca-treino/internal/realtime"
)

// timeNow is the clock handed to the services.
var timeNow = time.Now

// app is the wired service graph shared by the commands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    persistence.Store
	recorder *metrics.Recorder
	hub      *realtime.Hub
	admins   application.AdminAllowlist

	auth       *application.AuthService
	attendance *application.AttendanceService
	sessions   *application.SessionService
	students   *application.StudentService
}

// openApp loads configuration, opens and migrates the store and builds the
// services. A nil policy grants administrator rights from PRESENCA_ADMIN_EMAILS.
func openApp(ctx context.Context, opts *RootOptions, logOutput io.Writer, policy application.AuthorizationPolicy) (*app, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, logOutput)
	if err != nil {
		return nil, err
	}

	raw, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	store := metrics.InstrumentStore(raw, recorder)

	tokens, err := identity.NewTokenManager([]byte(cfg.TokenSecret), cfg.TokenTTL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("tokens: %w", err)
	}

	admins := application.NewAdminAllowlist(cfg.AdminEmails...)
	if policy == nil {
		policy = admins
	}

	retry := persistence.DefaultRetryConfig()
	retry.MaxRetries = cfg.ConfirmRetries

	hub := realtime.NewHub(logger)
	serviceOpts := []application.Option{
		application.WithLocation(cfg.Location),
		application.WithRetryConfig(retry),
		application.WithConfirmationObserver(recorder),
		application.WithSeatNotifier(hub),
	}
	now := timeNow

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		recorder:   recorder,
		hub:        hub,
		admins:     admins,
		auth:       application.NewAuthServiceWithLogger(store, tokens, identity.HashPassword, identity.VerifyPassword, now, logger, application.WithRetryConfig(retry)),
		attendance: application.NewAttendanceServiceWithLogger(store, policy, now, logger, serviceOpts...),
		sessions:   application.NewSessionServiceWithLogger(store, policy, logger, serviceOpts...),
		students:   application.NewStudentServiceWithLogger(store, policy, now, logger, serviceOpts...),
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.WarnContext(ctx, "using the in-memory store; data is lost on exit")
		return memory.Open(nil), nil
	}

	storage, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), sqlite.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if _, err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return storage, nil
}

// Close stops the live hub and releases the store.
func (a *app) Close() error {
	a.hub.Close()
	if err := a.store.Close(); err != nil && !errors.Is(err, persistence.ErrUnavailable) {
		return err
	}
	return nil
}
