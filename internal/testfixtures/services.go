package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/application"
	"github.com/ghmassaro/presenca-treino/internal/identity"
	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// TokenSecret signs the tokens issued by factory-built services.
const TokenSecret = "fixture-secret-0123456789"

// CheapArgon2id keeps password hashing fast in tests.
var CheapArgon2id = identity.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// ServiceFactory builds the application services over a store with a
// deterministic clock and Coach as the only administrator.
type ServiceFactory struct {
	Clock  *Clock
	Policy application.AuthorizationPolicy
	Logger *slog.Logger
	Tokens *identity.TokenManager
	// Options are appended to every service built by the factory.
	Options []application.Option
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. It panics if
// the token manager cannot be built, which only happens for an empty secret.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:  NewClock(time.Time{}),
		Policy: application.NewAdminAllowlist(Coach.Email),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Tokens == nil {
		tokens, err := identity.NewTokenManager([]byte(TokenSecret), time.Hour)
		if err != nil {
			panic(err)
		}
		factory.Tokens = tokens
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithPolicy overrides the administrator policy.
func WithPolicy(policy application.AuthorizationPolicy) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Policy = policy
	}
}

// WithLogger overrides the discard logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// WithServiceOptions appends application options such as a seat notifier.
func WithServiceOptions(opts ...application.Option) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Options = append(factory.Options, opts...)
	}
}

// Services groups the application services sharing one store.
type Services struct {
	Auth       *application.AuthService
	Attendance *application.AttendanceService
	Sessions   *application.SessionService
	Students   *application.StudentService
}

// NewServices builds every service over store.
func (f *ServiceFactory) NewServices(store persistence.Store) Services {
	now := f.Clock.NowFunc()
	opts := append([]application.Option{application.WithLocation(Location())}, f.Options...)
	return Services{
		Auth:       application.NewAuthServiceWithLogger(store, f.Tokens, identity.Hasher(CheapArgon2id), identity.VerifyPassword, now, f.Logger, opts...),
		Attendance: application.NewAttendanceServiceWithLogger(store, f.Policy, now, f.Logger, opts...),
		Sessions:   application.NewSessionServiceWithLogger(store, f.Policy, f.Logger, opts...),
		Students:   application.NewStudentServiceWithLogger(store, f.Policy, now, f.Logger, opts...),
	}
}

// Token issues a token for who at the factory clock's time.
func (f *ServiceFactory) Token(who application.Identity) (string, error) {
	token, _, err := f.Tokens.Issue(who, f.Clock.Now())
	return token, err
}
