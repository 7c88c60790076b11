package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// TokenIssuer signs identity tokens and verifies them on later requests.
type TokenIssuer interface {
	Issue(identity Identity, now time.Time) (token string, expiresAt time.Time, err error)
	Verify(token string, now time.Time) (Identity, error)
	Revoke(token string, now time.Time) error
}

// PasswordHasher derives a storable hash from a password.
type PasswordHasher func(password string) (string, error)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

const minPasswordLength = 8

// AuthService is the built-in identity provider: it owns local accounts,
// issues tokens on login and resolves tokens back to identities.
type AuthService struct {
	store          persistence.Store
	tokens         TokenIssuer
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	now            func() time.Time
	retry          *persistence.RetryHelper
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(store persistence.Store, tokens TokenIssuer, hash PasswordHasher, verify PasswordVerifier, now func() time.Time, opts ...Option) *AuthService {
	return NewAuthServiceWithLogger(store, tokens, hash, verify, now, nil, opts...)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(store persistence.Store, tokens TokenIssuer, hash PasswordHasher, verify PasswordVerifier, now func() time.Time, logger *slog.Logger, opts ...Option) *AuthService {
	if now == nil {
		now = time.Now
	}
	o := buildOptions(opts)
	return &AuthService{
		retry:          persistence.NewRetryHelper(o.retry, nil),
		store:          store,
		tokens:         tokens,
		hashPassword:   hash,
		verifyPassword: verify,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// CreateAccount stores a new local account with a hashed password.
func (s *AuthService) CreateAccount(ctx context.Context, input AccountInput) (account Account, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email := normalizeEmail(input.Email)
	logger := s.loggerWith(ctx, "CreateAccount", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create account", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("account_id", account.ID).InfoContext(ctx, "account created")
	}()

	vErr := &ValidationError{}
	switch {
	case email == "":
		vErr.add("email", "email is required")
	case !validEmail(email):
		vErr.add("email", "email is invalid")
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		vErr.add("display_name", "display name is required")
	}
	if len(input.Password) < minPasswordLength {
		vErr.add("password", "password is too short")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil || s.hashPassword == nil {
		err = fmt.Errorf("account storage not configured")
		return
	}

	hash, hashErr := s.hashPassword(input.Password)
	if hashErr != nil {
		err = fmt.Errorf("hash password: %w", hashErr)
		return
	}

	// A lost race on the unique email index is a conflict; the retry re-reads
	// and reports the existing account as ErrAlreadyExists.
	err = s.retry.WithRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			existing, err := tx.QueryEquals(ctx, CollectionAccounts, fieldEmail, email)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return ErrAlreadyExists
			}
			rec, err := tx.Create(ctx, CollectionAccounts, persistence.Fields{
				fieldEmail:        email,
				fieldDisplayName:  displayName,
				fieldPasswordHash: hash,
				fieldCreatedAt:    s.now(),
			})
			if err != nil {
				return err
			}
			account = accountFromRecord(rec)
			return nil
		})
	})
	err = mapStoreError(err)
	return
}

// Login checks the password of an account and issues a token for it.
func (s *AuthService) Login(ctx context.Context, email, password string) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("expires_at", result.ExpiresAt).InfoContext(ctx, "login succeeded")
	}()

	if email == "" || password == "" {
		err = ErrInvalidCredentials
		return
	}
	if s.store == nil || s.tokens == nil || s.verifyPassword == nil {
		err = fmt.Errorf("identity provider not configured")
		return
	}

	rec, findErr := findByEmail(ctx, s.store, CollectionAccounts, email)
	if findErr != nil {
		if errors.Is(findErr, ErrNotFound) {
			err = ErrInvalidCredentials
			return
		}
		err = findErr
		return
	}
	account := accountFromRecord(rec)

	if verifyErr := s.verifyPassword(account.PasswordHash, password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	identity := Identity{Email: account.Email, DisplayName: account.DisplayName}
	token, expiresAt, issueErr := s.tokens.Issue(identity, s.now())
	if issueErr != nil {
		err = fmt.Errorf("issue token: %w", issueErr)
		return
	}

	result = LoginResult{Token: token, ExpiresAt: expiresAt, Identity: identity}
	return
}

// Identify resolves a token to the identity it was issued for. Missing,
// expired, revoked or forged tokens yield ErrUnauthenticated.
func (s *AuthService) Identify(ctx context.Context, token string) (Identity, error) {
	if s == nil || s.tokens == nil {
		return Identity{}, fmt.Errorf("identity provider not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	identity, err := s.tokens.Verify(token, s.now())
	if err != nil {
		s.loggerWith(ctx, "Identify").DebugContext(ctx, "token rejected", "error", err)
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return identity, nil
}

// SignOut revokes the token so that later calls to Identify reject it.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if s == nil || s.tokens == nil {
		return fmt.Errorf("identity provider not configured")
	}

	logger := s.loggerWith(ctx, "SignOut")
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrUnauthenticated
	}
	if err := s.tokens.Revoke(token, s.now()); err != nil {
		err = fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		logger.ErrorContext(ctx, "failed to sign out", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "signed out")
	return nil
}
