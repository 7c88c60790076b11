package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                    nil,
		"unauthenticated":     ErrUnauthenticated,
		"unauthorized":        fmt.Errorf("remove: %w", ErrUnauthorized),
		"not_found":           ErrNotFound,
		"already_exists":      ErrAlreadyExists,
		"invalid_credentials": ErrInvalidCredentials,
		"store_unavailable":   mapStoreError(persistence.ErrUnavailable),
		"canceled":            context.Canceled,
		"validation":          &ValidationError{FieldErrors: map[string]string{"date": "date is required"}},
		"unexpected":          errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	if err := mapStoreError(persistence.ErrNotFound); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	exhausted := fmt.Errorf("%w: %w", persistence.ErrRetriesExhausted, persistence.ErrConflict)
	if err := mapStoreError(exhausted); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable for exhausted retries, got %v", err)
	}

	if err := mapStoreError(persistence.ErrUnavailable); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	vErr := &ValidationError{FieldErrors: map[string]string{"capacity": "x"}}
	if err := mapStoreError(vErr); err != vErr {
		t.Fatalf("expected validation errors to pass through, got %v", err)
	}
}
