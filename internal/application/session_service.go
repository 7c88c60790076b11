package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// SessionService lets administrators create, edit and delete sessions.
type SessionService struct {
	store    persistence.Store
	policy   AuthorizationPolicy
	retry    *persistence.RetryHelper
	notifier SeatNotifier
	logger   *slog.Logger
}

// NewSessionService constructs a session service with the provided dependencies.
func NewSessionService(store persistence.Store, policy AuthorizationPolicy, opts ...Option) *SessionService {
	return NewSessionServiceWithLogger(store, policy, nil, opts...)
}

// NewSessionServiceWithLogger constructs a session service with a specified logger.
func NewSessionServiceWithLogger(store persistence.Store, policy AuthorizationPolicy, logger *slog.Logger, opts ...Option) *SessionService {
	o := buildOptions(opts)
	return &SessionService{
		store:    store,
		policy:   policy,
		retry:    persistence.NewRetryHelper(o.retry, nil),
		notifier: o.notifier,
		logger:   defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// CreateSession validates input and stores a new session.
func (s *SessionService) CreateSession(ctx context.Context, caller Identity, input SessionInput) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSession", "identity", normalizeEmail(caller.Email))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", session.ID).InfoContext(ctx, "session created")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}

	input = normalizeSessionInput(input)
	if vErr := validateSessionInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	rec, createErr := s.store.Create(ctx, CollectionSessions, sessionFields(input))
	if createErr != nil {
		err = mapStoreError(createErr)
		return
	}
	session = sessionFromRecord(rec)
	return
}

// UpdateSession replaces the editable fields of a session. Capacity cannot
// drop below the number of seats already confirmed.
func (s *SessionService) UpdateSession(ctx context.Context, caller Identity, sessionID string, input SessionInput) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSession",
		"identity", normalizeEmail(caller.Email),
		"session_id", sessionID,
	)
	var confirmed int
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session updated")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}

	input = normalizeSessionInput(input)
	if vErr := validateSessionInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	err = s.retry.WithRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			catalog := NewSessionCatalog(tx)
			existing, err := catalog.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			if confirmed, err = catalog.CountConfirmations(ctx, existing.ID); err != nil {
				return err
			}
			if input.Capacity < confirmed {
				vErr := &ValidationError{}
				vErr.add("capacity", "capacity cannot be lower than confirmed attendance")
				return vErr
			}
			if err := tx.Update(ctx, CollectionSessions, existing.ID, sessionFields(input)); err != nil {
				return err
			}
			session = Session{
				ID:          existing.ID,
				Date:        input.Date,
				Time:        input.Time,
				Capacity:    input.Capacity,
				Methodology: input.Methodology,
			}
			return nil
		})
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	if s.notifier != nil {
		s.notifier.PublishSeats(SeatUpdate{SessionID: session.ID, Confirmed: confirmed, Capacity: session.Capacity})
	}
	return
}

// DeleteSession removes a session together with its confirmations.
func (s *SessionService) DeleteSession(ctx context.Context, caller Identity, sessionID string) (err error) {
	if s == nil {
		return fmt.Errorf("SessionService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteSession",
		"identity", normalizeEmail(caller.Email),
		"session_id", sessionID,
	)
	removed := 0
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("confirmations_removed", removed).InfoContext(ctx, "session deleted")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	err = s.retry.WithRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			catalog := NewSessionCatalog(tx)
			session, err := catalog.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			confirmations, err := catalog.Confirmations(ctx, session.ID)
			if err != nil {
				return err
			}
			for _, c := range confirmations {
				if err := tx.Delete(ctx, CollectionConfirmations, c.ID); err != nil {
					return err
				}
			}
			removed = len(confirmations)
			return tx.Delete(ctx, CollectionSessions, session.ID)
		})
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	if s.notifier != nil {
		s.notifier.PublishSeats(SeatUpdate{SessionID: sessionID, Removed: true})
	}
	return
}

func normalizeSessionInput(input SessionInput) SessionInput {
	input.Date = strings.TrimSpace(input.Date)
	input.Time = strings.TrimSpace(input.Time)
	input.Methodology = strings.TrimSpace(input.Methodology)
	return input
}

func validateSessionInput(input SessionInput) *ValidationError {
	vErr := &ValidationError{}

	switch {
	case input.Date == "":
		vErr.add("date", "date is required")
	case !validDate(input.Date):
		vErr.add("date", "date must be YYYY-MM-DD")
	}
	switch {
	case input.Time == "":
		vErr.add("time", "time is required")
	case !validTime(input.Time):
		vErr.add("time", "time must be HH:MM")
	}
	if input.Capacity < 1 {
		vErr.add("capacity", "capacity must be positive")
	}

	return vErr
}
