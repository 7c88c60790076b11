package application

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// AttendanceService confirms seats in sessions under a hard capacity limit.
type AttendanceService struct {
	store    persistence.Store
	policy   AuthorizationPolicy
	now      func() time.Time
	location *time.Location
	retry    *persistence.RetryHelper
	observer ConfirmationObserver
	notifier SeatNotifier
	logger   *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(store persistence.Store, policy AuthorizationPolicy, now func() time.Time, opts ...Option) *AttendanceService {
	return NewAttendanceServiceWithLogger(store, policy, now, nil, opts...)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(store persistence.Store, policy AuthorizationPolicy, now func() time.Time, logger *slog.Logger, opts ...Option) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	o := buildOptions(opts)
	s := &AttendanceService{
		store:    store,
		policy:   policy,
		now:      now,
		location: o.location,
		observer: o.observer,
		notifier: o.notifier,
		logger:   defaultLogger(logger),
	}
	s.retry = persistence.NewRetryHelper(o.retry, func(attempt int, err error) {
		if s.observer != nil {
			s.observer.ConfirmationRetried()
		}
		s.logger.Debug("retrying contended confirmation", "attempt", attempt, "error", err)
	})
	return s
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// ConfirmAttendance reserves a seat in the session for caller. The capacity
// check and the write run in one transaction which is retried on conflict,
// so concurrent callers can never push the count above capacity.
func (s *AttendanceService) ConfirmAttendance(ctx context.Context, sessionID string, caller Identity) (result ConfirmationResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	email := normalizeEmail(caller.Email)
	sessionID = strings.TrimSpace(sessionID)
	logger := s.loggerWith(ctx, "ConfirmAttendance",
		"session_id", sessionID,
		"identity", email,
	)
	var update SeatUpdate
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result", string(result), "confirmed", update.Confirmed).InfoContext(ctx, "attendance confirmation handled")
	}()

	if err = requireIdentity(caller); err != nil {
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
			existing, err := catalog.Confirmations(ctx, session.ID)
			if err != nil {
				return err
			}

			update = SeatUpdate{SessionID: session.ID, Confirmed: len(existing), Capacity: session.Capacity}
			for _, confirmation := range existing {
				if normalizeEmail(confirmation.Identity) == email {
					result = ResultAlreadyConfirmed
					return nil
				}
			}
			if len(existing) >= session.Capacity {
				result = ResultFull
				return nil
			}

			_, err = tx.Create(ctx, CollectionConfirmations, persistence.Fields{
				fieldSessionID:   session.ID,
				fieldIdentity:    email,
				fieldDisplayName: strings.TrimSpace(caller.DisplayName),
				fieldConfirmedAt: s.now(),
			})
			if err != nil {
				return err
			}
			update.Confirmed++
			result = ResultConfirmed
			return nil
		})
	})
	if err != nil {
		result = ""
		err = mapStoreError(err)
		return
	}

	if s.observer != nil {
		s.observer.ConfirmationRecorded(result)
	}
	if result == ResultConfirmed && s.notifier != nil {
		s.notifier.PublishSeats(update)
	}
	return
}

// ListSessions yields the sessions matching filter by date ascending, each
// with its confirmed count. "Today" is evaluated every time the sequence is
// ranged over, so a stored sequence stays correct across midnight.
func (s *AttendanceService) ListSessions(ctx context.Context, filter SessionFilter) iter.Seq2[SessionCount, error] {
	return func(yield func(SessionCount, error) bool) {
		if s == nil || s.store == nil {
			yield(SessionCount{}, fmt.Errorf("record store not configured"))
			return
		}

		match, err := s.dateMatcher(filter)
		if err != nil {
			yield(SessionCount{}, err)
			return
		}

		catalog := NewSessionCatalog(s.store)
		for session, err := range catalog.ListSessionsOrdered(ctx) {
			if err != nil {
				s.loggerWith(ctx, "ListSessions").ErrorContext(ctx, "failed to list sessions", "error", err, "error_kind", ErrorKind(err))
				yield(SessionCount{}, err)
				return
			}
			if !match(session.Date) {
				continue
			}
			count, err := catalog.CountConfirmations(ctx, session.ID)
			if err != nil {
				yield(SessionCount{}, err)
				return
			}
			if !yield(SessionCount{Session: session, Confirmed: count}, nil) {
				return
			}
		}
	}
}

// RemoveConfirmation deletes a confirmation on behalf of an administrator.
// Removing an absent confirmation succeeds.
func (s *AttendanceService) RemoveConfirmation(ctx context.Context, caller Identity, confirmationID string) (err error) {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}

	confirmationID = strings.TrimSpace(confirmationID)
	logger := s.loggerWith(ctx, "RemoveConfirmation",
		"identity", normalizeEmail(caller.Email),
		"confirmation_id", confirmationID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove confirmation", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}
	if confirmationID == "" {
		return nil
	}

	rec, getErr := s.store.Get(ctx, CollectionConfirmations, confirmationID)
	if errors.Is(getErr, persistence.ErrNotFound) {
		logger.InfoContext(ctx, "confirmation already absent")
		return nil
	}
	if getErr != nil {
		err = mapStoreError(getErr)
		return
	}

	if err = mapStoreError(s.store.Delete(ctx, CollectionConfirmations, confirmationID)); err != nil {
		return
	}
	logger.InfoContext(ctx, "confirmation removed")
	s.publishSeats(ctx, confirmationFromRecord(rec).SessionID)
	return nil
}

// MyAttendance returns the caller's view of the sessions matching filter,
// newest first, flagging the ones the caller confirmed.
func (s *AttendanceService) MyAttendance(ctx context.Context, caller Identity, filter SessionFilter) (entries []AttendanceEntry, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	email := normalizeEmail(caller.Email)
	logger := s.loggerWith(ctx, "MyAttendance", "identity", email, "window", string(filter.Window))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(entries)).DebugContext(ctx, "attendance listed")
	}()

	if err = requireIdentity(caller); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	records, queryErr := s.store.QueryEquals(ctx, CollectionConfirmations, fieldIdentity, email)
	if queryErr != nil {
		err = mapStoreError(queryErr)
		return
	}
	attending := make(map[string]bool, len(records))
	for _, rec := range records {
		attending[rec.Fields.String(fieldSessionID)] = true
	}

	today := localDate(s.now(), s.location)
	for item, listErr := range s.ListSessions(ctx, filter) {
		if listErr != nil {
			err = listErr
			return nil, err
		}
		entries = append(entries, AttendanceEntry{
			Session:   item.Session,
			Confirmed: item.Confirmed,
			Attending: attending[item.Session.ID],
			Past:      item.Session.Date < today,
		})
	}
	slices.Reverse(entries)
	return
}

// Roster returns the confirmations of a session and the known students who
// have not confirmed. Only administrators may read it.
func (s *AttendanceService) Roster(ctx context.Context, caller Identity, sessionID string) (roster Roster, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Roster", "identity", normalizeEmail(caller.Email), "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build roster", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	catalog := NewSessionCatalog(s.store)
	if roster.Session, err = catalog.GetSession(ctx, sessionID); err != nil {
		return
	}
	if roster.Confirmations, err = catalog.Confirmations(ctx, roster.Session.ID); err != nil {
		return
	}
	sort.SliceStable(roster.Confirmations, func(i, j int) bool {
		return roster.Confirmations[i].ConfirmedAt.Before(roster.Confirmations[j].ConfirmedAt)
	})

	students, listErr := s.store.OrderBy(ctx, CollectionStudents, fieldName, persistence.Ascending)
	if listErr != nil {
		err = mapStoreError(listErr)
		return
	}
	confirmed := make(map[string]struct{}, len(roster.Confirmations))
	for _, c := range roster.Confirmations {
		confirmed[normalizeEmail(c.Identity)] = struct{}{}
	}
	for _, rec := range students {
		student := studentFromRecord(rec)
		if _, ok := confirmed[normalizeEmail(student.Email)]; !ok {
			roster.Missing = append(roster.Missing, student)
		}
	}
	return
}

func (s *AttendanceService) publishSeats(ctx context.Context, sessionID string) {
	if s.notifier == nil || sessionID == "" {
		return
	}
	catalog := NewSessionCatalog(s.store)
	session, err := catalog.GetSession(ctx, sessionID)
	if err != nil {
		s.loggerWith(ctx, "publishSeats", "session_id", sessionID).WarnContext(ctx, "seat update skipped", "error", err)
		return
	}
	count, err := catalog.CountConfirmations(ctx, sessionID)
	if err != nil {
		s.loggerWith(ctx, "publishSeats", "session_id", sessionID).WarnContext(ctx, "seat update skipped", "error", err)
		return
	}
	s.notifier.PublishSeats(SeatUpdate{SessionID: session.ID, Confirmed: count, Capacity: session.Capacity})
}

// dateMatcher returns a predicate over YYYY-MM-DD dates for filter.
func (s *AttendanceService) dateMatcher(filter SessionFilter) (func(date string) bool, error) {
	switch filter.Window {
	case "", WindowAll:
		return func(string) bool { return true }, nil
	case WindowUpcoming:
		today := localDate(s.now(), s.location)
		return func(date string) bool { return date >= today }, nil
	case WindowPast:
		today := localDate(s.now(), s.location)
		return func(date string) bool { return date < today }, nil
	case WindowRange:
		vErr := &ValidationError{}
		from, to := strings.TrimSpace(filter.From), strings.TrimSpace(filter.To)
		if from != "" && !validDate(from) {
			vErr.add("from", "date must be YYYY-MM-DD")
		}
		if to != "" && !validDate(to) {
			vErr.add("to", "date must be YYYY-MM-DD")
		}
		if !vErr.HasErrors() && from != "" && to != "" && from > to {
			vErr.add("to", "end date must not be before start date")
		}
		if vErr.HasErrors() {
			return nil, vErr
		}
		return func(date string) bool {
			return (from == "" || date >= from) && (to == "" || date <= to)
		}, nil
	default:
		vErr := &ValidationError{}
		vErr.add("when", "unknown session window")
		return nil, vErr
	}
}
