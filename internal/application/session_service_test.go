package application

import (
	"context"
	"errors"
	"testing"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
)

func TestSessionService_CreateSession(t *testing.T) {
	t.Parallel()

	store := memory.Open(nil)
	svc := NewSessionServiceWithLogger(store, admins, quietLogger())

	session, err := svc.CreateSession(context.Background(), coach, SessionInput{
		Date:        " 2024-06-20 ",
		Time:        "18:30",
		Capacity:    8,
		Methodology: "funcional",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID == "" || session.Date != "2024-06-20" || session.Capacity != 8 {
		t.Fatalf("unexpected session %+v", session)
	}

	stored, err := NewSessionCatalog(store).GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if stored != session {
		t.Fatalf("expected stored %+v, got %+v", session, stored)
	}
}

func TestSessionService_CreateSessionValidation(t *testing.T) {
	t.Parallel()

	svc := NewSessionServiceWithLogger(memory.Open(nil), admins, quietLogger())
	tests := []struct {
		name  string
		input SessionInput
		field string
		msg   string
	}{
		{name: "missing date", input: SessionInput{Time: "07:00", Capacity: 1}, field: "date", msg: "date is required"},
		{name: "bad date", input: SessionInput{Date: "15/06/2024", Time: "07:00", Capacity: 1}, field: "date", msg: "date must be YYYY-MM-DD"},
		{name: "missing time", input: SessionInput{Date: "2024-06-15", Capacity: 1}, field: "time", msg: "time is required"},
		{name: "bad time", input: SessionInput{Date: "2024-06-15", Time: "7h", Capacity: 1}, field: "time", msg: "time must be HH:MM"},
		{name: "zero capacity", input: SessionInput{Date: "2024-06-15", Time: "07:00"}, field: "capacity", msg: "capacity must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSession(context.Background(), coach, tt.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := vErr.FieldErrors[tt.field]; got != tt.msg {
				t.Fatalf("expected %q on %s, got %q", tt.msg, tt.field, got)
			}
		})
	}
}

func TestSessionService_RequiresAdministrator(t *testing.T) {
	t.Parallel()

	store := memory.Open(nil)
	svc := NewSessionServiceWithLogger(store, admins, quietLogger())
	sessionID := seedSession(t, store, "2024-06-16", 3)
	input := SessionInput{Date: "2024-06-16", Time: "07:00", Capacity: 3}

	if _, err := svc.CreateSession(context.Background(), ana, input); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on create, got %v", err)
	}
	if _, err := svc.UpdateSession(context.Background(), ana, sessionID, input); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on update, got %v", err)
	}
	if err := svc.DeleteSession(context.Background(), ana, sessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on delete, got %v", err)
	}
	if err := svc.DeleteSession(context.Background(), Identity{}, sessionID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	all, err := Collect(NewSessionCatalog(store).ListSessionsOrdered(context.Background()))
	if err != nil || len(all) != 1 {
		t.Fatalf("expected the session to be untouched, got %v (%v)", all, err)
	}
}

func TestSessionService_UpdateSession(t *testing.T) {
	t.Parallel()

	store := memory.Open(nil)
	notifier := &notifierStub{}
	svc := NewSessionServiceWithLogger(store, admins, quietLogger(), WithSeatNotifier(notifier))
	attendance := newAttendance(store)
	sessionID := seedSession(t, store, "2024-06-16", 3)
	for _, who := range []Identity{ana, bia} {
		if _, err := attendance.ConfirmAttendance(context.Background(), sessionID, who); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	_, err := svc.UpdateSession(context.Background(), coach, sessionID, SessionInput{Date: "2024-06-16", Time: "07:00", Capacity: 1})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["capacity"] == "" {
		t.Fatalf("expected capacity validation error, got %v", err)
	}

	updated, err := svc.UpdateSession(context.Background(), coach, sessionID, SessionInput{Date: "2024-06-17", Time: "08:00", Capacity: 2, Methodology: "hiit"})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Date != "2024-06-17" || updated.Capacity != 2 || updated.Methodology != "hiit" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	update, ok := notifier.last()
	if !ok || update.Confirmed != 2 || update.Capacity != 2 {
		t.Fatalf("expected seat update 2/2, got %+v", update)
	}

	result, err := attendance.ConfirmAttendance(context.Background(), sessionID, caio)
	if err != nil || result != ResultFull {
		t.Fatalf("expected the reduced capacity to be enforced, got %q (%v)", result, err)
	}

	if _, err := svc.UpdateSession(context.Background(), coach, "missing", SessionInput{Date: "2024-06-17", Time: "08:00", Capacity: 2}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionService_DeleteSession(t *testing.T) {
	t.Parallel()

	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t)
			notifier := &notifierStub{}
			svc := NewSessionServiceWithLogger(store, admins, quietLogger(), WithSeatNotifier(notifier))
			attendance := newAttendance(store)
			keep := seedSession(t, store, "2024-06-16", 3)
			drop := seedSession(t, store, "2024-06-17", 3)
			for _, id := range []string{keep, drop} {
				if _, err := attendance.ConfirmAttendance(context.Background(), id, ana); err != nil {
					t.Fatalf("confirm: %v", err)
				}
			}

			if err := svc.DeleteSession(context.Background(), coach, drop); err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}

			if _, err := store.Get(context.Background(), CollectionSessions, drop); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected session to be gone, got %v", err)
			}
			if n := len(confirmationsOf(t, store, drop)); n != 0 {
				t.Fatalf("expected confirmations of the deleted session to be gone, got %d", n)
			}
			if n := len(confirmationsOf(t, store, keep)); n != 1 {
				t.Fatalf("expected other confirmations to survive, got %d", n)
			}
			want := SeatUpdate{SessionID: drop, Removed: true}
			if update, ok := notifier.last(); !ok || update != want {
				t.Fatalf("expected removal update %+v, got %+v", want, update)
			}

			published := len(notifier.updates)
			if err := svc.DeleteSession(context.Background(), coach, drop); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on second delete, got %v", err)
			}
			if len(notifier.updates) != published {
				t.Fatalf("expected no update for a failed delete, got %v", notifier.updates)
			}
		})
	}
}
