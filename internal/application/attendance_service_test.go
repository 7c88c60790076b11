package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
)

func newAttendance(store persistence.Store, opts ...Option) *AttendanceService {
	opts = append([]Option{WithLocation(brt)}, opts...)
	return NewAttendanceServiceWithLogger(store, admins, nowFunc, quietLogger(), opts...)
}

func confirmationsOf(t *testing.T, store persistence.Store, sessionID string) []persistence.Record {
	t.Helper()
	records, err := store.QueryEquals(context.Background(), CollectionConfirmations, fieldSessionID, sessionID)
	if err != nil {
		t.Fatalf("query confirmations: %v", err)
	}
	return records
}

func TestAttendanceService_ConfirmAttendance(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			t.Run("second call for the same identity is already confirmed", func(t *testing.T) {
				store := factory.open(t)
				svc := newAttendance(store)
				sessionID := seedSession(t, store, "2024-06-16", 5)

				first, err := svc.ConfirmAttendance(context.Background(), sessionID, ana)
				if err != nil || first != ResultConfirmed {
					t.Fatalf("expected confirmed, got %q (%v)", first, err)
				}
				second, err := svc.ConfirmAttendance(context.Background(), sessionID, Identity{Email: "ANA@example.com"})
				if err != nil || second != ResultAlreadyConfirmed {
					t.Fatalf("expected already confirmed, got %q (%v)", second, err)
				}

				records := confirmationsOf(t, store, sessionID)
				if len(records) != 1 {
					t.Fatalf("expected exactly one confirmation, got %d", len(records))
				}
				got := confirmationFromRecord(records[0])
				if got.Identity != "ana@example.com" || got.DisplayName != "Ana" {
					t.Fatalf("unexpected confirmation %+v", got)
				}
				if !got.ConfirmedAt.Equal(nowFunc()) {
					t.Fatalf("expected confirmedAt %v, got %v", nowFunc(), got.ConfirmedAt)
				}
			})

			t.Run("capacity one admits one until an administrator removes it", func(t *testing.T) {
				store := factory.open(t)
				svc := newAttendance(store)
				ctx := context.Background()
				sessionID := seedSession(t, store, "2024-06-16", 1)

				if result, err := svc.ConfirmAttendance(ctx, sessionID, ana); err != nil || result != ResultConfirmed {
					t.Fatalf("expected confirmed, got %q (%v)", result, err)
				}
				if result, err := svc.ConfirmAttendance(ctx, sessionID, bia); err != nil || result != ResultFull {
					t.Fatalf("expected full, got %q (%v)", result, err)
				}

				records := confirmationsOf(t, store, sessionID)
				if err := svc.RemoveConfirmation(ctx, coach, records[0].ID); err != nil {
					t.Fatalf("RemoveConfirmation failed: %v", err)
				}
				if result, err := svc.ConfirmAttendance(ctx, sessionID, caio); err != nil || result != ResultConfirmed {
					t.Fatalf("expected confirmed after removal, got %q (%v)", result, err)
				}
				if n := len(confirmationsOf(t, store, sessionID)); n != 1 {
					t.Fatalf("expected one confirmation, got %d", n)
				}
			})

			t.Run("concurrent attempts never exceed capacity", func(t *testing.T) {
				store := factory.open(t)
				observer := &observerStub{}
				svc := newAttendance(store,
					WithConfirmationObserver(observer),
					WithRetryConfig(persistence.RetryConfig{MaxRetries: 100, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}),
				)
				const capacity, extra = 4, 6
				sessionID := seedSession(t, store, "2024-06-16", capacity)

				results := make([]ConfirmationResult, capacity+extra)
				var g errgroup.Group
				for i := range results {
					g.Go(func() error {
						caller := Identity{Email: fmt.Sprintf("student%02d@example.com", i)}
						result, err := svc.ConfirmAttendance(context.Background(), sessionID, caller)
						results[i] = result
						return err
					})
				}
				if err := g.Wait(); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				counts := map[ConfirmationResult]int{}
				for _, r := range results {
					counts[r]++
				}
				if counts[ResultConfirmed] != capacity || counts[ResultFull] != extra {
					t.Fatalf("expected %d confirmed and %d full, got %v", capacity, extra, counts)
				}
				if n := len(confirmationsOf(t, store, sessionID)); n != capacity {
					t.Fatalf("expected %d durable confirmations, got %d", capacity, n)
				}
				if len(observer.results) != capacity+extra {
					t.Fatalf("expected every outcome to be observed, got %d", len(observer.results))
				}
			})
		})
	}

	t.Run("unknown session is not found", func(t *testing.T) {
		svc := newAttendance(memory.Open(nil))
		_, err := svc.ConfirmAttendance(context.Background(), "missing", ana)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("requires an identity", func(t *testing.T) {
		store := memory.Open(nil)
		svc := newAttendance(store)
		sessionID := seedSession(t, store, "2024-06-16", 3)

		_, err := svc.ConfirmAttendance(context.Background(), sessionID, Identity{DisplayName: "anonymous"})
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if n := len(confirmationsOf(t, store, sessionID)); n != 0 {
			t.Fatalf("expected no writes, got %d", n)
		}
	})

	t.Run("store failures are reported as unavailable", func(t *testing.T) {
		store := memory.Open(nil)
		sessionID := seedSession(t, store, "2024-06-16", 3)
		_ = store.Close()

		_, err := newAttendance(store).ConfirmAttendance(context.Background(), sessionID, ana)
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable, got %v", err)
		}
	})

	t.Run("exhausted retries are reported as unavailable", func(t *testing.T) {
		store := &conflictingStore{Store: memory.Open(nil)}
		observer := &observerStub{}
		svc := newAttendance(store,
			WithConfirmationObserver(observer),
			WithRetryConfig(persistence.RetryConfig{MaxRetries: 2, BackoffFactor: 1}),
		)

		_, err := svc.ConfirmAttendance(context.Background(), "s1", ana)
		if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, persistence.ErrRetriesExhausted) {
			t.Fatalf("expected exhausted retries as ErrStoreUnavailable, got %v", err)
		}
		if observer.retries != 2 || len(observer.results) != 0 {
			t.Fatalf("expected 2 retries and no outcome, got %d and %v", observer.retries, observer.results)
		}
	})

	t.Run("publishes seat counts only for new confirmations", func(t *testing.T) {
		store := memory.Open(nil)
		notifier := &notifierStub{}
		svc := newAttendance(store, WithSeatNotifier(notifier))
		sessionID := seedSession(t, store, "2024-06-16", 2)

		_, _ = svc.ConfirmAttendance(context.Background(), sessionID, ana)
		_, _ = svc.ConfirmAttendance(context.Background(), sessionID, ana)

		if len(notifier.updates) != 1 {
			t.Fatalf("expected one update, got %v", notifier.updates)
		}
		want := SeatUpdate{SessionID: sessionID, Confirmed: 1, Capacity: 2}
		if notifier.updates[0] != want {
			t.Fatalf("expected %+v, got %+v", want, notifier.updates[0])
		}
	})
}

type conflictingStore struct {
	persistence.Store
}

func (s *conflictingStore) RunInTransaction(context.Context, persistence.TxFunc) error {
	return fmt.Errorf("busy: %w", persistence.ErrConflict)
}

func TestAttendanceService_RemoveConfirmation(t *testing.T) {
	t.Run("absent confirmation succeeds without changes", func(t *testing.T) {
		store := memory.Open(nil)
		svc := newAttendance(store)
		sessionID := seedSession(t, store, "2024-06-16", 2)
		_, _ = svc.ConfirmAttendance(context.Background(), sessionID, ana)

		if err := svc.RemoveConfirmation(context.Background(), coach, "does-not-exist"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if n := len(confirmationsOf(t, store, sessionID)); n != 1 {
			t.Fatalf("expected state unchanged, got %d confirmations", n)
		}
	})

	t.Run("students cannot remove confirmations", func(t *testing.T) {
		store := memory.Open(nil)
		svc := newAttendance(store)
		sessionID := seedSession(t, store, "2024-06-16", 2)
		_, _ = svc.ConfirmAttendance(context.Background(), sessionID, ana)
		id := confirmationsOf(t, store, sessionID)[0].ID

		if err := svc.RemoveConfirmation(context.Background(), ana, id); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if err := svc.RemoveConfirmation(context.Background(), Identity{}, id); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if n := len(confirmationsOf(t, store, sessionID)); n != 1 {
			t.Fatalf("expected confirmation to survive, got %d", n)
		}
	})

	t.Run("authorization is checked before touching the store", func(t *testing.T) {
		store := memory.Open(nil)
		_ = store.Close()
		svc := newAttendance(store)

		if err := svc.RemoveConfirmation(context.Background(), ana, "x"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("publishes the new count", func(t *testing.T) {
		store := memory.Open(nil)
		notifier := &notifierStub{}
		svc := newAttendance(store, WithSeatNotifier(notifier))
		sessionID := seedSession(t, store, "2024-06-16", 2)
		_, _ = svc.ConfirmAttendance(context.Background(), sessionID, ana)
		id := confirmationsOf(t, store, sessionID)[0].ID

		if err := svc.RemoveConfirmation(context.Background(), coach, id); err != nil {
			t.Fatalf("RemoveConfirmation failed: %v", err)
		}
		update, ok := notifier.last()
		if !ok || update.Confirmed != 0 || update.Capacity != 2 {
			t.Fatalf("expected zero confirmed after removal, got %+v", update)
		}
	})
}

func TestAttendanceService_ListSessions(t *testing.T) {
	store := memory.Open(nil)
	june14 := seedSession(t, store, "2024-06-14", 3)
	june16 := seedSession(t, store, "2024-06-16", 3)
	june15 := seedSession(t, store, "2024-06-15", 3)
	svc := newAttendance(store)
	if _, err := svc.ConfirmAttendance(context.Background(), june15, ana); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	ids := func(t *testing.T, filter SessionFilter) []string {
		t.Helper()
		items, err := Collect(svc.ListSessions(context.Background(), filter))
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.Session.ID)
		}
		return out
	}

	cases := []struct {
		name   string
		filter SessionFilter
		want   []string
	}{
		{name: "all", filter: SessionFilter{}, want: []string{june14, june15, june16}},
		{name: "future includes today", filter: SessionFilter{Window: WindowUpcoming}, want: []string{june15, june16}},
		{name: "past", filter: SessionFilter{Window: WindowPast}, want: []string{june14}},
		{name: "range", filter: SessionFilter{Window: WindowRange, From: "2024-06-15", To: "2024-06-16"}, want: []string{june15, june16}},
		{name: "open range", filter: SessionFilter{Window: WindowRange, To: "2024-06-14"}, want: []string{june14}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(t, tc.filter)
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	t.Run("counts come from the store", func(t *testing.T) {
		items, err := Collect(svc.ListSessions(context.Background(), SessionFilter{Window: WindowUpcoming}))
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if items[0].Confirmed != 1 || items[0].Available() != 2 || items[1].Confirmed != 0 {
			t.Fatalf("unexpected counts %+v", items)
		}
	})

	t.Run("today is the local calendar date", func(t *testing.T) {
		// 01:00 UTC on the 16th is still the evening of the 15th in BRT.
		lateEvening := func() time.Time { return time.Date(2024, 6, 16, 1, 0, 0, 0, time.UTC) }
		local := NewAttendanceServiceWithLogger(store, admins, lateEvening, quietLogger(), WithLocation(brt))
		items, err := Collect(local.ListSessions(context.Background(), SessionFilter{Window: WindowUpcoming}))
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(items) != 2 || items[0].Session.ID != june15 {
			t.Fatalf("expected the 15th and 16th, got %+v", items)
		}
	})

	t.Run("sequence is restartable and stops early", func(t *testing.T) {
		seq := svc.ListSessions(context.Background(), SessionFilter{})
		for range 2 {
			n := 0
			for _, err := range seq {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				n++
				if n == 2 {
					break
				}
			}
			if n != 2 {
				t.Fatalf("expected to stop after two items, got %d", n)
			}
		}
	})

	t.Run("rejects malformed ranges", func(t *testing.T) {
		_, err := Collect(svc.ListSessions(context.Background(), SessionFilter{Window: WindowRange, From: "2024-06-20", To: "2024-06-10"}))
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["to"] == "" {
			t.Fatalf("expected validation error on to, got %v", err)
		}

		_, err = Collect(svc.ListSessions(context.Background(), SessionFilter{Window: "tomorrow"}))
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error for unknown window, got %v", err)
		}
	})
}

func TestAttendanceService_MyAttendance(t *testing.T) {
	store := memory.Open(nil)
	svc := newAttendance(store)
	past := seedSession(t, store, "2024-06-10", 3)
	skipped := seedSession(t, store, "2024-06-12", 3)
	upcoming := seedSession(t, store, "2024-06-20", 3)
	for _, id := range []string{past, upcoming} {
		if _, err := svc.ConfirmAttendance(context.Background(), id, ana); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	entries, err := svc.MyAttendance(context.Background(), ana, SessionFilter{})
	if err != nil {
		t.Fatalf("MyAttendance failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []struct {
		id        string
		attending bool
		past      bool
	}{
		{upcoming, true, false},
		{skipped, false, true},
		{past, true, true},
	}
	for i, w := range want {
		e := entries[i]
		if e.Session.ID != w.id || e.Attending != w.attending || e.Past != w.past {
			t.Fatalf("entry %d: expected %+v, got %+v", i, w, e)
		}
	}

	if _, err := svc.MyAttendance(context.Background(), Identity{}, SessionFilter{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAttendanceService_Roster(t *testing.T) {
	store := memory.Open(nil)
	svc := newAttendance(store)
	sessionID := seedSession(t, store, "2024-06-16", 5)
	seedStudent(t, store, "Ana", "ana@example.com", 0)
	seedStudent(t, store, "Bia", "bia@example.com", 0)
	seedStudent(t, store, "Caio", "Caio@Example.com", 0)

	if _, err := svc.ConfirmAttendance(context.Background(), sessionID, ana); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.ConfirmAttendance(context.Background(), sessionID, caio); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	roster, err := svc.Roster(context.Background(), coach, sessionID)
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(roster.Confirmations) != 2 {
		t.Fatalf("expected 2 confirmations, got %d", len(roster.Confirmations))
	}
	if len(roster.Missing) != 1 || roster.Missing[0].Name != "Bia" {
		t.Fatalf("expected only Bia missing, got %+v", roster.Missing)
	}

	if _, err := svc.Roster(context.Background(), ana, sessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Roster(context.Background(), coach, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
