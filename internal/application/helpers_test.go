package application

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
	"github.com/ghmassaro/presenca-treino/internal/persistence/memory"
	"github.com/ghmassaro/presenca-treino/internal/persistence/sqlite"
)

var (
	brt     = time.FixedZone("BRT", -3*60*60)
	coach   = Identity{Email: "coach@example.com", DisplayName: "Coach"}
	ana     = Identity{Email: "ana@example.com", DisplayName: "Ana"}
	bia     = Identity{Email: "bia@example.com", DisplayName: "Bia"}
	caio    = Identity{Email: "caio@example.com", DisplayName: "Caio"}
	admins  = NewAdminAllowlist(coach.Email)
	nowFunc = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, brt) }
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storeFactory struct {
	name string
	open func(t *testing.T) persistence.Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) persistence.Store {
			store := memory.Open(nil)
			t.Cleanup(func() { _ = store.Close() })
			return store
		}},
		{name: "sqlite", open: openSQLite},
	}
}

func openSQLite(t *testing.T) persistence.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.TempFileTestConfig(filepath.Join(t.TempDir(), "presenca.db")), sqlite.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func seedSession(t *testing.T, store persistence.Store, date string, capacity int) string {
	t.Helper()
	rec, err := store.Create(context.Background(), CollectionSessions, persistence.Fields{
		fieldDate:     date,
		fieldTime:     "07:00",
		fieldCapacity: capacity,
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return rec.ID
}

func seedStudent(t *testing.T, store persistence.Store, name, email string, score int) string {
	t.Helper()
	rec, err := store.Create(context.Background(), CollectionStudents, persistence.Fields{
		fieldName:          name,
		fieldEmail:         email,
		fieldScore:         score,
		fieldPaymentStatus: string(PaymentPending),
	})
	if err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return rec.ID
}

type observerStub struct {
	mu      sync.Mutex
	results []ConfirmationResult
	retries int
}

func (o *observerStub) ConfirmationRecorded(result ConfirmationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *observerStub) ConfirmationRetried() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries++
}

type notifierStub struct {
	mu      sync.Mutex
	updates []SeatUpdate
}

func (n *notifierStub) PublishSeats(update SeatUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, update)
}

func (n *notifierStub) last() (SeatUpdate, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.updates) == 0 {
		return SeatUpdate{}, false
	}
	return n.updates[len(n.updates)-1], true
}
