// Package persistencetest holds the behaviour every persistence.Store must
// share, so the memory and SQLite stores are tested against the same cases.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// Factory returns a fresh, empty store. The store is closed by the suite.
type Factory func(t *testing.T) persistence.Store

// RunStoreSuite exercises the persistence.Store contract.
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("create and get round-trip field types", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		created, err := store.Create(ctx, "sessions", persistence.Fields{
			"date":        "2024-06-15",
			"capacity":    6,
			"ratio":       1.5,
			"open":        true,
			"methodology": nil,
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		got, err := store.Get(ctx, "sessions", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "2024-06-15", got.Fields.String("date"))
		assert.Equal(t, int64(6), got.Fields["capacity"])
		assert.Equal(t, 6, got.Fields.Int("capacity"))
		assert.Equal(t, 1.5, got.Fields["ratio"])
		assert.Equal(t, true, got.Fields["open"])
	})

	t.Run("get of a missing record is not found", func(t *testing.T) {
		store := open(t, newStore)
		_, err := store.Get(context.Background(), "sessions", "missing")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("query equals matches strings and integers", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		a := mustCreate(t, store, "confirmations", persistence.Fields{"sessionId": "s1", "identity": "ana@example.com", "seat": 1})
		mustCreate(t, store, "confirmations", persistence.Fields{"sessionId": "s2", "identity": "ana@example.com", "seat": 2})
		c := mustCreate(t, store, "confirmations", persistence.Fields{"sessionId": "s1", "identity": "bia@example.com", "seat": 3})
		mustCreate(t, store, "other", persistence.Fields{"sessionId": "s1"})

		bySession, err := store.QueryEquals(ctx, "confirmations", "sessionId", "s1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, c.ID}, ids(bySession))

		bySeat, err := store.QueryEquals(ctx, "confirmations", "seat", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID}, ids(bySeat))

		none, err := store.QueryEquals(ctx, "confirmations", "sessionId", "nope")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("query rejects unsafe field names", func(t *testing.T) {
		store := open(t, newStore)
		_, err := store.QueryEquals(context.Background(), "sessions", "date') OR 1=1 --", "x")
		assert.ErrorIs(t, err, persistence.ErrInvalidField)
	})

	t.Run("update merges fields and removes nil values", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		rec := mustCreate(t, store, "students", persistence.Fields{"name": "Ana", "score": 1, "pixKey": "ana@pix"})
		require.NoError(t, store.Update(ctx, "students", rec.ID, persistence.Fields{"score": 5, "pixKey": nil}))

		got, err := store.Get(ctx, "students", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana", got.Fields.String("name"))
		assert.Equal(t, 5, got.Fields.Int("score"))
		_, hasPix := got.Fields["pixKey"]
		assert.False(t, hasPix)

		err = store.Update(ctx, "students", "missing", persistence.Fields{"score": 1})
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		rec := mustCreate(t, store, "confirmations", persistence.Fields{"sessionId": "s1"})
		require.NoError(t, store.Delete(ctx, "confirmations", rec.ID))
		require.NoError(t, store.Delete(ctx, "confirmations", rec.ID))

		_, err := store.Get(ctx, "confirmations", rec.ID)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("order by sorts ascending and descending with id tie-break", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		mustCreate(t, store, "sessions", persistence.Fields{"date": "2024-06-16", "n": 2})
		mustCreate(t, store, "sessions", persistence.Fields{"date": "2024-06-14", "n": 10})
		mustCreate(t, store, "sessions", persistence.Fields{"date": "2024-06-15", "n": 1})
		mustCreate(t, store, "sessions", persistence.Fields{"date": "2024-06-15", "n": 3})

		asc, err := store.OrderBy(ctx, "sessions", "date", persistence.Ascending)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-06-14", "2024-06-15", "2024-06-15", "2024-06-16"}, stringsOf(asc, "date"))
		assert.Less(t, asc[1].ID, asc[2].ID)

		desc, err := store.OrderBy(ctx, "sessions", "n", persistence.Descending)
		require.NoError(t, err)
		assert.Equal(t, []int{10, 3, 2, 1}, intsOf(desc, "n"))

		empty, err := store.OrderBy(ctx, "nothing", "date", persistence.Ascending)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("failed transaction keeps nothing", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()
		boom := errors.New("boom")

		err := store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			if _, err := tx.Create(ctx, "sessions", persistence.Fields{"date": "2024-06-15"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		all, err := store.OrderBy(ctx, "sessions", "date", persistence.Ascending)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("transaction sees its own writes and commits them", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()

		err := store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			rec, err := tx.Create(ctx, "sessions", persistence.Fields{"date": "2024-06-15"})
			if err != nil {
				return err
			}
			if _, err := tx.Get(ctx, "sessions", rec.ID); err != nil {
				return err
			}
			return tx.Update(ctx, "sessions", rec.ID, persistence.Fields{"capacity": 4})
		})
		require.NoError(t, err)

		all, err := store.QueryEquals(ctx, "sessions", "capacity", 4)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("concurrent check-then-write transactions never exceed a limit", func(t *testing.T) {
		store := open(t, newStore)
		ctx := context.Background()
		const limit, attempts = 3, 12

		retry := persistence.NewRetryHelper(persistence.RetryConfig{
			MaxRetries:    50,
			InitialDelay:  0,
			BackoffFactor: 1,
		}, nil)

		var g errgroup.Group
		for i := range attempts {
			g.Go(func() error {
				return retry.WithRetry(ctx, func() error {
					return store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
						taken, err := tx.QueryEquals(ctx, "seats", "sessionId", "s1")
						if err != nil {
							return err
						}
						if len(taken) >= limit {
							return nil
						}
						_, err = tx.Create(ctx, "seats", persistence.Fields{"sessionId": "s1", "who": fmt.Sprint(i)})
						return err
					})
				})
			})
		}
		require.NoError(t, g.Wait())

		seats, err := store.QueryEquals(ctx, "seats", "sessionId", "s1")
		require.NoError(t, err)
		assert.Len(t, seats, limit)
	})
}

func open(t *testing.T, newStore Factory) persistence.Store {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreate(t *testing.T, store persistence.Store, collection string, fields persistence.Fields) persistence.Record {
	t.Helper()
	rec, err := store.Create(context.Background(), collection, fields)
	require.NoError(t, err)
	return rec
}

func ids(records []persistence.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}

func stringsOf(records []persistence.Record, field string) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Fields.String(field))
	}
	return out
}

func intsOf(records []persistence.Record, field string) []int {
	out := make([]int, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Fields.Int(field))
	}
	return out
}
