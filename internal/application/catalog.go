package application

import (
	"context"
	"iter"
	"strings"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// SessionCatalog reads sessions and confirmed counts from the record store.
// It works on plain store operations so it can run inside a transaction.
type SessionCatalog struct {
	ops persistence.Operations
}

// NewSessionCatalog returns a catalog reading through ops.
func NewSessionCatalog(ops persistence.Operations) *SessionCatalog {
	return &SessionCatalog{ops: ops}
}

// GetSession returns the session or ErrNotFound.
func (c *SessionCatalog) GetSession(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, ErrNotFound
	}
	rec, err := c.ops.Get(ctx, CollectionSessions, id)
	if err != nil {
		return Session{}, mapStoreError(err)
	}
	return sessionFromRecord(rec), nil
}

// CountConfirmations queries the current number of confirmations for a
// session. The count is never cached.
func (c *SessionCatalog) CountConfirmations(ctx context.Context, sessionID string) (int, error) {
	confirmations, err := c.ops.QueryEquals(ctx, CollectionConfirmations, fieldSessionID, sessionID)
	if err != nil {
		return 0, mapStoreError(err)
	}
	return len(confirmations), nil
}

// Confirmations returns the confirmations of a session ordered by store id.
func (c *SessionCatalog) Confirmations(ctx context.Context, sessionID string) ([]Confirmation, error) {
	records, err := c.ops.QueryEquals(ctx, CollectionConfirmations, fieldSessionID, sessionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]Confirmation, 0, len(records))
	for _, rec := range records {
		out = append(out, confirmationFromRecord(rec))
	}
	return out, nil
}

// ListSessionsOrdered yields every session by date ascending. The store is
// queried each time the sequence is ranged over.
func (c *SessionCatalog) ListSessionsOrdered(ctx context.Context) iter.Seq2[Session, error] {
	return func(yield func(Session, error) bool) {
		records, err := c.ops.OrderBy(ctx, CollectionSessions, fieldDate, persistence.Ascending)
		if err != nil {
			yield(Session{}, mapStoreError(err))
			return
		}
		for _, rec := range records {
			if !yield(sessionFromRecord(rec), nil) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
