package persistence

import "context"

// Direction selects the sort order for OrderBy.
type Direction int

const (
	// Ascending sorts from the smallest value up.
	Ascending Direction = iota
	// Descending sorts from the largest value down.
	Descending
)

// Operations are the collection-level primitives every store offers, inside
// or outside a transaction. Collections are created on first write.
type Operations interface {
	// Create stores a new record and returns it with its assigned ID.
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)
	// QueryEquals returns the records whose field equals value, ordered by ID.
	QueryEquals(ctx context.Context, collection, field string, value any) ([]Record, error)
	// Update merges fields into an existing record or returns ErrNotFound. A
	// nil value removes the field.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes the record. Deleting an absent record succeeds.
	Delete(ctx context.Context, collection, id string) error
	// OrderBy returns every record of the collection sorted by field, ties broken by ID.
	OrderBy(ctx context.Context, collection, field string, dir Direction) ([]Record, error)
}

// TxFunc is a unit of work executed atomically by RunInTransaction.
type TxFunc func(ctx context.Context, tx Operations) error

// Store is a record store with serialisable transactions.
type Store interface {
	Operations
	// RunInTransaction executes fn atomically. When fn returns an error nothing
	// it wrote is kept. A lost race surfaces as ErrConflict.
	RunInTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}
