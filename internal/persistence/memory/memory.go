// Package memory provides an in-process persistence.Store used by tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

type collection map[string][]byte

// Storage keeps every collection in memory. Transactions hold the storage lock
// for their whole duration, so they are serialised with each other and with
// plain operations.
type Storage struct {
	mu          sync.Mutex
	collections map[string]collection
	idGenerator func() string
	closed      bool
}

// Open returns an empty storage. When idGenerator is nil random UUIDs are used.
func Open(idGenerator func() string) *Storage {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &Storage{
		collections: make(map[string]collection),
		idGenerator: idGenerator,
	}
}

// Close marks the storage as closed; later calls fail with ErrUnavailable.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Ping reports whether the storage is still open.
func (s *Storage) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return persistence.ErrUnavailable
	}
	return nil
}

func (s *Storage) Create(ctx context.Context, name string, fields persistence.Fields) (persistence.Record, error) {
	var rec persistence.Record
	err := s.locked(ctx, func(v *view) error {
		var err error
		rec, err = v.Create(ctx, name, fields)
		return err
	})
	return rec, err
}

func (s *Storage) Get(ctx context.Context, name, id string) (persistence.Record, error) {
	var rec persistence.Record
	err := s.locked(ctx, func(v *view) error {
		var err error
		rec, err = v.Get(ctx, name, id)
		return err
	})
	return rec, err
}

func (s *Storage) QueryEquals(ctx context.Context, name, field string, value any) ([]persistence.Record, error) {
	var out []persistence.Record
	err := s.locked(ctx, func(v *view) error {
		var err error
		out, err = v.QueryEquals(ctx, name, field, value)
		return err
	})
	return out, err
}

func (s *Storage) Update(ctx context.Context, name, id string, fields persistence.Fields) error {
	return s.locked(ctx, func(v *view) error {
		return v.Update(ctx, name, id, fields)
	})
}

func (s *Storage) Delete(ctx context.Context, name, id string) error {
	return s.locked(ctx, func(v *view) error {
		return v.Delete(ctx, name, id)
	})
}

func (s *Storage) OrderBy(ctx context.Context, name, field string, dir persistence.Direction) ([]persistence.Record, error) {
	var out []persistence.Record
	err := s.locked(ctx, func(v *view) error {
		var err error
		out, err = v.OrderBy(ctx, name, field, dir)
		return err
	})
	return out, err
}

// RunInTransaction runs fn against a private copy of the data and publishes
// the copy only when fn succeeds.
func (s *Storage) RunInTransaction(ctx context.Context, fn persistence.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return persistence.ErrUnavailable
	}

	staged := &view{collections: cloneCollections(s.collections), idGenerator: s.idGenerator}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	s.collections = staged.collections
	return nil
}

func (s *Storage) locked(ctx context.Context, fn func(v *view) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return persistence.ErrUnavailable
	}
	return fn(&view{collections: s.collections, idGenerator: s.idGenerator})
}

// view implements persistence.Operations over a collection map. The caller
// must hold the storage lock.
type view struct {
	collections map[string]collection
	idGenerator func() string
}

func (v *view) Create(_ context.Context, name string, fields persistence.Fields) (persistence.Record, error) {
	body, err := persistence.EncodeFields(fields)
	if err != nil {
		return persistence.Record{}, err
	}
	coll := v.collections[name]
	if coll == nil {
		coll = make(collection)
		v.collections[name] = coll
	}
	id := v.idGenerator()
	if _, exists := coll[id]; exists {
		return persistence.Record{}, fmt.Errorf("memory: %s/%s: %w", name, id, persistence.ErrConflict)
	}
	coll[id] = body
	return decodeRecord(id, body)
}

func (v *view) Get(_ context.Context, name, id string) (persistence.Record, error) {
	body, ok := v.collections[name][id]
	if !ok {
		return persistence.Record{}, persistence.ErrNotFound
	}
	return decodeRecord(id, body)
}

func (v *view) QueryEquals(_ context.Context, name, field string, value any) ([]persistence.Record, error) {
	if !persistence.ValidFieldName(field) {
		return nil, fmt.Errorf("%w: %q", persistence.ErrInvalidField, field)
	}
	want, err := persistence.NormalizeValue(value)
	if err != nil {
		return nil, err
	}

	var out []persistence.Record
	for _, id := range sortedIDs(v.collections[name]) {
		rec, err := decodeRecord(id, v.collections[name][id])
		if err != nil {
			return nil, err
		}
		got, ok := rec.Fields[field]
		if !ok || want == nil || got != want {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (v *view) Update(_ context.Context, name, id string, fields persistence.Fields) error {
	body, ok := v.collections[name][id]
	if !ok {
		return persistence.ErrNotFound
	}
	current, err := persistence.DecodeFields(body)
	if err != nil {
		return err
	}
	for key, value := range fields {
		if value == nil {
			delete(current, key)
			continue
		}
		current[key] = value
	}
	merged, err := persistence.EncodeFields(current)
	if err != nil {
		return err
	}
	v.collections[name][id] = merged
	return nil
}

func (v *view) Delete(_ context.Context, name, id string) error {
	delete(v.collections[name], id)
	return nil
}

func (v *view) OrderBy(_ context.Context, name, field string, dir persistence.Direction) ([]persistence.Record, error) {
	if !persistence.ValidFieldName(field) {
		return nil, fmt.Errorf("%w: %q", persistence.ErrInvalidField, field)
	}
	coll := v.collections[name]
	out := make([]persistence.Record, 0, len(coll))
	for id, body := range coll {
		rec, err := decodeRecord(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		c := compareValues(out[i].Fields[field], out[j].Fields[field])
		if c == 0 {
			return out[i].ID < out[j].ID
		}
		if dir == persistence.Descending {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

// compareValues orders values the way SQLite orders json_extract results:
// NULL first, then numbers, then text.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64, bool:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func decodeRecord(id string, body []byte) (persistence.Record, error) {
	fields, err := persistence.DecodeFields(body)
	if err != nil {
		return persistence.Record{}, err
	}
	return persistence.Record{ID: id, Fields: fields}, nil
}

func sortedIDs(coll collection) []string {
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneCollections(src map[string]collection) map[string]collection {
	dst := make(map[string]collection, len(src))
	for name, coll := range src {
		copied := make(collection, len(coll))
		for id, body := range coll {
			copied[id] = body
		}
		dst[name] = copied
	}
	return dst
}
