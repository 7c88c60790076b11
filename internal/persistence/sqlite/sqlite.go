// Package sqlite implements persistence.Store on SQLite. Every collection
// lives in one records table with a JSON body; equality queries and ordering
// use json_extract so collections stay schemaless.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
	"github.com/ghmassaro/presenca-treino/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// Storage is a persistence.Store backed by SQLite.
type Storage struct {
	pool        *ConnectionPool
	mapper      *ErrorMapper
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// Option customises a Storage.
type Option func(*Storage)

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Storage) {
		if fn != nil {
			s.idGenerator = fn
		}
	}
}

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used by Migrate.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database described by config. Call Migrate before use.
func Open(ctx context.Context, config Config, opts ...Option) (*Storage, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		pool:        pool,
		mapper:      NewErrorMapper(),
		idGenerator: uuid.NewString,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.mapper.MapError(s.pool.Ping(ctx))
}

// Migrate applies the embedded schema migrations and returns how many ran.
func (s *Storage) Migrate(ctx context.Context) (int, error) {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB().DB),
		migrationDir,
		s.logger,
	)
	return manager.RunMigrations(ctx)
}

// MigrationStatus reports applied and pending migrations.
func (s *Storage) MigrationStatus(ctx context.Context) (*migration.MigrationStatus, error) {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB().DB),
		migrationDir,
		s.logger,
	)
	return manager.GetMigrationStatus(ctx)
}

func (s *Storage) ops(q sqlx.ExtContext) *operations {
	return &operations{q: q, mapper: s.mapper, idGenerator: s.idGenerator, now: s.now}
}

func (s *Storage) Create(ctx context.Context, collection string, fields persistence.Fields) (persistence.Record, error) {
	return s.ops(s.pool.DB()).Create(ctx, collection, fields)
}

func (s *Storage) Get(ctx context.Context, collection, id string) (persistence.Record, error) {
	return s.ops(s.pool.DB()).Get(ctx, collection, id)
}

func (s *Storage) QueryEquals(ctx context.Context, collection, field string, value any) ([]persistence.Record, error) {
	return s.ops(s.pool.DB()).QueryEquals(ctx, collection, field, value)
}

func (s *Storage) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	return s.ops(s.pool.DB()).Update(ctx, collection, id, fields)
}

func (s *Storage) Delete(ctx context.Context, collection, id string) error {
	return s.ops(s.pool.DB()).Delete(ctx, collection, id)
}

func (s *Storage) OrderBy(ctx context.Context, collection, field string, dir persistence.Direction) ([]persistence.Record, error) {
	return s.ops(s.pool.DB()).OrderBy(ctx, collection, field, dir)
}

// RunInTransaction runs fn inside a BEGIN IMMEDIATE transaction when the
// pool is configured that way, so the read-check-write sequence of fn cannot
// interleave with another writer.
func (s *Storage) RunInTransaction(ctx context.Context, fn persistence.TxFunc) error {
	var fnErr error
	err := s.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		fnErr = fn(ctx, s.ops(tx))
		return fnErr
	})
	if err != nil && fnErr != nil {
		// fn errors are already mapped by the operations or belong to the caller.
		return fnErr
	}
	return s.mapper.MapError(err)
}

type recordRow struct {
	ID   string `db:"id"`
	Body string `db:"body"`
}

type operations struct {
	q           sqlx.ExtContext
	mapper      *ErrorMapper
	idGenerator func() string
	now         func() time.Time
}

func (o *operations) Create(ctx context.Context, collection string, fields persistence.Fields) (persistence.Record, error) {
	body, err := persistence.EncodeFields(fields)
	if err != nil {
		return persistence.Record{}, err
	}
	id := o.idGenerator()
	stamp := o.now().UTC().Format(time.RFC3339Nano)

	const insertSQL = `INSERT INTO records (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := o.q.ExecContext(ctx, insertSQL, collection, id, string(body), stamp, stamp); err != nil {
		return persistence.Record{}, fmt.Errorf("sqlite: create %s: %w", collection, o.mapper.MapError(err))
	}
	return toRecord(recordRow{ID: id, Body: string(body)})
}

func (o *operations) Get(ctx context.Context, collection, id string) (persistence.Record, error) {
	var row recordRow
	const selectSQL = `SELECT id, body FROM records WHERE collection = ? AND id = ?`
	if err := sqlx.GetContext(ctx, o.q, &row, selectSQL, collection, id); err != nil {
		return persistence.Record{}, o.mapper.MapError(err)
	}
	return toRecord(row)
}

func (o *operations) QueryEquals(ctx context.Context, collection, field string, value any) ([]persistence.Record, error) {
	if !persistence.ValidFieldName(field) {
		return nil, fmt.Errorf("%w: %q", persistence.ErrInvalidField, field)
	}
	arg, err := persistence.NormalizeValue(value)
	if err != nil {
		return nil, err
	}

	var rows []recordRow
	const selectSQL = `SELECT id, body FROM records WHERE collection = ? AND json_extract(body, ?) = ? ORDER BY id`
	if err := sqlx.SelectContext(ctx, o.q, &rows, selectSQL, collection, jsonPath(field), arg); err != nil {
		return nil, fmt.Errorf("sqlite: query %s.%s: %w", collection, field, o.mapper.MapError(err))
	}
	return toRecords(rows)
}

func (o *operations) Update(ctx context.Context, collection, id string, fields persistence.Fields) error {
	patch, err := persistence.EncodeFields(fields)
	if err != nil {
		return err
	}
	const updateSQL = `UPDATE records SET body = json_patch(body, ?), updated_at = ? WHERE collection = ? AND id = ?`
	result, err := o.q.ExecContext(ctx, updateSQL, string(patch), o.now().UTC().Format(time.RFC3339Nano), collection, id)
	if err != nil {
		return fmt.Errorf("sqlite: update %s/%s: %w", collection, id, o.mapper.MapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return o.mapper.MapError(err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (o *operations) Delete(ctx context.Context, collection, id string) error {
	const deleteSQL = `DELETE FROM records WHERE collection = ? AND id = ?`
	if _, err := o.q.ExecContext(ctx, deleteSQL, collection, id); err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", collection, id, o.mapper.MapError(err))
	}
	return nil
}

func (o *operations) OrderBy(ctx context.Context, collection, field string, dir persistence.Direction) ([]persistence.Record, error) {
	if !persistence.ValidFieldName(field) {
		return nil, fmt.Errorf("%w: %q", persistence.ErrInvalidField, field)
	}
	selectSQL := `SELECT id, body FROM records WHERE collection = ? ORDER BY json_extract(body, ?) ASC, id ASC`
	if dir == persistence.Descending {
		selectSQL = `SELECT id, body FROM records WHERE collection = ? ORDER BY json_extract(body, ?) DESC, id ASC`
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, o.q, &rows, selectSQL, collection, jsonPath(field)); err != nil {
		return nil, fmt.Errorf("sqlite: order %s by %s: %w", collection, field, o.mapper.MapError(err))
	}
	return toRecords(rows)
}

func jsonPath(field string) string {
	return "$." + field
}

func toRecord(row recordRow) (persistence.Record, error) {
	fields, err := persistence.DecodeFields([]byte(row.Body))
	if err != nil {
		return persistence.Record{}, fmt.Errorf("sqlite: decode %s: %w", row.ID, err)
	}
	return persistence.Record{ID: row.ID, Fields: fields}, nil
}

func toRecords(rows []recordRow) ([]persistence.Record, error) {
	out := make([]persistence.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
