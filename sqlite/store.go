// Package sqlite implements the indexed relational store over an
// embedded SQLite database file: a single-row schema table, a records
// table keyed by the index column, chunked parameterized insertion and a
// serialized writer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/axonops/entrystore"
	"github.com/axonops/entrystore/internal/metrics"
	"github.com/axonops/entrystore/schema"
)

// maxParams is the host engine's bound-parameter cap per statement.
const maxParams = 999

const (
	schemaTable  = "schema"
	recordsTable = "records"
)

// Store is the indexed relational store over a database file.
type Store struct {
	path     string
	template *schema.Template
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// writeMu is the store-level single writer slot: only one put task
	// of this Store runs against the database at a time, independent of
	// call concurrency. It does not serialize other Store values opened
	// on the same file, it is not a filesystem lock and it does not
	// coordinate across processes.
	writeMu sync.Mutex

	schemaMu sync.Mutex
	resolved *schema.Schema
}

// Option configures a Store.
type Option func(*Store)

// WithTemplate declares the entry template the store reconciles against
// any persisted schema.
func WithTemplate(t *schema.Template) Option {
	return func(s *Store) {
		s.template = t
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetrics attaches store metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a relational store over the database file at path.
// The file is opened per task and closed on every exit path; no handle
// outlives an operation.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store needs a database file path")
	}
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func init() {
	entrystore.Register(entrystore.BackendSQLite, func(config map[string]interface{}) (entrystore.Store, error) {
		path, ok := config["path"].(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("sqlite config needs a database file path")
		}
		var opts []Option
		if t, ok := config["template"].(*schema.Template); ok && t != nil {
			opts = append(opts, WithTemplate(t))
		}
		return NewStore(path, opts...)
	})
}

// withDB opens the database for one task and closes it on all exit
// paths.
func (s *Store) withDB(ctx context.Context, task func(db *sql.DB) error) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database %q: %w", s.path, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("open database %q: %w", s.path, err)
	}
	return task(db)
}

// resolveSchema reconciles the declared template with the persisted
// schema table, creating both tables atomically on first-time
// initialization with a declared template. The result is cached for the
// store's lifetime.
func (s *Store) resolveSchema(ctx context.Context, db *sql.DB) (*schema.Schema, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.resolved != nil {
		return s.resolved, nil
	}

	stored, err := s.readStoredSchema(ctx, db)
	if err != nil {
		return nil, err
	}

	var declared *schema.Schema
	if s.template != nil {
		declared, err = s.template.Schema()
		if err != nil {
			return nil, err
		}
	}

	resolved, err := entrystore.Resolve(declared, stored)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		if err := s.initTables(ctx, db, resolved); err != nil {
			return nil, err
		}
		s.logger.Debug("schema persisted", slog.String("database", s.path))
	}
	s.resolved = resolved
	return resolved, nil
}

// readStoredSchema reads the persisted schema, or nil when the schema
// table does not exist.
func (s *Store) readStoredSchema(ctx context.Context, db *sql.DB) (*schema.Schema, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, schemaTable).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("probe schema table: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT 1`, quote(schemaTable)))
	if err != nil {
		return nil, fmt.Errorf("read schema table: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("schema table holds no row")
	}
	tokens := make([]string, len(cols))
	ptrs := make([]any, len(cols))
	for i := range tokens {
		ptrs[i] = &tokens[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("read schema table: %w", err)
	}

	stored := &schema.Schema{}
	for i, name := range cols {
		ft, isIndex, err := schema.DecodeToken(tokens[i])
		if err != nil {
			return nil, fmt.Errorf("schema column %q: %w", name, err)
		}
		if isIndex {
			stored.Index = name
		}
		stored.Fields = append(stored.Fields, schema.Field{Name: name, Type: ft})
	}
	return stored, nil
}

// initTables creates the schema and records tables in one transaction.
func (s *Store) initTables(ctx context.Context, db *sql.DB, sch *schema.Schema) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("initialize tables: %w", err)
	}
	defer tx.Rollback()

	schemaCols := make([]string, len(sch.Fields))
	tokens := make([]string, len(sch.Fields))
	marks := make([]string, len(sch.Fields))
	recordCols := make([]string, len(sch.Fields))
	for i, f := range sch.Fields {
		schemaCols[i] = quote(f.Name) + " TEXT"
		tokens[i] = schema.EncodeToken(f.Type, f.Name == sch.Index)
		marks[i] = "?"
		recordCols[i] = quote(f.Name) + " " + affinity(f.Type)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`,
		quote(schemaTable), strings.Join(schemaCols, ", "))); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}
	args := make([]any, len(tokens))
	for i, t := range tokens {
		args[i] = t
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s VALUES (%s)`,
		quote(schemaTable), strings.Join(marks, ", ")), args...); err != nil {
		return fmt.Errorf("persist schema row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s, PRIMARY KEY(%s))`,
		quote(recordsTable), strings.Join(recordCols, ", "), quote(sch.Index))); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return tx.Commit()
}

// affinity maps a field type to its column affinity: NUMERIC for scalar
// Boolean, Number and Date, TEXT otherwise. Lists are stored as text.
func affinity(ft schema.FieldType) string {
	if ft.List {
		return "TEXT"
	}
	switch ft.Kind {
	case schema.Boolean, schema.Number, schema.Date:
		return "NUMERIC"
	}
	return "TEXT"
}

// Fields returns the schema's field names in declaration order.
func (s *Store) Fields(ctx context.Context) ([]string, error) {
	var names []string
	err := s.withDB(ctx, func(db *sql.DB) error {
		sch, err := s.resolveSchema(ctx, db)
		if err != nil {
			return err
		}
		names = sch.Names()
		return nil
	})
	return names, err
}

// Get returns the entry stored under key, or nil when no row matches.
func (s *Store) Get(ctx context.Context, key any) (entrystore.Entry, error) {
	var entry entrystore.Entry
	err := s.withDB(ctx, func(db *sql.DB) error {
		sch, err := s.resolveSchema(ctx, db)
		if err != nil {
			return err
		}
		param, err := schema.HydrateSQL(sch.IndexType(), key)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ? LIMIT 1`,
			quote(recordsTable), quote(sch.Index))
		entry, err = s.queryOne(ctx, db, sch, query, param)
		return err
	})
	return entry, err
}

// First returns the entry with the smallest index value.
func (s *Store) First(ctx context.Context) (entrystore.Entry, error) {
	return s.boundary(ctx, "ASC")
}

// Last returns the entry with the largest index value.
func (s *Store) Last(ctx context.Context) (entrystore.Entry, error) {
	return s.boundary(ctx, "DESC")
}

func (s *Store) boundary(ctx context.Context, direction string) (entrystore.Entry, error) {
	var entry entrystore.Entry
	err := s.withDB(ctx, func(db *sql.DB) error {
		sch, err := s.resolveSchema(ctx, db)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s %s LIMIT 1`,
			quote(recordsTable), quote(sch.Index), direction)
		entry, err = s.queryOne(ctx, db, sch, query)
		return err
	})
	return entry, err
}

// FirstKey returns the smallest index value.
func (s *Store) FirstKey(ctx context.Context) (any, error) {
	return s.projectIndex(ctx, s.First)
}

// LastKey returns the largest index value.
func (s *Store) LastKey(ctx context.Context) (any, error) {
	return s.projectIndex(ctx, s.Last)
}

func (s *Store) projectIndex(ctx context.Context, read func(context.Context) (entrystore.Entry, error)) (any, error) {
	entry, err := read(ctx)
	if err != nil || entry == nil {
		return nil, err
	}
	s.schemaMu.Lock()
	sch := s.resolved
	s.schemaMu.Unlock()
	return entry[sch.Index], nil
}

// queryOne runs a query expected to yield at most one record row.
func (s *Store) queryOne(ctx context.Context, db *sql.DB, sch *schema.Schema, query string, args ...any) (entrystore.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	entry := make(entrystore.Entry, len(cols))
	for i, name := range cols {
		ft, ok := sch.Type(name)
		if !ok {
			return nil, fmt.Errorf("records column %q is not in the schema", name)
		}
		v, err := schema.DehydrateSQL(ft, vals[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if v == nil {
			continue
		}
		entry[name] = v
	}
	return entry, nil
}

// Put runs one serialized write task: open, resolve, validate, insert in
// chunks sized to the parameter cap, close. Later writes on an existing
// index value are silently ignored.
func (s *Store) Put(ctx context.Context, entries ...entrystore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	task := uuid.NewString()
	err := s.withDB(ctx, func(db *sql.DB) error {
		sch, err := s.resolveSchema(ctx, db)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := schema.Validate(sch, entry); err != nil {
				return err
			}
		}

		fields := sch.Fields
		if len(fields) > maxParams {
			return fmt.Errorf("schema has %d fields, parameter cap is %d", len(fields), maxParams)
		}
		chunkSize := maxParams / len(fields)

		names := make([]string, len(fields))
		marks := make([]string, len(fields))
		for i, f := range fields {
			names[i] = quote(f.Name)
			marks[i] = "?"
		}
		rowMarks := "(" + strings.Join(marks, ", ") + ")"
		prefix := fmt.Sprintf(`INSERT INTO %s (%s) VALUES `,
			quote(recordsTable), strings.Join(names, ", "))

		for start := 0; start < len(entries); start += chunkSize {
			end := start + chunkSize
			if end > len(entries) {
				end = len(entries)
			}
			chunk := entries[start:end]
			groups := make([]string, len(chunk))
			args := make([]any, 0, len(chunk)*len(fields))
			for i, entry := range chunk {
				groups[i] = rowMarks
				for _, f := range fields {
					param, err := schema.HydrateSQL(f.Type, entry[f.Name])
					if err != nil {
						return fmt.Errorf("field %q: %w", f.Name, err)
					}
					args = append(args, param)
				}
			}
			query := prefix + strings.Join(groups, ",") + " ON CONFLICT DO NOTHING"
			s.trace(task, query, len(chunk))
			if _, err := db.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert chunk: %w", err)
			}
			if s.metrics != nil {
				s.metrics.InsertBatches.Inc()
			}
		}
		return nil
	})
	if s.metrics != nil {
		if err != nil {
			s.metrics.PutErrors.WithLabelValues("sqlite").Inc()
		} else {
			s.metrics.PutEntries.WithLabelValues("sqlite").Add(float64(len(entries)))
		}
	}
	return err
}

// trace is the put task's statement sink.
func (s *Store) trace(task, query string, rows int) {
	s.logger.Debug("sql",
		slog.String("task", task),
		slog.Int("rows", rows),
		slog.String("statement", truncate(query, 120)))
}

func truncate(q string, n int) string {
	if len(q) <= n {
		return q
	}
	return q[:n] + "..."
}

func quote(ident string) string {
	return `"` + ident + `"`
}

var _ entrystore.Store = (*Store)(nil)
