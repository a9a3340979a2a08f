// Package csv implements the partitioned CSV store: schema persistence
// under schema.json, one file per partition, append-fast batched writes
// with a rewrite fallback, and bounded first/last probing.
package csv

import (
	"bytes"
	"context"
	gocsv "encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/axonops/entrystore"
	"github.com/axonops/entrystore/internal/metrics"
	"github.com/axonops/entrystore/partition"
	"github.com/axonops/entrystore/schema"
	"github.com/axonops/entrystore/storage"
)

const (
	// schemaFile is the reserved path of the persisted schema.
	schemaFile = "schema.json"

	// fileExt is the extension of partition files.
	fileExt = "csv"
)

// Store is the partitioned CSV store over a storage adapter.
type Store struct {
	adapter  storage.Adapter
	part     partition.Partitioner
	template *schema.Template
	logger   *slog.Logger
	metrics  *metrics.Metrics

	schemaMu sync.Mutex
	resolved *schema.Schema

	qmu    sync.Mutex
	queues map[string]*cargo
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

// NewStore creates a CSV store over the given adapter and partitioner.
func NewStore(adapter storage.Adapter, part partition.Partitioner, opts ...Option) (*Store, error) {
	if adapter == nil {
		return nil, fmt.Errorf("csv store needs a storage adapter")
	}
	if part == nil {
		return nil, fmt.Errorf("csv store needs a partitioner")
	}
	s := &Store{
		adapter: adapter,
		part:    part,
		logger:  slog.Default(),
		queues:  make(map[string]*cargo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// resolveSchema reconciles the declared template with the persisted
// schema, persisting the schema on first contact. The result is cached
// for the store's lifetime.
func (s *Store) resolveSchema(ctx context.Context) (*schema.Schema, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.resolved != nil {
		return s.resolved, nil
	}

	var stored *schema.Schema
	exists, err := s.adapter.Exists(ctx, schemaFile)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", schemaFile, err)
	}
	if exists {
		data, err := s.adapter.Read(ctx, schemaFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", schemaFile, err)
		}
		stored, err = schema.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", schemaFile, err)
		}
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
		data, err := schema.Encode(resolved)
		if err != nil {
			return nil, err
		}
		if err := s.adapter.Write(ctx, schemaFile, data); err != nil {
			return nil, fmt.Errorf("persist %s: %w", schemaFile, err)
		}
		s.logger.Debug("schema persisted", slog.String("path", schemaFile))
	}
	s.resolved = resolved
	return resolved, nil
}

// Fields returns the schema's field names in declaration order.
func (s *Store) Fields(ctx context.Context) ([]string, error) {
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	return sch.Names(), nil
}

// Get returns the entry stored under key, or nil if the key's partition
// does not exist or holds no matching row.
func (s *Store) Get(ctx context.Context, key any) (entrystore.Entry, error) {
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	name, err := s.part.Partition(key)
	if err != nil {
		return nil, err
	}
	keyCell, err := schema.HydrateCSV(sch.IndexType(), key)
	if err != nil {
		return nil, err
	}
	path := partitionFile(name)
	exists, err := s.adapter.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, err := s.adapter.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	header, rows, err := parseFile(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	idxCol := -1
	for i, name := range header {
		if name == sch.Index {
			idxCol = i
			break
		}
	}
	if idxCol < 0 {
		return nil, fmt.Errorf("parse %s: header lacks index column %q", path, sch.Index)
	}
	for _, row := range rows {
		if row[idxCol] == keyCell {
			return dehydrateRow(sch, header, row)
		}
	}
	return nil, nil
}

// First returns the entry with the smallest index value, probing only
// the first populated partition's first two lines.
func (s *Store) First(ctx context.Context) (entrystore.Entry, error) {
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	r, ok, err := s.populatedRange(ctx)
	if err != nil || !ok {
		return nil, err
	}
	path := partitionFile(r.First)
	exists, err := s.adapter.Exists(ctx, path)
	if err != nil || !exists {
		return nil, err
	}
	probe, err := s.adapter.Head(ctx, path, 2)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	header, rows, err := parseFile(probe)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return dehydrateRow(sch, header, rows[0])
}

// Last returns the entry with the largest index value, probing the last
// populated partition with one head line and one tail line.
func (s *Store) Last(ctx context.Context) (entrystore.Entry, error) {
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	r, ok, err := s.populatedRange(ctx)
	if err != nil || !ok {
		return nil, err
	}
	path := partitionFile(r.Last)
	exists, err := s.adapter.Exists(ctx, path)
	if err != nil || !exists {
		return nil, err
	}
	return s.probeLast(ctx, sch, path)
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
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := read(ctx)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry[sch.Index], nil
}

// Put validates the entries, buckets them by partition and drains one
// batch per touched partition. Batches on distinct partitions are
// written concurrently; batches on one partition are serialized in
// enqueue order. Put resolves only when every touched queue has drained.
func (s *Store) Put(ctx context.Context, entries ...entrystore.Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	defer func() {
		if err != nil && s.metrics != nil {
			s.metrics.PutErrors.WithLabelValues("csv").Inc()
		}
	}()
	sch, err := s.resolveSchema(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := schema.Validate(sch, entry); err != nil {
			return err
		}
	}

	buckets := make(map[string][]entrystore.Entry)
	order := make([]string, 0, 1)
	for _, entry := range entries {
		name, err := s.part.Partition(entry[sch.Index])
		if err != nil {
			return err
		}
		if _, ok := buckets[name]; !ok {
			order = append(order, name)
		}
		buckets[name] = append(buckets[name], entry)
	}

	waits := make([]<-chan error, 0, len(order))
	for _, name := range order {
		name := name
		waits = append(waits, s.push(name, buckets[name], func(batch []entrystore.Entry) error {
			started := time.Now()
			err := s.writeBatch(ctx, sch, name, batch)
			if s.metrics != nil {
				s.metrics.DrainDuration.Observe(time.Since(started).Seconds())
			}
			return err
		}))
	}

	var errs []error
	for _, wait := range waits {
		if err := <-wait; err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PutEntries.WithLabelValues("csv").Add(float64(len(entries)))
	}
	return nil
}

// writeBatch writes one deduplicated, ascending batch into a partition,
// choosing between append mode (batch strictly later than the file's
// last entry) and a full rewrite.
func (s *Store) writeBatch(ctx context.Context, sch *schema.Schema, name string, batch []entrystore.Entry) error {
	batch, err := dedupeSort(sch, batch)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	path := partitionFile(name)
	exists, err := s.adapter.Exists(ctx, path)
	if err != nil {
		return err
	}

	if exists {
		last, err := s.probeLast(ctx, sch, path)
		if err != nil {
			return err
		}
		appendable := true
		if last != nil {
			cmp, err := schema.CompareKeys(sch.IndexType().Kind, batch[0][sch.Index], last[sch.Index])
			if err != nil {
				return err
			}
			appendable = cmp > 0
		}
		if appendable {
			data, err := emitRows(sch, batch, false)
			if err != nil {
				return err
			}
			if err := s.adapter.Append(ctx, path, data); err != nil {
				return fmt.Errorf("append %s: %w", path, err)
			}
			if s.metrics != nil {
				s.metrics.PartitionAppends.Inc()
			}
			s.logger.Debug("partition batch appended",
				slog.String("partition", name), slog.Int("entries", len(batch)))
			return nil
		}
	}

	merged := batch
	if exists {
		data, err := s.adapter.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		header, rows, err := parseFile(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		existing := make([]entrystore.Entry, 0, len(rows)+len(batch))
		for _, row := range rows {
			entry, err := dehydrateRow(sch, header, row)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			existing = append(existing, entry)
		}
		merged = append(existing, batch...)
	}
	merged, err = dedupeSort(sch, merged)
	if err != nil {
		return err
	}
	data, err := emitRows(sch, merged, true)
	if err != nil {
		return err
	}
	if err := s.adapter.Write(ctx, path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if s.metrics != nil {
		s.metrics.PartitionRewrites.Inc()
	}
	s.logger.Debug("partition rewritten",
		slog.String("partition", name), slog.Int("entries", len(merged)))
	return nil
}

// populatedRange lists the partition files and orders them under the
// partitioner's natural order.
func (s *Store) populatedRange(ctx context.Context) (partition.Range, bool, error) {
	files, err := s.adapter.Collection(ctx, fileExt)
	if err != nil {
		return partition.Range{}, false, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, strings.TrimSuffix(f, "."+fileExt))
	}
	r, ok := s.part.Range(names)
	return r, ok, nil
}

// probeLast reads a partition's last entry from two lines: the header
// from the head and the final row from the tail. It returns nil for a
// partition holding no rows.
func (s *Store) probeLast(ctx context.Context, sch *schema.Schema, path string) (entrystore.Entry, error) {
	head, err := s.adapter.Head(ctx, path, 1)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	tail, err := s.adapter.Tail(ctx, path, 1)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if len(tail) == 0 || bytes.Equal(head, tail) {
		return nil, nil
	}
	header, rows, err := parseFile(append(append([]byte{}, head...), tail...))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return dehydrateRow(sch, header, rows[0])
}

// dedupeSort deduplicates a batch by index key, keeping the latest
// occurrence in iteration order, and sorts it ascending by index.
func dedupeSort(sch *schema.Schema, batch []entrystore.Entry) ([]entrystore.Entry, error) {
	it := sch.IndexType()
	byKey := make(map[string]int, len(batch))
	out := make([]entrystore.Entry, 0, len(batch))
	for _, entry := range batch {
		cell, err := schema.HydrateCSV(it, entry[sch.Index])
		if err != nil {
			return nil, err
		}
		if at, ok := byKey[cell]; ok {
			out[at] = entry
			continue
		}
		byKey[cell] = len(out)
		out = append(out, entry)
	}
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		cmp, err := schema.CompareKeys(it.Kind, out[i][sch.Index], out[j][sch.Index])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return cmp < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

// emitRows renders entries as CSV, optionally with the header line.
func emitRows(sch *schema.Schema, entries []entrystore.Entry, header bool) ([]byte, error) {
	var buf bytes.Buffer
	w := gocsv.NewWriter(&buf)
	if header {
		if err := w.Write(sch.Names()); err != nil {
			return nil, err
		}
	}
	for _, entry := range entries {
		row := make([]string, len(sch.Fields))
		for i, f := range sch.Fields {
			cell, err := schema.HydrateCSV(f.Type, entry[f.Name])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// parseFile splits CSV bytes into a header and data rows.
func parseFile(data []byte) (header []string, rows [][]string, err error) {
	r := gocsv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// dehydrateRow converts one CSV row back into an entry.
func dehydrateRow(sch *schema.Schema, header []string, row []string) (entrystore.Entry, error) {
	if len(row) != len(header) {
		return nil, fmt.Errorf("row width %d does not match header width %d", len(row), len(header))
	}
	entry := make(entrystore.Entry, len(header))
	for i, name := range header {
		ft, ok := sch.Type(name)
		if !ok {
			return nil, fmt.Errorf("header column %q is not in the schema", name)
		}
		v, err := schema.DehydrateCSV(ft, row[i])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if v == nil {
			continue
		}
		entry[name] = v
	}
	return entry, nil
}

func partitionFile(name string) string {
	return name + "." + fileExt
}

var _ entrystore.Store = (*Store)(nil)
