package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axonops/entrystore"
	"github.com/axonops/entrystore/internal/metrics"
	"github.com/axonops/entrystore/schema"
)

func numberTemplate() *schema.Template {
	return &schema.Template{
		Index: "id",
		Fields: []schema.TemplateField{
			{Name: "id", Kind: schema.Number},
			{Name: "value", Kind: schema.String},
			{Name: "note", Kind: schema.String, Nullable: true},
		},
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	if opts == nil {
		opts = []Option{WithTemplate(numberTemplate())}
	}
	store, err := NewStore(path, opts...)
	require.NoError(t, err)
	return store, path
}

func TestReadYourWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry := entrystore.Entry{"id": 1.0, "value": "one"}
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, 1.0)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestGetUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "one"}))
	got, err := store.Get(ctx, 99.0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDuplicateKeyKeepsEarlierValue(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "first"}))
	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "second"}))

	got, err := store.Get(ctx, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "first", got["value"], "conflicting inserts are silently ignored")
}

func TestFirstLastAndKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx,
		entrystore.Entry{"id": 3.0, "value": "c"},
		entrystore.Entry{"id": 1.0, "value": "a"},
		entrystore.Entry{"id": 2.0, "value": "b"},
	))

	first, err := store.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first["value"])

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", last["value"])

	firstKey, err := store.FirstKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, firstKey)

	lastKey, err := store.LastKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, lastKey)
}

func TestFields(t *testing.T) {
	store, _ := newTestStore(t)
	fields, err := store.Fields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "value", "note"}, fields)
}

func TestEmptyStoreAnswers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.First(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	firstKey, err := store.FirstKey(ctx)
	require.NoError(t, err)
	assert.Nil(t, firstKey)

	lastKey, err := store.LastKey(ctx)
	require.NoError(t, err)
	assert.Nil(t, lastKey)

	got, err := store.Get(ctx, 1.0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChunkedInsert(t *testing.T) {
	m := metrics.New()
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := NewStore(path, WithTemplate(numberTemplate()), WithMetrics(m))
	require.NoError(t, err)
	ctx := context.Background()

	// three fields: floor(999/3) = 333 rows per statement
	entries := make([]entrystore.Entry, 1000)
	for i := range entries {
		entries[i] = entrystore.Entry{"id": float64(i), "value": fmt.Sprintf("v%d", i)}
	}
	require.NoError(t, store.Put(ctx, entries...))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.InsertBatches), "1000 rows at 333 per statement")

	got, err := store.Get(ctx, 999.0)
	require.NoError(t, err)
	assert.Equal(t, "v999", got["value"])

	lastKey, err := store.LastKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 999.0, lastKey)
}

func TestNullableColumn(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "x"}))
	got, err := store.Get(ctx, 1.0)
	require.NoError(t, err)
	_, present := got["note"]
	assert.False(t, present, "NULL columns are omitted from the entry")

	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 2.0, "value": "y", "note": "kept"}))
	got, err = store.Get(ctx, 2.0)
	require.NoError(t, err)
	assert.Equal(t, "kept", got["note"])
}

func TestSchemaPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	store, err := NewStore(path, WithTemplate(numberTemplate()))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "one"}))

	reopened, err := NewStore(path)
	require.NoError(t, err)
	fields, err := reopened.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "value", "note"}, fields)

	got, err := reopened.Get(ctx, 1.0)
	require.NoError(t, err)
	assert.Equal(t, "one", got["value"])
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	store, err := NewStore(path, WithTemplate(numberTemplate()))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, entrystore.Entry{"id": 1.0, "value": "one"}))

	widened := numberTemplate()
	widened.Fields = append(widened.Fields, schema.TemplateField{Name: "additional", Kind: schema.String})
	mismatched, err := NewStore(path, WithTemplate(widened))
	require.NoError(t, err)

	_, err = mismatched.Fields(ctx)
	var mismatch *entrystore.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Contains(t, mismatch.Diff.Missing, "additional")
}

func TestMissingSchemaOnEmptyBacking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Fields(context.Background())
	assert.ErrorIs(t, err, entrystore.ErrMissingSchema)

	err = store.Put(context.Background(), entrystore.Entry{"id": 1.0, "value": "x"})
	assert.ErrorIs(t, err, entrystore.ErrMissingSchema)
}

func TestValidationError(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Put(context.Background(), entrystore.Entry{"id": 1.0, "value": 2.0})
	var verr *schema.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDateIndexStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dates.db")
	store, err := NewStore(path, WithTemplate(&schema.Template{
		Index: "at",
		Fields: []schema.TemplateField{
			{Name: "at", Kind: schema.Date},
			{Name: "value", Kind: schema.String},
		},
	}))
	require.NoError(t, err)
	ctx := context.Background()

	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2000, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx,
		entrystore.Entry{"at": t1, "value": "late"},
		entrystore.Entry{"at": t0, "value": "early"},
	))

	firstKey, err := store.FirstKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0, firstKey)

	got, err := store.Get(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, "late", got["value"])
}

func TestConcurrentPutsAreSerialized(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			done <- store.Put(ctx, entrystore.Entry{"id": float64(i), "value": fmt.Sprintf("v%d", i)})
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	for i := 0; i < 8; i++ {
		got, err := store.Get(ctx, float64(i))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, fmt.Sprintf("v%d", i), got["value"])
	}
}
