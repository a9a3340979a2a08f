package schema

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateSchema(t *testing.T) {
	tmpl := &Template{
		Index: "id",
		Fields: []TemplateField{
			{Name: "id", Kind: Number},
			{Name: "label", Kind: String, Nullable: true},
			{Name: "links", Kind: URL, List: true},
		},
	}
	s, err := tmpl.Schema()
	require.NoError(t, err)
	assert.Equal(t, "id", s.Index)
	assert.Equal(t, []string{"id", "label", "links"}, s.Names())

	ft, ok := s.Type("label")
	require.True(t, ok)
	assert.Equal(t, FieldType{Kind: String, Nullable: true}, ft)
}

func TestTemplateSchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		tmpl *Template
		want error
	}{
		{
			"bad field name",
			&Template{Index: "id", Fields: []TemplateField{
				{Name: "id", Kind: Number}, {Name: "bad name", Kind: String},
			}},
			ErrNonCompliantKey,
		},
		{
			"unknown kind",
			&Template{Index: "id", Fields: []TemplateField{
				{Name: "id", Kind: Number}, {Name: "x", Kind: Kind("Timestamp")},
			}},
			ErrTypeUndetermined,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tmpl.Schema()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	noIndex := &Template{Fields: []TemplateField{{Name: "id", Kind: Number}}}
	_, err := noIndex.Schema()
	assert.Error(t, err)

	nullableIndex := &Template{Index: "id", Fields: []TemplateField{{Name: "id", Kind: Number, Nullable: true}}}
	_, err = nullableIndex.Schema()
	assert.Error(t, err)
}

func TestTypeMapOf(t *testing.T) {
	u, _ := url.Parse("https://example.com/x")
	m, err := TypeMapOf(map[string]any{
		"flag":  true,
		"count": 3,
		"ratio": 0.5,
		"name":  "a",
		"at":    time.Unix(0, 0),
		"link":  u,
		"meta":  map[string]any{"a": 1.0},
		"tags":  []string{"x", "y"},
		"mixed": []any{1.0, 2.0},
	})
	require.NoError(t, err)
	assert.Equal(t, TypeMap{
		"flag":  {Kind: Boolean},
		"count": {Kind: Number},
		"ratio": {Kind: Number},
		"name":  {Kind: String},
		"at":    {Kind: Date},
		"link":  {Kind: URL},
		"meta":  {Kind: Embedded},
		"tags":  {Kind: String, List: true},
		"mixed": {Kind: Number, List: true},
	}, m)
}

func TestTypeMapOfRejects(t *testing.T) {
	_, err := TypeMapOf(map[string]any{"x": make(chan int)})
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = TypeMapOf(map[string]any{"x": []any{1.0, "two"}})
	assert.True(t, errors.Is(err, ErrUnsupportedType), "mixed list must be rejected")

	_, err = TypeMapOf(map[string]any{"x": nil})
	assert.True(t, errors.Is(err, ErrTypeUndetermined))

	_, err = TypeMapOf(map[string]any{"bad name": 1.0})
	assert.True(t, errors.Is(err, ErrNonCompliantKey))
}

func TestValidate(t *testing.T) {
	s := testSchema()

	err := Validate(s, map[string]any{
		"timestamp": time.Unix(100, 0),
		"value":     "v",
		"tags":      []string{"a"},
		"score":     1.5,
	})
	assert.NoError(t, err)

	// nullable relaxation: absent and nil both accepted
	assert.NoError(t, Validate(s, map[string]any{
		"timestamp": time.Unix(100, 0),
		"value":     "v",
		"tags":      []any{},
	}))
	assert.NoError(t, Validate(s, map[string]any{
		"timestamp": time.Unix(100, 0),
		"value":     "v",
		"tags":      []string{},
		"score":     nil,
	}))
}

func TestValidateDiff(t *testing.T) {
	s := testSchema()

	err := Validate(s, map[string]any{
		"timestamp": "not a date",
		"tags":      []string{"a"},
		"extra":     1.0,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Diff.Changed, "timestamp")
	assert.Contains(t, verr.Diff.Missing, "value")
	assert.Contains(t, verr.Diff.Extra, "extra")
	assert.NotEmpty(t, verr.Error())
	assert.NotNil(t, verr.Entry)
}

func TestValidateNonCompliantKey(t *testing.T) {
	s := testSchema()
	err := Validate(s, map[string]any{
		"timestamp": time.Unix(100, 0),
		"value":     "v",
		"tags":      []string{},
		"bad key":   "x",
	})
	assert.True(t, errors.Is(err, ErrNonCompliantKey))
}

func TestCompare(t *testing.T) {
	a := testSchema()
	b := &Schema{
		Index: "value",
		Fields: []Field{
			{Name: "timestamp", Type: FieldType{Kind: Date}},
			{Name: "value", Type: FieldType{Kind: String}},
			{Name: "tags", Type: FieldType{Kind: Number, List: true}},
			{Name: "added", Type: FieldType{Kind: Boolean}},
		},
	}
	d := Compare(a, b)
	assert.False(t, d.Empty())
	assert.Equal(t, "timestamp", d.IndexWant)
	assert.Equal(t, "value", d.IndexGot)
	assert.Contains(t, d.Missing, "score")
	assert.Contains(t, d.Extra, "added")
	assert.Contains(t, d.Changed, "tags")
	assert.NotEmpty(t, d.String())

	same := Compare(a, testSchema())
	assert.True(t, same.Empty())
}

func TestCompareKeys(t *testing.T) {
	cmp, err := CompareKeys(Number, 1.0, 2)
	require.NoError(t, err)
	assert.Negative(t, cmp)

	cmp, err = CompareKeys(Date, time.Unix(200, 0), time.Unix(100, 0))
	require.NoError(t, err)
	assert.Positive(t, cmp)

	cmp, err = CompareKeys(String, "a", "a")
	require.NoError(t, err)
	assert.Zero(t, cmp)

	u1, _ := url.Parse("https://a.example")
	u2, _ := url.Parse("https://b.example")
	cmp, err = CompareKeys(URL, u1, u2)
	require.NoError(t, err)
	assert.Negative(t, cmp)

	_, err = CompareKeys(Number, "one", 2.0)
	assert.Error(t, err)
}
