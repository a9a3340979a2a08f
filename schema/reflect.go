package schema

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// TemplateField declares one field of a template.
type TemplateField struct {
	Name     string
	Kind     Kind
	List     bool
	Nullable bool
}

// Template is a user-declared entry description: the declarative form a
// caller hands to a store at construction time.
type Template struct {
	Index  string
	Fields []TemplateField
}

// Schema derives a schema from the template. The template must name
// exactly one index field of an indexable kind, every field name must be
// compliant, and every kind must be a supported one.
func (t *Template) Schema() (*Schema, error) {
	s := &Schema{Index: t.Index}
	for _, f := range t.Fields {
		s.Fields = append(s.Fields, Field{
			Name: f.Name,
			Type: FieldType{Kind: f.Kind, List: f.List, Nullable: f.Nullable},
		})
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// TypeMapOf derives a type map from a concrete entry. The result carries
// no index marker and no nullable markers: nil values and empty []any
// lists cannot be typed and yield ErrTypeUndetermined. Empty typed slices
// such as []string{} take their element kind from the slice type.
func TypeMapOf(entry map[string]any) (TypeMap, error) {
	m := make(TypeMap, len(entry))
	for name, v := range entry {
		if !ValidFieldName(name) {
			return nil, fmt.Errorf("%w: %q", ErrNonCompliantKey, name)
		}
		ft, err := typeOf(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		m[name] = ft
	}
	return m, nil
}

// typeOf determines the field type of a single value.
func typeOf(v any) (FieldType, error) {
	switch x := v.(type) {
	case nil:
		return FieldType{}, ErrTypeUndetermined
	case bool:
		return FieldType{Kind: Boolean}, nil
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return FieldType{Kind: Number}, nil
	case string:
		return FieldType{Kind: String}, nil
	case time.Time:
		return FieldType{Kind: Date}, nil
	case *url.URL:
		return FieldType{Kind: URL}, nil
	case url.URL:
		return FieldType{Kind: URL}, nil
	case map[string]any:
		return FieldType{Kind: Embedded}, nil
	case []bool:
		return FieldType{Kind: Boolean, List: true}, nil
	case []float64:
		return FieldType{Kind: Number, List: true}, nil
	case []int:
		return FieldType{Kind: Number, List: true}, nil
	case []int64:
		return FieldType{Kind: Number, List: true}, nil
	case []string:
		return FieldType{Kind: String, List: true}, nil
	case []time.Time:
		return FieldType{Kind: Date, List: true}, nil
	case []*url.URL:
		return FieldType{Kind: URL, List: true}, nil
	case []map[string]any:
		return FieldType{Kind: Embedded, List: true}, nil
	case []any:
		if len(x) == 0 {
			return FieldType{List: true}, ErrTypeUndetermined
		}
		elem, err := typeOf(x[0])
		if err != nil {
			return FieldType{}, err
		}
		if elem.List {
			return FieldType{}, fmt.Errorf("%w: nested list", ErrUnsupportedType)
		}
		for _, e := range x[1:] {
			et, err := typeOf(e)
			if err != nil {
				return FieldType{}, err
			}
			if et != elem {
				return FieldType{}, fmt.Errorf("%w: mixed list elements", ErrUnsupportedType)
			}
		}
		elem.List = true
		return elem, nil
	default:
		return FieldType{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// FieldChange records a per-field type disagreement.
type FieldChange struct {
	Expected FieldType
	Actual   FieldType
}

// Diff is a structural difference between an expected type map and an
// observed one, suitable for diagnostic rendering.
type Diff struct {
	// Missing holds expected fields that were absent.
	Missing map[string]FieldType

	// Extra holds observed fields that were not expected.
	Extra map[string]FieldType

	// Changed holds fields present on both sides with different types.
	Changed map[string]FieldChange

	// IndexWant and IndexGot record an index field disagreement, when any.
	IndexWant, IndexGot string
}

// Empty returns true if the diff records no difference.
func (d *Diff) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 && len(d.Changed) == 0 &&
		d.IndexWant == d.IndexGot
}

func (d *Diff) String() string {
	var parts []string
	if d.IndexWant != d.IndexGot {
		parts = append(parts, fmt.Sprintf("index: want %q, got %q", d.IndexWant, d.IndexGot))
	}
	for _, name := range sortedNames(d.Missing) {
		parts = append(parts, fmt.Sprintf("missing %q (%s)", name, EncodeToken(d.Missing[name], false)))
	}
	for _, name := range sortedNames(d.Extra) {
		parts = append(parts, fmt.Sprintf("unexpected %q (%s)", name, EncodeToken(d.Extra[name], false)))
	}
	changed := make([]string, 0, len(d.Changed))
	for name := range d.Changed {
		changed = append(changed, name)
	}
	sort.Strings(changed)
	for _, name := range changed {
		c := d.Changed[name]
		parts = append(parts, fmt.Sprintf("%q: want %s, got %s",
			name, EncodeToken(c.Expected, false), EncodeToken(c.Actual, false)))
	}
	return strings.Join(parts, "; ")
}

func sortedNames(m map[string]FieldType) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compare computes the structural diff between two schemas, declared
// against stored.
func Compare(declared, stored *Schema) *Diff {
	d := &Diff{
		Missing:   make(map[string]FieldType),
		Extra:     make(map[string]FieldType),
		Changed:   make(map[string]FieldChange),
		IndexWant: declared.Index,
		IndexGot:  stored.Index,
	}
	dm, sm := declared.Map(), stored.Map()
	for name, dt := range dm {
		st, ok := sm[name]
		if !ok {
			d.Missing[name] = dt
			continue
		}
		if st != dt {
			d.Changed[name] = FieldChange{Expected: dt, Actual: st}
		}
	}
	for name, st := range sm {
		if _, ok := dm[name]; !ok {
			d.Extra[name] = st
		}
	}
	return d
}

// ValidationError reports that a submitted entry does not conform to the
// schema it was validated against.
type ValidationError struct {
	Diff  *Diff
	Entry map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entry does not conform to schema: %s", e.Diff)
}

// Validate checks one entry against the schema. The derived type map
// must equal the schema's, with two relaxations: a nullable field accepts
// either a present value of the declared kind or nil/absence, and a list
// field accepts an empty []any, whose element kind cannot be derived.
func Validate(s *Schema, entry map[string]any) error {
	d := &Diff{
		Missing: make(map[string]FieldType),
		Extra:   make(map[string]FieldType),
		Changed: make(map[string]FieldChange),
	}
	for _, f := range s.Fields {
		v, present := entry[f.Name]
		if !present || v == nil {
			if !f.Type.Nullable {
				d.Missing[f.Name] = f.Type
			}
			continue
		}
		got, err := typeOf(v)
		if err != nil {
			if f.Type.List && got.List && got.Kind == "" {
				// empty list, element kind unknowable: accepted
				continue
			}
			d.Changed[f.Name] = FieldChange{Expected: f.Type, Actual: got}
			continue
		}
		want := f.Type
		want.Nullable = false
		if got != want {
			d.Changed[f.Name] = FieldChange{Expected: f.Type, Actual: got}
		}
	}
	known := s.Map()
	for name, v := range entry {
		if !ValidFieldName(name) {
			return fmt.Errorf("%w: %q", ErrNonCompliantKey, name)
		}
		if _, ok := known[name]; ok {
			continue
		}
		got, _ := typeOf(v)
		d.Extra[name] = got
	}
	if !d.Empty() {
		return &ValidationError{Diff: d, Entry: entry}
	}
	return nil
}

// CompareKeys orders two index values of the given kind. It returns a
// negative, zero or positive result in the manner of strings.Compare.
func CompareKeys(kind Kind, a, b any) (int, error) {
	switch kind {
	case Number:
		x, err := toFloat(a)
		if err != nil {
			return 0, err
		}
		y, err := toFloat(b)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case Date:
		x, ok := a.(time.Time)
		if !ok {
			return 0, fmt.Errorf("%w: %T as Date key", ErrUnsupportedType, a)
		}
		y, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("%w: %T as Date key", ErrUnsupportedType, b)
		}
		return x.Compare(y), nil
	case String, URL:
		x, err := toKeyString(a)
		if err != nil {
			return 0, err
		}
		y, err := toKeyString(b)
		if err != nil {
			return 0, err
		}
		return strings.Compare(x, y), nil
	}
	return 0, fmt.Errorf("%w: %s is not an index kind", ErrUnsupportedType, kind)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%w: %T as Number key", ErrUnsupportedType, v)
}

func toKeyString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case *url.URL:
		return x.String(), nil
	case url.URL:
		return x.String(), nil
	}
	return "", fmt.Errorf("%w: %T as key", ErrUnsupportedType, v)
}
