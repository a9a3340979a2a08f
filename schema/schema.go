// Package schema provides the entry type system: supported kinds, the
// textual schema grammar, template reflection, entry validation, and the
// per-backend value codecs.
package schema

import (
	"errors"
	"fmt"
	"regexp"
)

// Common errors
var (
	ErrUnsupportedType  = errors.New("unsupported type")
	ErrTypeUndetermined = errors.New("type cannot be determined")
	ErrNonCompliantKey  = errors.New("non-compliant field name")
)

// Kind represents a supported scalar kind.
type Kind string

const (
	Boolean  Kind = "Boolean"
	Number   Kind = "Number"
	String   Kind = "String"
	Date     Kind = "Date"
	URL      Kind = "URL"
	Embedded Kind = "Embedded"
)

// kinds lists every supported scalar kind.
var kinds = map[Kind]bool{
	Boolean:  true,
	Number:   true,
	String:   true,
	Date:     true,
	URL:      true,
	Embedded: true,
}

// IsValid returns true if k names a supported scalar kind.
func (k Kind) IsValid() bool {
	return kinds[k]
}

// Indexable returns true if k may serve as the index field's kind.
func (k Kind) Indexable() bool {
	switch k {
	case Number, String, Date, URL:
		return true
	}
	return false
}

// FieldType describes one field: its scalar kind plus the list and
// nullable modifiers.
type FieldType struct {
	Kind     Kind
	List     bool
	Nullable bool
}

// Field is a named field type; order of fields in a Schema is the
// declaration order and is significant on disk.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the structural description of entries in a store.
type Schema struct {
	// Index is the name of the index field.
	Index string

	// Fields holds every field in declaration order, the index included.
	Fields []Field
}

// TypeMap is the order-free view of a schema's fields, as derived from a
// concrete entry. It carries no index marker.
type TypeMap map[string]FieldType

// fieldNameRe is the rule every field name must satisfy.
var fieldNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidFieldName returns true if name satisfies the field name rule.
func ValidFieldName(name string) bool {
	return fieldNameRe.MatchString(name)
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Type returns the type of the named field.
func (s *Schema) Type(name string) (FieldType, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return FieldType{}, false
}

// IndexType returns the type of the index field.
func (s *Schema) IndexType() FieldType {
	ft, _ := s.Type(s.Index)
	return ft
}

// Map returns the schema's fields as a TypeMap.
func (s *Schema) Map() TypeMap {
	m := make(TypeMap, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Type
	}
	return m
}

// Equal reports structural equality: same index, same field set with the
// same types. Declaration order is not part of equality.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Index != other.Index || len(s.Fields) != len(other.Fields) {
		return false
	}
	om := other.Map()
	for _, f := range s.Fields {
		ot, ok := om[f.Name]
		if !ok || ot != f.Type {
			return false
		}
	}
	return true
}

// validate checks the schema's own well-formedness: compliant names,
// known kinds, and a usable index field.
func (s *Schema) validate() error {
	if s.Index == "" {
		return fmt.Errorf("schema declares no index field")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !ValidFieldName(f.Name) {
			return fmt.Errorf("%w: %q", ErrNonCompliantKey, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Kind.IsValid() {
			return fmt.Errorf("%w: field %q", ErrTypeUndetermined, f.Name)
		}
	}
	it, ok := s.Type(s.Index)
	if !ok {
		return fmt.Errorf("index field %q is not declared", s.Index)
	}
	if !it.Kind.Indexable() {
		return fmt.Errorf("index field %q must be Number, String, Date or URL, not %s", s.Index, it.Kind)
	}
	if it.List || it.Nullable {
		return fmt.Errorf("index field %q may not be a list or nullable", s.Index)
	}
	return nil
}
