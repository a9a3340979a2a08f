package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Grammar tokens encode one field type each:
//
//	token := "*"? ("[" base "]" | base) "?"?
//
// "*" marks the index field (exactly one per schema), "[...]" marks a
// list, a trailing "?" marks a nullable field. "*" and "?" are mutually
// exclusive.

// EncodeToken renders one field type as its grammar token.
func EncodeToken(ft FieldType, isIndex bool) string {
	var b strings.Builder
	if isIndex {
		b.WriteByte('*')
	}
	if ft.List {
		b.WriteByte('[')
		b.WriteString(string(ft.Kind))
		b.WriteByte(']')
	} else {
		b.WriteString(string(ft.Kind))
	}
	if ft.Nullable {
		b.WriteByte('?')
	}
	return b.String()
}

// DecodeToken parses one grammar token.
func DecodeToken(token string) (ft FieldType, isIndex bool, err error) {
	rest := token
	if strings.HasPrefix(rest, "*") {
		isIndex = true
		rest = rest[1:]
	}
	if strings.HasSuffix(rest, "?") {
		if isIndex {
			return FieldType{}, false, fmt.Errorf("token %q: index may not be nullable", token)
		}
		ft.Nullable = true
		rest = rest[:len(rest)-1]
	}
	if strings.HasPrefix(rest, "[") {
		if !strings.HasSuffix(rest, "]") {
			return FieldType{}, false, fmt.Errorf("token %q: unterminated list", token)
		}
		ft.List = true
		rest = rest[1 : len(rest)-1]
	}
	ft.Kind = Kind(rest)
	if !ft.Kind.IsValid() {
		return FieldType{}, false, fmt.Errorf("%w: token %q", ErrTypeUndetermined, token)
	}
	if isIndex {
		if ft.List {
			return FieldType{}, false, fmt.Errorf("token %q: index may not be a list", token)
		}
		if !ft.Kind.Indexable() {
			return FieldType{}, false, fmt.Errorf("token %q: %s cannot index", token, ft.Kind)
		}
	}
	return ft, isIndex, nil
}

// Encode renders the schema as its grammar mapping, field name to token,
// preserving declaration order. The result is a JSON object.
func Encode(s *Schema) ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		token, err := json.Marshal(EncodeToken(f.Type, f.Name == s.Index))
		if err != nil {
			return nil, err
		}
		buf.Write(token)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses a grammar mapping back into a schema, preserving the
// key order of the JSON object as declaration order.
func Decode(data []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("decode schema: expected object, got %v", tok)
	}
	s := &Schema{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("decode schema: expected field name, got %v", keyTok)
		}
		if !ValidFieldName(name) {
			return nil, fmt.Errorf("%w: %q", ErrNonCompliantKey, name)
		}
		var token string
		if err := dec.Decode(&token); err != nil {
			return nil, fmt.Errorf("decode schema: field %q: %w", name, err)
		}
		ft, isIndex, err := DecodeToken(token)
		if err != nil {
			return nil, err
		}
		if isIndex {
			if s.Index != "" {
				return nil, fmt.Errorf("decode schema: duplicate index marker on %q and %q", s.Index, name)
			}
			s.Index = name
		}
		s.Fields = append(s.Fields, Field{Name: name, Type: ft})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
