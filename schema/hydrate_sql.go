package schema

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// HydrateSQL converts a typed value to its relational parameter form:
// Boolean and Date become integers (0|1 and milliseconds since epoch),
// Number stays a float, String, URL and Embedded become text, lists
// become a JSON-encoded array stored as text. nil stays nil (SQL NULL).
func HydrateSQL(ft FieldType, v any) (any, error) {
	if v == nil {
		if !ft.Nullable {
			return nil, fmt.Errorf("%w: nil in non-nullable field", ErrUnsupportedType)
		}
		return nil, nil
	}
	if ft.List {
		elems, err := listElems(v)
		if err != nil {
			return nil, err
		}
		natives := make([]any, len(elems))
		for i, e := range elems {
			n, err := sqlListElem(ft.Kind, e)
			if err != nil {
				return nil, err
			}
			natives[i] = n
		}
		data, err := json.Marshal(natives)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return string(data), nil
	}
	return hydrateSQLScalar(ft.Kind, v)
}

func hydrateSQLScalar(kind Kind, v any) (any, error) {
	switch kind {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T as Boolean", ErrUnsupportedType, v)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case Number:
		return toFloat(v)
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T as String", ErrUnsupportedType, v)
		}
		return s, nil
	case Date:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: %T as Date", ErrUnsupportedType, v)
		}
		return t.UnixMilli(), nil
	case URL:
		u, err := toURL(v)
		if err != nil {
			return nil, err
		}
		return u.String(), nil
	case Embedded:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T as Embedded", ErrUnsupportedType, v)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedType, kind)
}

// sqlListElem encodes one list element into its JSON-native form.
func sqlListElem(kind Kind, v any) (any, error) {
	switch kind {
	case Embedded:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T as Embedded", ErrUnsupportedType, v)
		}
		return m, nil
	default:
		return hydrateSQLScalar(kind, v)
	}
}

// DehydrateSQL converts a scanned database value back to its typed form.
// Scanned values arrive as int64, float64, string, []byte or nil.
func DehydrateSQL(ft FieldType, v any) (any, error) {
	if v == nil {
		if !ft.Nullable {
			return nil, fmt.Errorf("NULL in non-nullable field")
		}
		return nil, nil
	}
	if ft.List {
		text, err := scannedText(v)
		if err != nil {
			return nil, err
		}
		var natives []any
		if err := json.Unmarshal([]byte(text), &natives); err != nil {
			return nil, fmt.Errorf("list column %q: %w", text, err)
		}
		elems := make([]any, len(natives))
		for i, n := range natives {
			e, err := sqlListValue(ft.Kind, n)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return elems, nil
	}
	return dehydrateSQLScalar(ft.Kind, v)
}

func dehydrateSQLScalar(kind Kind, v any) (any, error) {
	switch kind {
	case Boolean:
		n, err := scannedFloat(v)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case Number:
		return scannedFloat(v)
	case String:
		return scannedText(v)
	case Date:
		n, err := scannedFloat(v)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(int64(n)).UTC(), nil
	case URL:
		text, err := scannedText(v)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("url column %q: %w", text, err)
		}
		return u, nil
	case Embedded:
		text, err := scannedText(v)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("embedded column %q: %w", text, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedType, kind)
}

// sqlListValue decodes one JSON-native list element back to its typed form.
func sqlListValue(kind Kind, n any) (any, error) {
	switch kind {
	case Boolean:
		f, ok := n.(float64)
		if !ok {
			return nil, fmt.Errorf("list element %v as Boolean", n)
		}
		return f != 0, nil
	case Number:
		f, ok := n.(float64)
		if !ok {
			return nil, fmt.Errorf("list element %v as Number", n)
		}
		return f, nil
	case Date:
		f, ok := n.(float64)
		if !ok {
			return nil, fmt.Errorf("list element %v as Date", n)
		}
		return time.UnixMilli(int64(f)).UTC(), nil
	case String:
		s, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("list element %v as String", n)
		}
		return s, nil
	case URL:
		s, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("list element %v as URL", n)
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		return u, nil
	case Embedded:
		m, ok := n.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list element %v as Embedded", n)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedType, kind)
}

func scannedFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(x), "%g", &f); err != nil {
			return 0, fmt.Errorf("numeric column %q: %w", x, err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("numeric column of type %T", v)
}

func scannedText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", fmt.Errorf("text column of type %T", v)
}
