package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// HydrateCSV converts a typed value to its CSV cell form. A nil value in
// a nullable field becomes the empty cell, which means a nullable String
// cannot round-trip the empty string: it reads back as nil.
//
// Scalars encode as: Boolean "0"|"1", Number shortest plain decimal,
// String verbatim, Date seconds since epoch (fractional permitted), URL
// canonical string, Embedded JSON. Lists encode as a JSON array of the
// element-hydrated strings.
func HydrateCSV(ft FieldType, v any) (string, error) {
	if v == nil {
		if !ft.Nullable {
			return "", fmt.Errorf("%w: nil in non-nullable field", ErrUnsupportedType)
		}
		return "", nil
	}
	if ft.List {
		elems, err := listElems(v)
		if err != nil {
			return "", err
		}
		cells := make([]string, len(elems))
		for i, e := range elems {
			cell, err := hydrateCSVScalar(ft.Kind, e)
			if err != nil {
				return "", err
			}
			cells[i] = cell
		}
		data, err := json.Marshal(cells)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return hydrateCSVScalar(ft.Kind, v)
}

func hydrateCSVScalar(kind Kind, v any) (string, error) {
	switch kind {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("%w: %T as Boolean", ErrUnsupportedType, v)
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case Number:
		f, err := toFloat(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case String:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %T as String", ErrUnsupportedType, v)
		}
		return s, nil
	case Date:
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("%w: %T as Date", ErrUnsupportedType, v)
		}
		ms := t.UnixMilli()
		if ms%1000 == 0 {
			return strconv.FormatInt(ms/1000, 10), nil
		}
		return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64), nil
	case URL:
		u, err := toURL(v)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	case Embedded:
		m, ok := v.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %T as Embedded", ErrUnsupportedType, v)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: kind %q", ErrUnsupportedType, kind)
}

// DehydrateCSV converts a CSV cell back to its typed value. The empty
// cell in a nullable field dehydrates to nil.
func DehydrateCSV(ft FieldType, cell string) (any, error) {
	if ft.Nullable && cell == "" {
		return nil, nil
	}
	if ft.List {
		var cells []string
		if err := json.Unmarshal([]byte(cell), &cells); err != nil {
			return nil, fmt.Errorf("list cell %q: %w", cell, err)
		}
		elems := make([]any, len(cells))
		for i, c := range cells {
			e, err := dehydrateCSVScalar(ft.Kind, c)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return elems, nil
	}
	return dehydrateCSVScalar(ft.Kind, cell)
}

func dehydrateCSVScalar(kind Kind, cell string) (any, error) {
	switch kind {
	case Boolean:
		switch cell {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, fmt.Errorf("boolean cell %q", cell)
	case Number:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("number cell %q: %w", cell, err)
		}
		return f, nil
	case String:
		return cell, nil
	case Date:
		sec, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("date cell %q: %w", cell, err)
		}
		return time.UnixMilli(int64(math.Round(sec * 1000))).UTC(), nil
	case URL:
		u, err := url.Parse(cell)
		if err != nil {
			return nil, fmt.Errorf("url cell %q: %w", cell, err)
		}
		return u, nil
	case Embedded:
		var m map[string]any
		if err := json.Unmarshal([]byte(cell), &m); err != nil {
			return nil, fmt.Errorf("embedded cell %q: %w", cell, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedType, kind)
}

// listElems flattens any supported list representation to []any.
func listElems(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []bool:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []int64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []time.Time:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []*url.URL:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T as list", ErrUnsupportedType, v)
}

func toURL(v any) (*url.URL, error) {
	switch x := v.(type) {
	case *url.URL:
		return x, nil
	case url.URL:
		return &x, nil
	}
	return nil, fmt.Errorf("%w: %T as URL", ErrUnsupportedType, v)
}
