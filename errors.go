package entrystore

import (
	"errors"
	"fmt"

	"github.com/axonops/entrystore/schema"
)

// Common errors
var (
	// ErrMissingSchema is returned when an operation needs a schema but
	// neither a declared template nor a persisted schema exists.
	ErrMissingSchema = errors.New("no schema declared or stored")
)

// SchemaMismatchError is returned when a declared template and a
// persisted schema both exist but differ structurally.
type SchemaMismatchError struct {
	Diff *schema.Diff
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("declared template and stored schema differ: %s", e.Diff)
}

// Resolve reconciles a declared template with a persisted schema. Either
// side may be nil: one present side wins, both absent is
// ErrMissingSchema, and both present must be structurally equal.
func Resolve(declared, stored *schema.Schema) (*schema.Schema, error) {
	switch {
	case declared == nil && stored == nil:
		return nil, ErrMissingSchema
	case declared == nil:
		return stored, nil
	case stored == nil:
		return declared, nil
	}
	if !declared.Equal(stored) {
		return nil, &SchemaMismatchError{Diff: schema.Compare(declared, stored)}
	}
	return stored, nil
}
