// Package storage defines the file-like namespace the CSV engine uses
// to touch persistent state. It is the only surface between the engine
// and the substrate; implementations decide what a path is backed by.
package storage

import (
	"context"
)

// Wildcard matches any file extension in Collection.
const Wildcard = "*"

// Adapter is an opaque file-like namespace. Paths are relative to an
// adapter-defined root.
type Adapter interface {
	// Collection lists relative paths under the root whose extension
	// matches ext (Wildcard matches any). Hidden entries are excluded
	// and results are lexicographically ordered.
	Collection(ctx context.Context, ext string) ([]string, error)

	// Exists reports whether path names an existing file.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the byte size of the file at path.
	Size(ctx context.Context, path string) (int64, error)

	// Read returns the whole content of the file at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Head returns the first n newline-terminated lines, terminators
	// included, or the whole file if it has fewer lines. Implementations
	// must not read the whole file when n is bounded.
	Head(ctx context.Context, path string, n int) ([]byte, error)

	// Tail is the dual of Head: the last n lines, terminators included.
	Tail(ctx context.Context, path string, n int) ([]byte, error)

	// Append creates the file if missing and extends it with data.
	Append(ctx context.Context, path string, data []byte) error

	// Write replaces the file content atomically at per-file
	// granularity, creating parent directories as needed.
	Write(ctx context.Context, path string, data []byte) error
}
