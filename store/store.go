// Package store provides the artifact persistence abstraction shared by the
// local-filesystem and Google Cloud Storage backends. Paths are
// forward-slash keys relative to the store root; writes are at-most-once and
// never transactional.
package store

import "context"

// Content types used for artifacts.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeXLSX      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeDirectory = "application/x-directory"
)

// Table is a row-set destined for a spreadsheet artifact.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// ArtifactStore is the uniform persistence contract. Implementations must be
// safe for concurrent use; a failed write returns an error and leaves any
// partial output behind.
type ArtifactStore interface {
	// PutObject writes data at path with the given content type.
	PutObject(ctx context.Context, path string, data []byte, contentType string) error

	// PutTabular serializes the table as a spreadsheet at path.
	PutTabular(ctx context.Context, path string, table *Table) error

	// EnsureContainer idempotently creates a "folder" at path. Backends
	// without real directories write a marker object instead.
	EnsureContainer(ctx context.Context, path string) error

	// List returns the object keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
