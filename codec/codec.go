// Package codec reads and writes settings documents. A document is a JSON
// object whose top-level keys are category names, each mapping setting names
// to their raw JSON-encoded values. Streams may be gzip-compressed (".gz"
// extension) and optionally sealed with NaCl secretbox.
package codec

import (
	"context"
	"encoding/json"
	"time"
)

//go:generate mockgen -source=codec.go -destination=mocks/mock_codec.go -package=mock_codec

// Document is the decoded on-disk representation: category name to setting
// name to raw JSON value. Values stay encoded until a caller asks for a
// concrete type.
type Document map[string]map[string]json.RawMessage

// DocumentStore persists settings documents. Implementations must be safe
// for concurrent use.
type DocumentStore interface {
	// Exists reports whether a document is present at path.
	Exists(path string) bool

	// ReadDocument loads and decodes the document at path. Missing
	// documents surface as an error satisfying errors.Is(err, fs.ErrNotExist).
	ReadDocument(ctx context.Context, path string) (Document, error)

	// WriteDocument encodes and stores doc at path, creating any parent
	// location as needed. The write must be atomic: readers never observe
	// a partially written document.
	WriteDocument(ctx context.Context, path string, doc Document) error

	// LastWriteTime reports when the document at path was last written.
	// The second return is false when the document does not exist.
	LastWriteTime(path string) (time.Time, bool)
}
