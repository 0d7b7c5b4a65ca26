package codec

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/bnema/prefstore/internal/logging"
)

const (
	dirPerm  = 0755
	filePerm = 0600

	// CompressedExt marks gzip-compressed documents. Compression mode is
	// derived from the extension so mode and file content cannot disagree.
	CompressedExt = ".gz"

	nonceSize = 24
)

// ErrDecrypt reports that an encrypted document could not be opened with
// the configured key.
var ErrDecrypt = errors.New("cannot decrypt document")

// FileOption configures a File store.
type FileOption func(*File)

// WithEncryptionKey seals written streams with NaCl secretbox and opens
// them on read. Reads and writes must use the same key.
func WithEncryptionKey(key [32]byte) FileOption {
	return func(f *File) {
		k := key
		f.key = &k
	}
}

// File stores documents as JSON files on disk. Paths ending in ".gz" are
// transparently gzip-compressed. Writes go through a temporary file and an
// atomic rename, creating parent directories as needed.
type File struct {
	key *[32]byte
}

// NewFile returns a file-backed document store.
func NewFile(opts ...FileOption) *File {
	f := &File{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Exists reports whether path names a regular file.
func (f *File) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// LastWriteTime reports the file's modification time.
func (f *File) LastWriteTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ReadDocument loads the document at path.
func (f *File) ReadDocument(ctx context.Context, path string) (Document, error) {
	var doc Document
	if err := f.Read(ctx, path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// WriteDocument stores doc at path.
func (f *File) WriteDocument(ctx context.Context, path string, doc Document) error {
	return f.Write(ctx, path, doc)
}

// Read decodes the JSON value at path into v, reversing encryption and
// compression as configured. Missing files satisfy
// errors.Is(err, fs.ErrNotExist).
func (f *File) Read(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if f.key != nil {
		if data, err = f.open(data); err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", path, err)
		}
	}
	if IsCompressed(path) {
		if data, err = gunzipBytes(data); err != nil {
			return fmt.Errorf("failed to decompress %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Write encodes v as JSON and stores it at path. The temporary file is
// removed when the final rename fails.
func (f *File) Write(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if IsCompressed(path) {
		if data, err = gzipBytes(data); err != nil {
			return fmt.Errorf("failed to compress %s: %w", path, err)
		}
	}
	if f.key != nil {
		if data, err = f.seal(data); err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	// Write to a temporary file first, then atomic rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// ReadOr decodes path into a T, returning fallback when the file is
// missing, unreadable, or malformed. Failures are logged through the
// context logger and never returned; callers that need the cause use Read.
func ReadOr[T any](ctx context.Context, f *File, path string, fallback T) T {
	var v T
	if err := f.Read(ctx, path, &v); err != nil {
		logging.FromContext(ctx).Debug().Err(err).Str("path", path).Msg("using fallback value")
		return fallback
	}
	return v
}

// IsCompressed reports whether path names a gzip-compressed document.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

func (f *File) seal(data []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], data, &nonce, f.key), nil
}

func (f *File) open(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, f.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

var _ DocumentStore = (*File)(nil)
