package prefstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/prefstore/codec"
)

// Options configure a Store. Zero-valued fields fall back to
// DefaultOptions.
type Options struct {
	// UpdateInterval is the minimum time between disk writes. A persist
	// while the settings file is younger than this is skipped.
	UpdateInterval time.Duration

	// DatabasePath is the directory holding the settings file.
	DatabasePath string

	// DatabaseFileName is the settings file name inside DatabasePath.
	// When UseCompression is set and the name lacks a ".gz" suffix, the
	// suffix is appended, so compression mode and file extension always
	// agree.
	DatabaseFileName string

	// UseCompression gzip-compresses the settings file.
	UseCompression bool

	// OmitDefaultValues drops settings whose value equals the type's zero
	// value from persisted documents.
	OmitDefaultValues bool

	// Naming normalizes category and key names. Defaults to
	// PreserveNames.
	Naming NamingPolicy

	// AutoPersist, when positive, persists automatically that long after
	// the last mutation. Zero disables auto-persist.
	AutoPersist time.Duration

	// PersistFilter, when set, keeps only entries it accepts in persisted
	// documents. It receives normalized names.
	PersistFilter func(category, key string) bool

	// EncryptionKey, when set, seals the settings file with NaCl
	// secretbox. Only applies to the built-in file backend.
	EncryptionKey *[32]byte

	// Backend overrides the built-in file backend, for example with the
	// SQLite document store. DatabasePath and DatabaseFileName still form
	// the document path handed to it.
	Backend codec.DocumentStore

	// Logger receives the store's log output. Nil keeps the store silent
	// unless an operation context carries a logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns the values used for zero Options fields.
func DefaultOptions() Options {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Options{
		UpdateInterval:   30 * time.Second,
		DatabasePath:     filepath.Join(dir, "prefstore"),
		DatabaseFileName: "settings.json",
		Naming:           PreserveNames,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.UpdateInterval == 0 {
		o.UpdateInterval = def.UpdateInterval
	}
	if o.DatabasePath == "" {
		o.DatabasePath = def.DatabasePath
	}
	if o.DatabaseFileName == "" {
		o.DatabaseFileName = def.DatabaseFileName
	}
	if o.Naming == nil {
		o.Naming = def.Naming
	}
	if o.Backend == nil {
		var fileOpts []codec.FileOption
		if o.EncryptionKey != nil {
			fileOpts = append(fileOpts, codec.WithEncryptionKey(*o.EncryptionKey))
		}
		o.Backend = codec.NewFile(fileOpts...)
	}
}

func (o *Options) validate() error {
	var problems []string

	if o.UpdateInterval < 0 {
		problems = append(problems, "update_interval must be non-negative")
	}
	if o.AutoPersist < 0 {
		problems = append(problems, "auto_persist must be non-negative")
	}
	if strings.ContainsRune(o.DatabaseFileName, os.PathSeparator) {
		problems = append(problems, "database_file_name must not contain path separators")
	}

	if len(problems) > 0 {
		return fmt.Errorf("options validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// filePath returns the effective settings file path, with the compression
// suffix applied.
func (o Options) filePath() string {
	name := o.DatabaseFileName
	if o.UseCompression && !strings.HasSuffix(name, codec.CompressedExt) {
		name += codec.CompressedExt
	}
	return filepath.Join(o.DatabasePath, name)
}
