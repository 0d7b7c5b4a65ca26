// Package config loads settings-store options from a configuration file
// and environment variables, for applications that configure the store
// alongside the rest of their configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/prefstore"
)

// Naming policy names accepted in configuration files.
const (
	NamingPreserve  = "preserve"
	NamingLowercase = "lowercase"
	NamingUppercase = "uppercase"
)

// FileConfig is the file shape of the store options. Durations accept Go
// duration strings ("30s", "2m").
type FileConfig struct {
	UpdateInterval    time.Duration `mapstructure:"update_interval" json:"update_interval,omitempty" jsonschema:"description=Minimum time between disk writes"`
	DatabasePath      string        `mapstructure:"database_path" json:"database_path,omitempty" jsonschema:"description=Directory holding the settings file"`
	DatabaseFileName  string        `mapstructure:"database_file_name" json:"database_file_name,omitempty" jsonschema:"description=Settings file name inside database_path"`
	UseCompression    bool          `mapstructure:"use_compression" json:"use_compression,omitempty" jsonschema:"description=Gzip-compress the settings file"`
	OmitDefaultValues bool          `mapstructure:"omit_default_values" json:"omit_default_values,omitempty" jsonschema:"description=Drop zero-valued settings from persisted documents"`
	Naming            string        `mapstructure:"naming" json:"naming,omitempty" jsonschema:"description=Name normalization policy,enum=preserve,enum=lowercase,enum=uppercase"`
	AutoPersist       time.Duration `mapstructure:"auto_persist" json:"auto_persist,omitempty" jsonschema:"description=Delay after the last mutation before an automatic persist (0 disables)"`
}

// Load reads the configuration file at path (TOML), applying defaults and
// PREFSTORE_* environment overrides, and converts it into store options.
// A missing file is not an error; defaults and environment apply alone.
func Load(path string) (prefstore.Options, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("PREFSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return prefstore.Options{}, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
	}

	return fromViper(v)
}

// FromViper converts the sub-tree at key of an existing viper instance
// into store options, for applications that keep one configuration file
// for everything. Defaults apply to fields the sub-tree leaves unset.
func FromViper(v *viper.Viper, key string) (prefstore.Options, error) {
	sub := v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	setDefaults(sub)
	return fromViper(sub)
}

// WriteDefaultConfig writes a configuration file populated with the
// default values. It fails when the file already exists.
func WriteDefaultConfig(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := prefstore.DefaultOptions()

	v.SetDefault("update_interval", def.UpdateInterval)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("database_file_name", def.DatabaseFileName)
	v.SetDefault("use_compression", false)
	v.SetDefault("omit_default_values", false)
	v.SetDefault("naming", NamingPreserve)
	v.SetDefault("auto_persist", time.Duration(0))
}

func fromViper(v *viper.Viper) (prefstore.Options, error) {
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return prefstore.Options{}, fmt.Errorf("failed to parse settings config: %w", err)
	}
	return fc.Options()
}

// Options converts the file shape into store options.
func (fc FileConfig) Options() (prefstore.Options, error) {
	if err := validate(fc); err != nil {
		return prefstore.Options{}, err
	}

	var naming prefstore.NamingPolicy
	switch fc.Naming {
	case "", NamingPreserve:
		naming = prefstore.PreserveNames
	case NamingLowercase:
		naming = prefstore.LowercaseNames
	case NamingUppercase:
		naming = prefstore.UppercaseNames
	}

	return prefstore.Options{
		UpdateInterval:    fc.UpdateInterval,
		DatabasePath:      fc.DatabasePath,
		DatabaseFileName:  fc.DatabaseFileName,
		UseCompression:    fc.UseCompression,
		OmitDefaultValues: fc.OmitDefaultValues,
		Naming:            naming,
		AutoPersist:       fc.AutoPersist,
	}, nil
}

func validate(fc FileConfig) error {
	var problems []string

	if fc.UpdateInterval < 0 {
		problems = append(problems, "update_interval must be non-negative")
	}
	if fc.AutoPersist < 0 {
		problems = append(problems, "auto_persist must be non-negative")
	}
	switch fc.Naming {
	case "", NamingPreserve, NamingLowercase, NamingUppercase:
	default:
		problems = append(problems, fmt.Sprintf(
			"naming must be one of: preserve, lowercase, uppercase (got: %s)", fc.Naming))
	}

	if len(problems) > 0 {
		return fmt.Errorf("settings config validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
