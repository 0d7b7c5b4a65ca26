package prefstore

import "strings"

// NamingPolicy normalizes category and key names. It runs before every
// cache and disk operation, so differently spelled names for the same
// logical setting converge on one cell. Restore applies the same policy,
// keeping on-disk and in-memory keys aligned.
type NamingPolicy func(string) string

// Built-in naming policies.
var (
	// PreserveNames keeps names exactly as given.
	PreserveNames NamingPolicy = func(name string) string { return name }

	// LowercaseNames folds names to lower case, making lookups
	// case-insensitive in effect.
	LowercaseNames NamingPolicy = strings.ToLower

	// UppercaseNames folds names to upper case.
	UppercaseNames NamingPolicy = strings.ToUpper
)
