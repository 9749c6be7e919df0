// Package limits holds the process-wide resource limits, the preflight
// checks that validate them against the environment, and the streaming
// enforcer that turns them into per-file admission decisions.
package limits

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults for every limit: conservative values that keep an index from
// growing without bound. All of them are overridable via environment
// variables, see FromEnv.
const (
	DefaultMaxFileBytes      int64 = 1 * 1024 * 1024
	DefaultMaxSymbolsPerFile       = 500
	DefaultMaxTotalSymbols         = 100_000
	DefaultMaxIndexSizeBytes int64 = 100 * 1024 * 1024
	DefaultMaxVectors              = 100_000
	DefaultMinFreeDiskBytes  int64 = 100 * 1024 * 1024
	DefaultWarnThreshold           = 0.80
)

// Config is the resolved set of resource limits. It is immutable after
// load; operations receive it by value.
type Config struct {
	// MaxFileBytes is the per-file size cap. The scanner passes larger
	// files on as metadata-only records; the enforcer skips them with a
	// warning.
	MaxFileBytes int64

	// MaxSymbolsPerFile caps symbols extracted per file; excess symbols
	// are dropped with a warning.
	MaxSymbolsPerFile int

	// MaxTotalSymbols is the global ceiling. Crossing it stops indexing
	// cleanly; it does not silently truncate.
	MaxTotalSymbols int

	// MaxIndexSizeBytes fails validation when the on-disk store exceeds it.
	MaxIndexSizeBytes int64

	// MaxVectors caps the vector index size.
	MaxVectors int

	// MinFreeDiskBytes is the preflight disk floor.
	MinFreeDiskBytes int64

	// WarnThreshold is the fraction of a limit at which a warning fires.
	WarnThreshold float64

	// StrictMode makes any preflight warning a fatal refusal.
	StrictMode bool
}

// Default returns the compiled-in limits.
func Default() Config {
	return Config{
		MaxFileBytes:      DefaultMaxFileBytes,
		MaxSymbolsPerFile: DefaultMaxSymbolsPerFile,
		MaxTotalSymbols:   DefaultMaxTotalSymbols,
		MaxIndexSizeBytes: DefaultMaxIndexSizeBytes,
		MaxVectors:        DefaultMaxVectors,
		MinFreeDiskBytes:  DefaultMinFreeDiskBytes,
		WarnThreshold:     DefaultWarnThreshold,
	}
}

// FromEnv applies environment overrides on top of base and returns the
// result. Unparseable values are ignored, keeping the base value, so a
// typo in a variable degrades to defaults instead of refusing to start.
func FromEnv(base Config) Config {
	cfg := base

	if v, ok := envInt64("MAX_FILE_BYTES"); ok {
		cfg.MaxFileBytes = v
	}
	if v, ok := envInt("MAX_SYMBOLS_PER_FILE"); ok {
		cfg.MaxSymbolsPerFile = v
	}
	if v, ok := envInt("MAX_TOTAL_SYMBOLS"); ok {
		cfg.MaxTotalSymbols = v
	}
	if v, ok := envInt64("MAX_INDEX_SIZE_MB"); ok {
		cfg.MaxIndexSizeBytes = v * 1024 * 1024
	}
	if v, ok := envInt("MAX_VECTORS"); ok {
		cfg.MaxVectors = v
	}
	if v, ok := envInt64("MIN_FREE_DISK_MB"); ok {
		cfg.MinFreeDiskBytes = v * 1024 * 1024
	}
	if v, ok := envFloat("WARN_THRESHOLD"); ok {
		cfg.WarnThreshold = v
	}
	if v, ok := envBool("LIMITS_STRICT"); ok {
		cfg.StrictMode = v
	}

	return cfg
}

// Load resolves the effective limits: defaults, then environment.
func Load() Config {
	return FromEnv(Default())
}

// Validate checks internal consistency of the limits.
func (c Config) Validate() error {
	if c.MaxFileBytes <= 0 {
		return fmt.Errorf("max_file_bytes must be positive, got %d", c.MaxFileBytes)
	}
	if c.MaxSymbolsPerFile <= 0 {
		return fmt.Errorf("max_symbols_per_file must be positive, got %d", c.MaxSymbolsPerFile)
	}
	if c.MaxTotalSymbols <= 0 {
		return fmt.Errorf("max_total_symbols must be positive, got %d", c.MaxTotalSymbols)
	}
	if c.WarnThreshold <= 0 || c.WarnThreshold > 1 {
		return fmt.Errorf("warn_threshold must be in (0,1], got %g", c.WarnThreshold)
	}
	return nil
}

func envInt64(name string) (int64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	v, ok := envInt64(name)
	return int(v), ok
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 1 {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	raw := strings.ToLower(os.Getenv(name))
	switch raw {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
