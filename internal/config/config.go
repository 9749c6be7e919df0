// Package config loads the Cerberus runtime configuration. Precedence,
// lowest to highest: compiled-in defaults, the user config
// (~/.config/cerberus/config.yaml), the project config (.cerberus.yaml at
// the project root), then environment variables. The result is loaded
// once into an immutable value and threaded through operations
// explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Watch      WatchConfig      `yaml:"watch"`
	Index      IndexConfig      `yaml:"index"`

	// HumanMode selects the presentation format for the CLI collaborator.
	HumanMode bool `yaml:"human_mode"`
}

// PathsConfig restricts what the scanner walks.
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	Mode           string  `yaml:"mode"`   // keyword, semantic, balanced, auto
	Fusion         string  `yaml:"fusion"` // rrf, weighted
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	Limit          int     `yaml:"limit"`
}

// EmbeddingsConfig controls the optional semantic path.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// WatchConfig tunes the watcher daemon.
type WatchConfig struct {
	DebounceSeconds int     `yaml:"debounce_seconds"`
	MaxLogSizeMB    int     `yaml:"max_log_size_mb"`
	MaxCPUPercent   float64 `yaml:"max_cpu_percent"`
}

// IndexConfig locates the on-disk store.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// New returns the compiled-in defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Mode:           "auto",
			Fusion:         "rrf",
			KeywordWeight:  0.5,
			SemanticWeight: 0.5,
			Limit:          20,
		},
		Embeddings: EmbeddingsConfig{
			Enabled: false,
			Model:   "static-hash-v1",
		},
		Watch: WatchConfig{
			DebounceSeconds: 3,
			MaxLogSizeMB:    50,
			MaxCPUPercent:   50,
		},
	}
}

// UserConfigPath returns the XDG-compliant user config location.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cerberus", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cerberus", "config.yaml")
}

// ProjectConfigName is the per-repo config filename.
const ProjectConfigName = ".cerberus.yaml"

// Load resolves the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := New()

	if userPath := UserConfigPath(); userPath != "" {
		if err := cfg.mergeFile(userPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeFile(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays path's values onto cfg; a missing file is fine.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv applies the highest-precedence layer.
func (c *Config) applyEnv() {
	if v := os.Getenv("INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	switch strings.ToLower(os.Getenv("HUMAN_MODE")) {
	case "1", "true", "yes", "on":
		c.HumanMode = true
	case "0", "false", "no", "off":
		c.HumanMode = false
	}
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	switch c.Search.Mode {
	case "keyword", "semantic", "balanced", "auto":
	default:
		return fmt.Errorf("search.mode must be one of keyword/semantic/balanced/auto, got %q", c.Search.Mode)
	}
	switch c.Search.Fusion {
	case "rrf", "weighted":
	default:
		return fmt.Errorf("search.fusion must be rrf or weighted, got %q", c.Search.Fusion)
	}
	if c.Search.KeywordWeight < 0 || c.Search.SemanticWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Watch.DebounceSeconds < 0 {
		return fmt.Errorf("watch.debounce_seconds must be non-negative")
	}
	return nil
}

// IndexPath resolves the database location for a project root; an
// explicit setting wins, otherwise the store sits at the root.
func (c *Config) IndexPath(root string) string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(root, "cerberus.db")
}

// WriteYAML persists the config, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// projectMarkers identify a repository root, checked in order.
var projectMarkers = []string{".git", "go.mod", "pyproject.toml", "package.json", ProjectConfigName}

// FindProjectRoot walks up from startDir to the nearest directory
// carrying a project marker; startDir itself is the fallback.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for current := dir; ; {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir, nil
		}
		current = parent
	}
}
