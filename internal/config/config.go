// Package config loads and validates the vana configuration.
//
// Configuration precedence, lowest to highest:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/vana/config.yaml)
//  3. Project config (.vana.yaml in the working directory)
//  4. Environment variables (VANA_*)
//
// The merged result is validated once at load time; an invalid
// configuration fails fast before any backend is touched.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// Config represents the complete vana configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Backends BackendsConfig `yaml:"backends" json:"backends"`
	Breaker  BreakerConfig  `yaml:"breaker" json:"breaker"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Health   HealthConfig   `yaml:"health" json:"health"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// SearchConfig tunes the fusion pipeline.
type SearchConfig struct {
	// VectorWeight, GraphWeight, and WebWeight are the fusion weights.
	// They must be non-negative and sum to 1.0.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	GraphWeight  float64 `yaml:"graph_weight" json:"graph_weight"`
	WebWeight    float64 `yaml:"web_weight" json:"web_weight"`

	// BaselineScore is assigned to results whose backend reports no score.
	BaselineScore float64 `yaml:"baseline_score" json:"baseline_score"`

	// DefaultK is the per-backend result count hint.
	DefaultK int `yaml:"default_k" json:"default_k"`

	// DefaultCount is the number of ranked results returned by default.
	DefaultCount int `yaml:"default_count" json:"default_count"`

	// MaxResults caps the requested result count.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Timeout bounds one whole search.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// CountCanceled charges deadline cancellations to the breakers.
	CountCanceled bool `yaml:"count_canceled" json:"count_canceled"`
}

// BackendsConfig configures the three retrieval backends.
type BackendsConfig struct {
	Web WebBackendConfig `yaml:"web" json:"web"`
}

// WebBackendConfig configures the web search backend.
type WebBackendConfig struct {
	// Endpoint is the base URL of a SearxNG-compatible search API.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Timeout bounds one web search HTTP call.
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// BreakerConfig tunes the per-backend circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a circuit.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// RecoveryTimeout is the open-state wait before admitting a probe.
	RecoveryTimeout Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
}

// CacheConfig tunes the search result cache.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Size    int      `yaml:"size" json:"size"`
	TTL     Duration `yaml:"ttl" json:"ttl"`
}

// HealthConfig tunes the background health reporter.
type HealthConfig struct {
	ProbeInterval Duration `yaml:"probe_interval" json:"probe_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// StoreConfig configures on-disk state for the local backends.
type StoreConfig struct {
	// DataDir is the root directory for indexes and the entity database.
	// Defaults to ~/.vana.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// EmbedDimensions is the dimensionality of the local embedder.
	EmbedDimensions int `yaml:"embed_dimensions" json:"embed_dimensions"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			VectorWeight:  0.5,
			GraphWeight:   0.3,
			WebWeight:     0.2,
			BaselineScore: 0.1,
			DefaultK:      5,
			DefaultCount:  10,
			MaxResults:    100,
			Timeout:       Duration(5 * time.Second),
			CountCanceled: true,
		},
		Backends: BackendsConfig{
			Web: WebBackendConfig{
				Endpoint: "http://localhost:8888",
				Timeout:  Duration(4 * time.Second),
			},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
			TTL:     Duration(time.Minute),
		},
		Health: HealthConfig{
			ProbeInterval: Duration(15 * time.Second),
			ProbeTimeout:  Duration(2 * time.Second),
		},
		Store: StoreConfig{
			DataDir:         defaultDataDir(),
			EmbedDimensions: 256,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vana"
	}
	return filepath.Join(home, ".vana")
}

// GetUserConfigPath returns the user-level config file path, honoring
// XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vana", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "vana", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); path != "" {
		if err := cfg.loadYAMLIfExists(path); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{".vana.yaml", ".vana.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAMLIfExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML merges one YAML file over the current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return vanaerrors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return vanaerrors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies VANA_* environment variable overrides.
// Environment variables have the highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VANA_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("VANA_GRAPH_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.GraphWeight = f
		}
	}
	if v := os.Getenv("VANA_WEB_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.WebWeight = f
		}
	}
	if v := os.Getenv("VANA_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Search.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("VANA_WEB_ENDPOINT"); v != "" {
		c.Backends.Web.Endpoint = v
	}
	if v := os.Getenv("VANA_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Breaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("VANA_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Breaker.RecoveryTimeout = Duration(d)
		}
	}
	if v := os.Getenv("VANA_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("VANA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("VANA_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate checks the merged configuration. All validation happens here,
// once, before anything is constructed from the config.
func (c *Config) Validate() error {
	for name, w := range map[string]float64{
		"search.vector_weight": c.Search.VectorWeight,
		"search.graph_weight":  c.Search.GraphWeight,
		"search.web_weight":    c.Search.WebWeight,
	} {
		if w < 0 || w > 1 {
			return vanaerrors.New(vanaerrors.ErrCodeWeightsInvalid,
				fmt.Sprintf("%s must be between 0 and 1, got %g", name, w), nil)
		}
	}
	sum := c.Search.VectorWeight + c.Search.GraphWeight + c.Search.WebWeight
	if sum < 1.0-weightSumTolerance || sum > 1.0+weightSumTolerance {
		return vanaerrors.New(vanaerrors.ErrCodeWeightsInvalid,
			fmt.Sprintf("fusion weights must sum to 1.0, got %g", sum), nil)
	}

	if c.Search.BaselineScore <= 0 || c.Search.BaselineScore > 1 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("search.baseline_score must be in (0, 1], got %g", c.Search.BaselineScore), nil)
	}
	if c.Search.DefaultK <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("search.default_k must be positive, got %d", c.Search.DefaultK), nil)
	}
	if c.Search.MaxResults <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("search.max_results must be positive, got %d", c.Search.MaxResults), nil)
	}
	if c.Search.Timeout <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("search.timeout must be positive, got %s", c.Search.Timeout), nil)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold), nil)
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("breaker.recovery_timeout must be positive, got %s", c.Breaker.RecoveryTimeout), nil)
	}
	if c.Store.EmbedDimensions <= 0 {
		return vanaerrors.ConfigError(
			fmt.Sprintf("store.embed_dimensions must be positive, got %d", c.Store.EmbedDimensions), nil)
	}

	if t := strings.ToLower(c.Server.Transport); t != "stdio" {
		return vanaerrors.ConfigError(
			fmt.Sprintf("server.transport must be 'stdio', got %s", c.Server.Transport), nil)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return vanaerrors.ConfigError(
			fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel), nil)
	}
	return nil
}

// weightSumTolerance absorbs float accumulation error in the weight sum.
const weightSumTolerance = 1e-9

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return vanaerrors.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return vanaerrors.ConfigError(fmt.Sprintf("write config file %s", path), err)
	}
	return nil
}
