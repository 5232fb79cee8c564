package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the sanctex screening service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Fuzzy     FuzzyConfig     `yaml:"fuzzy"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the primary search backend connection.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	IndexName        string   `yaml:"index_name"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// SearchConfig holds the tier thresholds and façade policy.
type SearchConfig struct {
	EscalationThreshold     float64 `yaml:"escalation_threshold"`
	DefaultThreshold        float64 `yaml:"default_threshold"`
	VectorThreshold         float64 `yaml:"vector_similarity_threshold"`
	FallbackThreshold       float64 `yaml:"fallback_threshold"`
	VectorFallbackThreshold float64 `yaml:"vector_fallback_threshold"`
	FuzzyHighConfidence     float64 `yaml:"fuzzy_high_confidence"`
	FuzzyMinimum            float64 `yaml:"fuzzy_minimum"`
	ACHardFloor             float64 `yaml:"ac_hard_floor"`
	VectorOutperform        float64 `yaml:"vector_outperform_factor"`
	RequestsPerMinute       int     `yaml:"requests_per_minute"`
	WeightsPath             string  `yaml:"fusion_weights_path"`
}

// FuzzyConfig holds the accelerated fuzzy tier's blend coefficients.
type FuzzyConfig struct {
	Distance      int     `yaml:"distance"`
	TimeoutMs     int     `yaml:"timeout_ms"`
	BackendWeight float64 `yaml:"backend_weight"`
	EditWeight    float64 `yaml:"edit_weight"`
	OverlapWeight float64 `yaml:"overlap_weight"`
	Penalty       float64 `yaml:"penalty"`
	PenaltyCutoff float64 `yaml:"penalty_cutoff"`
}

// CacheConfig holds cache capacities and TTLs.
type CacheConfig struct {
	EmbeddingSize   int `yaml:"embedding_size"`
	EmbeddingTTLSec int `yaml:"embedding_ttl_sec"`
	ResultSize      int `yaml:"result_size"`
	ResultTTLSec    int `yaml:"result_ttl_sec"`
}

// EmbeddingConfig holds the optional real embedding backend. An empty
// provider selects the deterministic pseudo-embedding.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "" or "openai"
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// EmbeddingTTL returns the embedding cache TTL as a duration.
func (c CacheConfig) EmbeddingTTL() time.Duration {
	return time.Duration(c.EmbeddingTTLSec) * time.Second
}

// ResultTTL returns the result cache TTL as a duration.
func (c CacheConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSec) * time.Second
}

// FuzzyTimeout returns the fuzzy backend timeout as a duration.
func (c FuzzyConfig) FuzzyTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.IndexName == "" {
		c.Database.IndexName = "watchlist"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "sanctex:"
	}

	if c.Search.EscalationThreshold <= 0 {
		c.Search.EscalationThreshold = 0.85
	}
	if c.Search.DefaultThreshold <= 0 {
		c.Search.DefaultThreshold = 0.4
	}
	if c.Search.VectorThreshold <= 0 {
		c.Search.VectorThreshold = 0.5
	}
	if c.Search.FallbackThreshold <= 0 {
		c.Search.FallbackThreshold = 0.6
	}
	if c.Search.VectorFallbackThreshold <= 0 {
		c.Search.VectorFallbackThreshold = 0.5
	}
	if c.Search.FuzzyHighConfidence <= 0 {
		c.Search.FuzzyHighConfidence = 0.85
	}
	if c.Search.FuzzyMinimum <= 0 {
		c.Search.FuzzyMinimum = 0.5
	}
	if c.Search.ACHardFloor <= 0 {
		c.Search.ACHardFloor = 0.3
	}
	if c.Search.VectorOutperform <= 0 {
		c.Search.VectorOutperform = 1.5
	}
	if c.Search.RequestsPerMinute <= 0 {
		c.Search.RequestsPerMinute = 120
	}

	if c.Fuzzy.Distance <= 0 {
		c.Fuzzy.Distance = 2
	}
	if c.Fuzzy.TimeoutMs <= 0 {
		c.Fuzzy.TimeoutMs = 2000
	}
	if c.Fuzzy.BackendWeight <= 0 {
		c.Fuzzy.BackendWeight = 0.2
	}
	if c.Fuzzy.EditWeight <= 0 {
		c.Fuzzy.EditWeight = 0.5
	}
	if c.Fuzzy.OverlapWeight <= 0 {
		c.Fuzzy.OverlapWeight = 0.3
	}
	if c.Fuzzy.Penalty <= 0 {
		c.Fuzzy.Penalty = 0.7
	}
	if c.Fuzzy.PenaltyCutoff <= 0 {
		c.Fuzzy.PenaltyCutoff = 0.6
	}

	if c.Cache.EmbeddingSize <= 0 {
		c.Cache.EmbeddingSize = 2048
	}
	if c.Cache.EmbeddingTTLSec <= 0 {
		c.Cache.EmbeddingTTLSec = 3600
	}
	if c.Cache.ResultSize <= 0 {
		c.Cache.ResultSize = 1024
	}
	if c.Cache.ResultTTLSec <= 0 {
		c.Cache.ResultTTLSec = 300
	}

	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = 384
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for name, v := range map[string]float64{
		"search.escalation_threshold":       c.Search.EscalationThreshold,
		"search.default_threshold":          c.Search.DefaultThreshold,
		"search.vector_similarity_threshold": c.Search.VectorThreshold,
		"search.fuzzy_high_confidence":      c.Search.FuzzyHighConfidence,
	} {
		if v > 1 {
			return fmt.Errorf("%s must be within (0, 1], got %v", name, v)
		}
	}
	switch c.Embedding.Provider {
	case "", "openai":
		// ok
	default:
		return fmt.Errorf("embedding.provider must be empty or \"openai\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for provider %q", c.Embedding.Provider)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
