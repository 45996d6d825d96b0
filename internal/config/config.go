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

// Config holds the lostmatch configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Match      MatchConfig      `yaml:"match"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
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

// Store drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// StoreConfig selects and configures the item store.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, badger, memory (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	Path             string   `yaml:"path"`      // badger data directory
	InMemory         bool     `yaml:"in_memory"` // badger without disk
}

// UsesValkey reports whether the driver talks to a Valkey/Redis server.
func (s StoreConfig) UsesValkey() bool {
	return s.Driver == DriverValkey || s.Driver == DriverRedis
}

// Embedding providers.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// EmbeddingConfig configures the embedding backend and its decorators.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"` // openai, hashing (default: hashing)
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	Dimensions          int         `yaml:"dimensions"`
	QueryInstruction    string      `yaml:"query_instruction"`
	DocumentInstruction string      `yaml:"document_instruction"`
	RPS                 float64     `yaml:"rps"` // 0 = unlimited
	Burst               int         `yaml:"burst"`
	DisableBatch        bool        `yaml:"disable_batch"` // backend rejects array input
	PoolSize            int         `yaml:"pool_size"`     // workers fanning out single requests
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig controls the Valkey-backed embedding cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// Generation drivers.
const (
	GenerationOpenAI     = "openai"
	GenerationLangchain  = "langchaingo"
	DefaultGenerationLLM = "gpt-4o-mini"
)

// GenerationConfig configures the generative backend used by the llm strategy.
type GenerationConfig struct {
	Driver      string  `yaml:"driver"` // openai, langchaingo (default: openai)
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	RPS         float64 `yaml:"rps"` // 0 = unlimited
	Burst       int     `yaml:"burst"`
}

// MatchConfig configures the match service.
type MatchConfig struct {
	Strategy  string `yaml:"strategy"`  // embedding, llm (default: embedding)
	DefaultK  *int   `yaml:"default_k"` // default: 5
	MaxK      int    `yaml:"max_k"`
	TimeoutMs int    `yaml:"timeout_ms"` // 0 = no extra bound
}

// Timeout returns the scoring stage bound.
func (m MatchConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverValkey
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHashing
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.PoolSize <= 0 {
		c.Embedding.PoolSize = 8
	}
	if c.Generation.Driver == "" {
		c.Generation.Driver = GenerationOpenAI
	}
	if c.Generation.Model == "" {
		c.Generation.Model = DefaultGenerationLLM
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 2048
	}
	if c.Match.Strategy == "" {
		c.Match.Strategy = "embedding"
	}
	if c.Match.DefaultK == nil {
		k := 5
		c.Match.DefaultK = &k
	}
	if c.Match.MaxK <= 0 {
		c.Match.MaxK = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Store.Driver {
	case DriverValkey, DriverRedis:
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for driver %q", c.Store.Driver)
		}
	case DriverBadger:
		if c.Store.Path == "" && !c.Store.InMemory {
			return fmt.Errorf("store.path is required for driver %q unless store.in_memory is set", DriverBadger)
		}
	case DriverMemory:
		// ok
	default:
		return fmt.Errorf("store.driver must be one of valkey, redis, badger, memory, got %q", c.Store.Driver)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHashing:
		// ok
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"hashing\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Cache.Enabled && !c.Store.UsesValkey() {
		return fmt.Errorf("embedding.cache requires a valkey or redis store, got %q", c.Store.Driver)
	}

	switch c.Generation.Driver {
	case GenerationOpenAI, GenerationLangchain:
		// ok
	default:
		return fmt.Errorf("generation.driver must be \"openai\" or \"langchaingo\", got %q", c.Generation.Driver)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %g", c.Generation.Temperature)
	}

	switch c.Match.Strategy {
	case "embedding":
	case "llm":
		if strings.TrimSpace(c.Generation.Model) == "" {
			return fmt.Errorf("match.strategy \"llm\" requires generation.model")
		}
	default:
		return fmt.Errorf("match.strategy must be \"embedding\" or \"llm\", got %q", c.Match.Strategy)
	}
	if c.Match.DefaultK != nil && *c.Match.DefaultK < 0 {
		return fmt.Errorf("match.default_k must be >= 0, got %d", *c.Match.DefaultK)
	}
	if c.Match.DefaultK != nil && c.Match.MaxK < *c.Match.DefaultK {
		return fmt.Errorf("match.max_k (%d) must be >= match.default_k (%d)", c.Match.MaxK, *c.Match.DefaultK)
	}
	if c.Match.TimeoutMs < 0 {
		return fmt.Errorf("match.timeout_ms must be >= 0, got %d", c.Match.TimeoutMs)
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
