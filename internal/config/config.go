// Package config loads perfai configuration from an optional YAML file,
// overridden by PERFAI_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PERFAI_"

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	AI           AIConfig           `koanf:"ai"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
}

type ServerConfig struct {
	Port      int    `koanf:"port"`
	AuthToken string `koanf:"auth_token"`
}

type StorageConfig struct {
	DataDir string `koanf:"data_dir"`
}

// AIConfig selects the LLM backend and the embedding credentials.
type AIConfig struct {
	Provider        string `koanf:"provider"` // anthropic | openai | local
	APIKey          string `koanf:"api_key"`
	Endpoint        string `koanf:"endpoint"` // required for local
	Model           string `koanf:"model"`
	EmbeddingAPIKey string `koanf:"embedding_api_key"`
}

type OrchestratorConfig struct {
	MaxRetries        int    `koanf:"max_retries"`
	Timeout           string `koanf:"timeout"` // duration string, e.g. "30s"
	RequestsPerMinute int    `koanf:"requests_per_minute"`
	CacheEnabled      bool   `koanf:"cache_enabled"`
	CacheTTL          string `koanf:"cache_ttl"`
	MaxHistory        int    `koanf:"max_history"`
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "perfai-data"
		}
	}
	return filepath.Join(dir, "perfai")
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                      4600,
		"storage.data_dir":                 defaultDataDir(),
		"ai.provider":                      "anthropic",
		"orchestrator.max_retries":         3,
		"orchestrator.timeout":             "30s",
		"orchestrator.requests_per_minute": 60,
		"orchestrator.cache_enabled":       true,
		"orchestrator.cache_ttl":           "5m",
		"orchestrator.max_history":         1000,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty or the file does not exist), then overlays PERFAI_ environment
// variables. Double underscores in variable names become key separators:
// PERFAI_SERVER__PORT sets server.port.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.AI.Provider {
	case "anthropic", "openai", "local":
	default:
		return fmt.Errorf("invalid ai.provider %q: must be anthropic, openai, or local", c.AI.Provider)
	}
	if c.AI.Provider == "local" && c.AI.Endpoint == "" {
		return fmt.Errorf("ai.endpoint is required when ai.provider is local")
	}
	if _, err := time.ParseDuration(c.Orchestrator.Timeout); err != nil {
		return fmt.Errorf("invalid orchestrator.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Orchestrator.CacheTTL); err != nil {
		return fmt.Errorf("invalid orchestrator.cache_ttl: %w", err)
	}
	return nil
}

// ParsedTimeout returns the per-call timeout. Load validated the string.
func (c OrchestratorConfig) ParsedTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// ParsedCacheTTL returns the cache TTL. Load validated the string.
func (c OrchestratorConfig) ParsedCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.CacheTTL)
	return d
}
