package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agents.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTS_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTS_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTS_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setDuration(&cfg.LiteLLM.Timeout, "LITELLM_TIMEOUT")
	setString(&cfg.Registry.AgentURL, "AGENTS_REGISTRY_AGENT_URL")
	setString(&cfg.Registry.TaskURL, "AGENTS_REGISTRY_TASK_URL")
	setDuration(&cfg.Registry.CacheTTL, "AGENTS_REGISTRY_CACHE_TTL")
	setString(&cfg.Logging.Level, "AGENTS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTS_LOG_ASYNC")
	setInt(&cfg.Logging.BufferSize, "AGENTS_LOG_BUFFER_SIZE")
	setInt(&cfg.Logging.Workers, "AGENTS_LOG_WORKERS")
	setInt(&cfg.Breaker.MaxFailures, "AGENTS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTS_BREAKER_TIMEOUT")
	setInt64(&cfg.Runtime.MaxConcurrent, "AGENTS_MAX_CONCURRENT")
	setDuration(&cfg.Runtime.InferenceTimeout, "AGENTS_INFERENCE_TIMEOUT")
	setInt(&cfg.Runtime.MaxTokens, "AGENTS_MAX_TOKENS")
	setInt(&cfg.Runtime.HistoryLimit, "AGENTS_HISTORY_LIMIT")
	setBool(&cfg.Telemetry.Enabled, "AGENTS_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "AGENTS_TELEMETRY_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Runtime.MaxConcurrent < 1 {
		return errors.New("runtime.max_concurrent must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
