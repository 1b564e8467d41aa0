// Package config loads Merlin configuration from a YAML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/merlin/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. MERLIN_SERVER_PORT.
const EnvPrefix = "MERLIN"

// keys that can be overridden from the environment.
var keys = []string{
	"server.host", "server.port", "server.read_timeout", "server.write_timeout",
	"screening.rules_path", "screening.continue_on_flag", "screening.cost_limit",
	"hints.utilization_above", "hints.delayed_payments_above", "hints.debt_above",
	"catalog.path", "catalog.top_k", "catalog.cache_ttl",
	"explain.provider", "explain.target_region",
	"explain.gemini_model", "explain.max_tokens", "explain.temperature", "explain.timeout",
	"riskscore.enabled", "riskscore.endpoint", "riskscore.timeout",
	"velocity.enabled", "velocity.window",
	"persistence.mode", "persistence.timeout",
	"repository.driver", "repository.sqlite_path",
	"repository.postgres_host", "repository.postgres_port", "repository.postgres_user",
	"repository.postgres_password", "repository.postgres_db", "repository.postgres_sslmode",
	"repository.max_open_conns", "repository.max_idle_conns",
	"cache.type", "cache.local_max_size", "cache.local_ttl",
	"cache.redis_addr", "cache.redis_password", "cache.redis_db", "cache.two_phase",
	"eventbus.type", "eventbus.channel_buffer_size", "eventbus.nats_url", "eventbus.nats_token",
	"eventbus.nats_max_reconnects", "eventbus.nats_reconnect_wait", "eventbus.nats_queue",
	"log.level", "log.format",
	"tracing.enabled", "tracing.service_name", "tracing.endpoint", "tracing.insecure",
}

// aliases maps keys to the conventional variable names the model SDKs use.
var aliases = map[string][]string{
	"explain.api_key":               {"BEDROCK_API_KEY"},
	"explain.model_id":              {"BEDROCK_TEXT_MODEL_ID"},
	"explain.inference_profile_id":  {"BEDROCK_TEXT_INFERENCE_PROFILE_ID"},
	"explain.inference_profile_arn": {"BEDROCK_TEXT_INFERENCE_PROFILE_ARN"},
	"explain.region":                {"BEDROCK_TEXT_REGION", "AWS_REGION"},
	"explain.gemini_api_key":        {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"riskscore.region":              {"AWS_REGION"},
}

// Load builds the configuration. configFile and envFile are optional; an
// empty configFile searches for merlin.yaml in . and ./config.
func Load(configFile, envFile string) (*domain.Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("merlin")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for key, names := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := domain.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile reads path, or .env when path is empty. A missing default
// file is not an error. Variables already set are not overwritten.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	if cfg.Screening.RulesPath == "" {
		errs = append(errs, errors.New("screening.rules_path is required"))
	}

	switch cfg.Persistence.Mode {
	case "", "direct", "async":
	default:
		errs = append(errs, fmt.Errorf("persistence.mode must be direct or async, got %q", cfg.Persistence.Mode))
	}

	switch cfg.Explain.Provider {
	case "", "none", "bedrock", "gemini":
	default:
		errs = append(errs, fmt.Errorf("explain.provider must be bedrock, gemini or none, got %q", cfg.Explain.Provider))
	}

	if cfg.RiskScore.Enabled && cfg.RiskScore.Endpoint == "" {
		errs = append(errs, errors.New("riskscore.endpoint is required when riskscore is enabled"))
	}

	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}
