package config

import (
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a malformed or invalid configuration file.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.Gateway.AuthToken = expandEnvVars(cfg.Gateway.AuthToken)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "shopclerk.yaml"
	}
	return filepath.Join(home, ".shopclerk", "config.yaml")
}

// Defaults returns a Config with all defaults applied.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads the config file and returns a merged Config. A missing file
// produces defaults only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Security.SemanticTimeoutMS == 0 {
		cfg.Security.SemanticTimeoutMS = 2000
	}
	if cfg.Security.MaxLoggedInput == 0 {
		cfg.Security.MaxLoggedInput = 200
	}
	if cfg.Limits.B2C.MaxQuantityPerOrder == 0 {
		cfg.Limits.B2C.MaxQuantityPerOrder = 100
	}
	if cfg.Limits.B2C.MaxDiscountPercent == 0 {
		cfg.Limits.B2C.MaxDiscountPercent = 20
	}
	if cfg.Limits.B2C.RatePerMinute == 0 {
		cfg.Limits.B2C.RatePerMinute = 30
	}
	if cfg.Limits.B2C.RateBurst == 0 {
		cfg.Limits.B2C.RateBurst = 10
	}
	if cfg.Limits.B2B.MaxQuantityPerOrder == 0 {
		cfg.Limits.B2B.MaxQuantityPerOrder = 10000
	}
	if cfg.Limits.B2B.MaxDiscountPercent == 0 {
		cfg.Limits.B2B.MaxDiscountPercent = 40
	}
	if cfg.Limits.B2B.RatePerMinute == 0 {
		cfg.Limits.B2B.RatePerMinute = 120
	}
	if cfg.Limits.B2B.RateBurst == 0 {
		cfg.Limits.B2B.RateBurst = 30
	}
	if cfg.Bulk.BatchSize == 0 {
		cfg.Bulk.BatchSize = 25
	}
	if cfg.Bulk.Concurrency == 0 {
		cfg.Bulk.Concurrency = 5
	}
	if cfg.Bulk.MaxAttempts == 0 {
		cfg.Bulk.MaxAttempts = 3
	}
	if cfg.Bulk.InitialDelayMS == 0 {
		cfg.Bulk.InitialDelayMS = 100
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18750
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Audit.Store == "" {
		cfg.Audit.Store = "memory"
	}
}
