package config

import (
	"fmt"
	"regexp"
)

// Validate checks semantic constraints after defaults are applied.
func Validate(cfg Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "mock":
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown llm provider %q", cfg.LLM.Provider)}
	}

	switch cfg.Audit.Store {
	case "sqlite", "memory":
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown audit store %q", cfg.Audit.Store)}
	}
	if cfg.Audit.Store == "sqlite" && cfg.Audit.Path == "" {
		return &ConfigError{Message: "audit.path is required when audit.store is sqlite"}
	}

	if cfg.Bulk.BatchSize < 1 {
		return &ConfigError{Message: "bulk.batchSize must be at least 1"}
	}
	if cfg.Bulk.Concurrency < 1 {
		return &ConfigError{Message: "bulk.concurrency must be at least 1"}
	}
	if cfg.Bulk.MaxAttempts < 1 || cfg.Bulk.MaxAttempts > 3 {
		return &ConfigError{Message: "bulk.maxAttempts must be between 1 and 3"}
	}

	for _, m := range []ModeLimits{cfg.Limits.B2C, cfg.Limits.B2B} {
		if m.MaxDiscountPercent < 0 || m.MaxDiscountPercent > 100 {
			return &ConfigError{Message: "limits maxDiscountPercent must be between 0 and 100"}
		}
		if m.MaxQuantityPerOrder < 1 {
			return &ConfigError{Message: "limits maxQuantityPerOrder must be at least 1"}
		}
	}

	for _, p := range cfg.Security.ExtraDenyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return &ConfigError{Message: fmt.Sprintf("invalid deny pattern %q: %v", p, err)}
		}
	}

	if cfg.Gateway.Port < 1 || cfg.Gateway.Port > 65535 {
		return &ConfigError{Message: "gateway.port must be a valid TCP port"}
	}
	switch cfg.Gateway.Bind {
	case "loopback", "lan":
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown gateway bind %q", cfg.Gateway.Bind)}
	}

	return nil
}
