// Package config loads and validates the shopclerk configuration.
package config

// Config is the root configuration for shopclerk.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Security SecurityConfig `yaml:"security,omitempty"`
	Limits   LimitsConfig   `yaml:"limits,omitempty"`
	Bulk     BulkConfig     `yaml:"bulk,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Audit    AuditConfig    `yaml:"audit,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}

// LLMConfig selects and configures the language-model collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"` // "anthropic" | "mock"
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// SecurityConfig tunes the security judge.
type SecurityConfig struct {
	BlockHigh         *bool    `yaml:"blockHigh,omitempty"`         // block "high" verdicts; defaults to true
	SemanticTimeoutMS int      `yaml:"semanticTimeoutMs,omitempty"` // timeout for the LLM safety check
	MaxLoggedInput    int      `yaml:"maxLoggedInput,omitempty"`    // truncate logged input samples to this length
	ExtraDenyPatterns []string `yaml:"extraDenyPatterns,omitempty"` // additional deny-list regexes
}

// LimitsConfig sets per-mode business ceilings and rate limits.
type LimitsConfig struct {
	B2C ModeLimits `yaml:"b2c,omitempty"`
	B2B ModeLimits `yaml:"b2b,omitempty"`
}

// ModeLimits are the ceilings applied to one session mode.
type ModeLimits struct {
	MaxQuantityPerOrder int     `yaml:"maxQuantityPerOrder,omitempty"`
	MaxDiscountPercent  float64 `yaml:"maxDiscountPercent,omitempty"`
	RatePerMinute       float64 `yaml:"ratePerMinute,omitempty"`
	RateBurst           int     `yaml:"rateBurst,omitempty"`
}

// BulkConfig tunes the bulk order processor.
type BulkConfig struct {
	BatchSize      int `yaml:"batchSize,omitempty"`
	Concurrency    int `yaml:"concurrency,omitempty"`
	MaxAttempts    int `yaml:"maxAttempts,omitempty"`
	InitialDelayMS int `yaml:"initialDelayMs,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan"
	AuthToken      string   `yaml:"authToken,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// AuditConfig controls the turn audit store.
type AuditConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
	Path  string `yaml:"path,omitempty"`  // sqlite file path; ":memory:" for tests
}

// BlockHighEnabled resolves the blockHigh toggle with its default of true.
func (c SecurityConfig) BlockHighEnabled() bool {
	return c.BlockHigh == nil || *c.BlockHigh
}

// ForMode returns the limits for the given session mode.
func (c LimitsConfig) ForMode(mode string) ModeLimits {
	if mode == "b2b" {
		return c.B2B
	}
	return c.B2C
}
