package client

import (
	"time"

	"github.com/langadventurellc/burnside/chat"
	"github.com/langadventurellc/burnside/registry"
	"github.com/langadventurellc/burnside/retry"
	"github.com/langadventurellc/burnside/validate"
)

// ModelSeedMode selects how the model registry is seeded at construction.
type ModelSeedMode string

const (
	ModelSeedNone    ModelSeedMode = "none"
	ModelSeedBuiltin ModelSeedMode = "builtin"
	ModelSeedData    ModelSeedMode = "data"
)

// ToolsConfig gates and bounds the tool subsystem (§6).
type ToolsConfig struct {
	Enabled                bool
	BuiltinTools           []string
	ExecutionTimeoutMs     int
	MaxConcurrentTools     int
	MCPServers             []validate.MCPServerConfig
	MCPToolFailureStrategy string
}

// RateLimitScope selects the granularity a RateLimitPolicy applies at.
type RateLimitScope string

const (
	RateLimitScopeGlobal             RateLimitScope = "global"
	RateLimitScopeProvider           RateLimitScope = "provider"
	RateLimitScopeProviderModel      RateLimitScope = "provider:model"
	RateLimitScopeProviderModelKey   RateLimitScope = "provider:model:key"
)

// RateLimitPolicy configures the client's outbound rate limiting.
type RateLimitPolicy struct {
	Enabled bool
	MaxRps  float64
	Burst   int
	Scope   RateLimitScope
}

// Config is the client's full configuration surface (§6).
type Config struct {
	DefaultProvider string
	// Providers maps provider id -> named config -> config object. The
	// "default" name is used when ChatRequest.ProviderConfig is empty.
	Providers map[string]map[string]map[string]any
	DefaultModel string

	// Timeout is the default per-call timeout; clamped to [1s, 300s],
	// default 30s, per §4.9's timeout policy.
	Timeout time.Duration

	ModelSeed     ModelSeedMode
	ModelSeedData []registry.CatalogEntry

	Tools ToolsConfig

	RateLimitPolicy RateLimitPolicy
	RetryPolicy     retry.Policy
}

// DefaultConfig returns a Config with the documented defaults from §6.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		ModelSeed:   ModelSeedNone,
		Tools:       ToolsConfig{ExecutionTimeoutMs: 30000, MaxConcurrentTools: 5},
		RetryPolicy: retry.DefaultPolicy(),
	}
}

// EffectiveTimeout clamps Timeout to [1s, 300s], defaulting to 30s when
// unset.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	if c.Timeout < time.Second {
		return time.Second
	}
	if c.Timeout > 300*time.Second {
		return 300 * time.Second
	}
	return c.Timeout
}

// Validate enforces §6's configuration surface rules.
func (c Config) Validate() error {
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return chat.New(chat.KindValidation, "client: defaultProvider is not present in providers")
		}
	}
	for id, named := range c.Providers {
		if id == "" {
			return chat.New(chat.KindValidation, "client: provider id must be non-empty")
		}
		for name := range named {
			if name == "" {
				return chat.New(chat.KindValidation, "client: provider config name must be non-empty")
			}
		}
	}
	ms := c.Timeout.Milliseconds()
	if c.Timeout != 0 {
		if err := validate.Timeout(int(ms)); err != nil {
			return err
		}
	}
	if c.Tools.Enabled {
		if err := validate.Timeout(c.Tools.ExecutionTimeoutMs); err != nil {
			return err
		}
		if c.Tools.MaxConcurrentTools < 1 || c.Tools.MaxConcurrentTools > 10 {
			return chat.New(chat.KindValidation, "client: tools.maxConcurrentTools must be in [1, 10]")
		}
		if err := validate.MCPServers(c.Tools.MCPServers); err != nil {
			return err
		}
	}
	if c.RateLimitPolicy.Enabled && c.RateLimitPolicy.MaxRps <= 0 {
		return chat.New(chat.KindValidation, "client: rateLimitPolicy.maxRps is required when enabled")
	}
	if !c.RetryPolicy.IsZero() {
		if err := c.RetryPolicy.Validate(); err != nil {
			return err
		}
	}
	return nil
}
