package config

import (
	"context"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/client"
)

type contextKey string

const configKey contextKey = "gatectl-config"

// GlobalConfig holds shared configuration for all gatectl commands.
// The root command's PersistentPreRunE injects it into the cobra context.
type GlobalConfig struct {
	ServerURL      string
	ConfigDir      string
	NonInteractive bool
	ClientProvider *client.Provider
}

// InjectConfig adds config to the cobra command context.
func InjectConfig(ctx context.Context, cfg *GlobalConfig) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
func FromContext(ctx context.Context) (*GlobalConfig, bool) {
	cfg, ok := ctx.Value(configKey).(*GlobalConfig)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
// Only for RunE functions, where the root command has injected it.
func MustFromContext(ctx context.Context) *GlobalConfig {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("gatectl: config not found in context - this is a bug in gatectl")
	}
	return cfg
}
