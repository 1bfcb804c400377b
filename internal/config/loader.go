package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "DASHBOARD_"
	envConfigPath = "DASHBOARD_CONFIG"
)

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New())
//  2. YAML file if DASHBOARD_CONFIG is set
//  3. DASHBOARD_* env vars (DASHBOARD_CACHE_TTL_MINUTES -> cache_ttl_minutes)
//  4. platform env vars: PORT, GCS_CACHE_BUCKET, GOOGLE_CLOUD_PROJECT
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := applyPlatformEnv(k); err != nil {
		return nil, err
	}

	cfg := *base
	// Lists from the file replace the defaults instead of merging by index.
	if k.Exists("metrics") {
		cfg.Metrics = nil
	}
	if k.Exists("chart_metrics") {
		cfg.ChartMetrics = nil
	}
	if k.Exists("dashboards") {
		cfg.Dashboards = nil
	}
	if k.Exists("users") {
		cfg.Users = nil
	}
	dc := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "koanf",
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: dc}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformEnv maps the unprefixed variables set by the container
// platform onto their config keys.
func applyPlatformEnv(k *koanf.Koanf) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		host := "0.0.0.0"
		if addr := k.String("addr"); addr != "" {
			if i := strings.LastIndex(addr, ":"); i >= 0 {
				host = addr[:i]
			}
		}
		if err := k.Set("addr", host+":"+port); err != nil {
			return fmt.Errorf("%w: PORT: %w", ErrLoadConfig, err)
		}
	}
	for envKey, cfgKey := range map[string]string{
		"GCS_CACHE_BUCKET":     "cache_bucket",
		"GOOGLE_CLOUD_PROJECT": "project_id",
	} {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			if err := k.Set(cfgKey, v); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrLoadConfig, envKey, err)
			}
		}
	}
	return nil
}
