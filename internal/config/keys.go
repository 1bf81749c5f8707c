package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "GAPSCOUT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origin", typ: kString, env: "GAPSCOUT_SERVER_ALLOWED_ORIGIN",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigin = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigin },
	},
	{
		key: "log.level", typ: kString, env: "GAPSCOUT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "search.base_url", typ: kString, env: "GAPSCOUT_SEARCH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Search.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.BaseURL },
	},
	{
		key: "search.api_key", typ: kString, env: "GAPSCOUT_SEARCH_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "search.timeout", typ: kString, env: "GAPSCOUT_SEARCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Search.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Timeout },
	},
	{
		key: "search.rate_per_second", typ: kFloat, env: "GAPSCOUT_SEARCH_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Search.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.RatePerSecond },
	},
	{
		key: "ai.base_url", typ: kString, env: "GAPSCOUT_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.api_key", typ: kString, env: "GAPSCOUT_AI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.model", typ: kString, env: "GAPSCOUT_AI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Model },
	},
	{
		key: "storage.url", typ: kString, env: "GAPSCOUT_STORAGE_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.URL },
	},
	{
		key: "storage.service_key", typ: kString, env: "GAPSCOUT_STORAGE_SERVICE_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.ServiceKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ServiceKey },
	},
	{
		key: "auth.api_token", typ: kString, env: "GAPSCOUT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIToken },
	},
	{
		key: "alerts.enabled", typ: kBool, env: "GAPSCOUT_ALERTS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Alerts.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Alerts.Enabled },
	},
	{
		key: "alerts.interval", typ: kString, env: "GAPSCOUT_ALERTS_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Alerts.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Alerts.Interval },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || v == "" {
				continue
			}
			parsed, err := parseTyped(s.typ, v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				continue
			}
			s.apply(cfg, parsed)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		parsed, err := parseTyped(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, parsed)
	}
}

// applySecrets fills secret keys that neither the environment nor the
// defaults provided.
func applySecrets(cfg *Config, secrets secretReader) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func parseTyped(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	}
	return raw, nil
}
