package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
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
		key: "api.base_url", typ: kString, env: "WCDATA_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.BaseURL },
	},
	{
		key: "api.consumer_key", typ: kString, env: "WCDATA_API_CONSUMER_KEY",
		apply:   func(cfg *Config, v any) { cfg.API.ConsumerKey = v.(string) },
		extract: func(cfg Config) any { return cfg.API.ConsumerKey },
	},
	{
		key: "api.consumer_secret", typ: kString, env: "WCDATA_API_CONSUMER_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.ConsumerSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.API.ConsumerSecret },
	},
	{
		key: "api.timeout", typ: kDuration, env: "WCDATA_API_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.API.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.API.Timeout },
	},
	{
		key: "api.max_retries", typ: kInt, env: "WCDATA_API_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.API.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.API.MaxRetries },
	},
	{
		key: "api.resources", typ: kString, env: "WCDATA_API_RESOURCES",
		apply:   func(cfg *Config, v any) { cfg.API.Resources = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Resources },
	},
	{
		key: "server.port", typ: kInt, env: "WCDATA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "WCDATA_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "WCDATA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "WCDATA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "warm.interval", typ: kDuration, env: "WCDATA_WARM_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Warm.Interval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Warm.Interval },
	},
	{
		key: "warm.concurrency", typ: kInt, env: "WCDATA_WARM_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Warm.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Warm.Concurrency },
	},
	{
		key: "warm.targets", typ: kString, env: "WCDATA_WARM_TARGETS",
		apply:   func(cfg *Config, v any) { cfg.Warm.Targets = v.(string) },
		extract: func(cfg Config) any { return cfg.Warm.Targets },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
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
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
