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
	kFloat
)

// secretService is the macOS Keychain service secrets are stored under.
const secretService = "routesmith"

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
		key: "server.port", typ: kInt, env: "ROUTESMITH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.public_url", typ: kString, env: "ROUTESMITH_SERVER_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.PublicURL },
	},
	{
		key: "api.token", typ: kString, env: "ROUTESMITH_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "storage.backend", typ: kString, env: "ROUTESMITH_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ROUTESMITH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.nats_url", typ: kString, env: "ROUTESMITH_STORAGE_NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.NATSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.NATSURL },
	},
	{
		key: "storage.nats_bucket", typ: kString, env: "ROUTESMITH_STORAGE_NATS_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Storage.NATSBucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.NATSBucket },
	},
	{
		key: "extraction.provider", typ: kString, env: "ROUTESMITH_EXTRACTION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Extraction.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.Provider },
	},
	{
		key: "firecrawl.base_url", typ: kString, env: "ROUTESMITH_FIRECRAWL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Firecrawl.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Firecrawl.BaseURL },
	},
	{
		key: "firecrawl.api_key", typ: kString, env: "ROUTESMITH_FIRECRAWL_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Firecrawl.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Firecrawl.APIKey },
	},
	{
		key: "llm.provider", typ: kString, env: "ROUTESMITH_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "ollama.base_url", typ: kString, env: "ROUTESMITH_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "ROUTESMITH_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "ROUTESMITH_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "openrouter.model", typ: kString, env: "ROUTESMITH_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "fetch.rate_limit", typ: kFloat, env: "ROUTESMITH_FETCH_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Fetch.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Fetch.RateLimit },
	},
	{
		key: "log.level", typ: kString, env: "ROUTESMITH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func envName(key string) string {
	s, _ := lookup(key)
	return s.env
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
		case kFloat:
			// A bad rate keeps the default instead of refusing to start.
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] %v. Using default value.\n", err)
				continue
			}
			if ok {
				s.apply(cfg, v)
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
