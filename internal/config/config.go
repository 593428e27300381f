package config

import "fmt"

type Config struct {
	Server     ServerConfig
	API        APIConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	Firecrawl  FirecrawlConfig
	LLM        LLMConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Fetch      FetchConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
	// PublicURL prefixes route URLs in responses. Empty means rooted paths.
	PublicURL string
}

type APIConfig struct {
	Token string
}

type StorageConfig struct {
	Backend    string // sqlite | nats
	DataDir    string
	NATSURL    string
	NATSBucket string
}

type ExtractionConfig struct {
	Provider string // firecrawl | local
}

type FirecrawlConfig struct {
	BaseURL string
	APIKey  string
}

type LLMConfig struct {
	Provider string // ollama | openrouter
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenRouterConfig struct {
	APIKey string
	Model  string
}

type FetchConfig struct {
	// RateLimit is the page fetch rate of the local extractor, in requests per second.
	RateLimit float64
}

type LogConfig struct {
	Level string
}

const (
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"

	ProviderFirecrawl = "firecrawl"
	ProviderLocal     = "local"

	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			DataDir:    defaultDataDir(),
			NATSURL:    "nats://127.0.0.1:4222",
			NATSBucket: "routesmith",
		},
		Extraction: ExtractionConfig{
			Provider: ProviderFirecrawl,
		},
		Firecrawl: FirecrawlConfig{
			BaseURL: "https://api.firecrawl.dev",
		},
		LLM: LLMConfig{
			Provider: ProviderOllama,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
		},
		OpenRouter: OpenRouterConfig{
			Model: "openai/gpt-4o-mini",
		},
		Fetch: FetchConfig{
			RateLimit: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.routesmith.app) and
// secrets fall back to macOS Keychain (service: routesmith).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/routesmith/config.json
// and secrets fall back to $XDG_DATA_HOME/routesmith/secrets.json.
//
// Environment variables (ROUTESMITH_*) override backend values on all platforms.
// Secrets are never read from the config backend.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), newSecretStore())
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecretStore(&cfg, secrets)

	if err := cfg.checkEnums(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecretStore fills secrets still empty after env overrides.
func applySecretStore(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func (c Config) checkEnums() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendNATS:
	default:
		return fmt.Errorf("invalid storage.backend %q: want %s or %s", c.Storage.Backend, BackendSQLite, BackendNATS)
	}
	switch c.Extraction.Provider {
	case ProviderFirecrawl, ProviderLocal:
	default:
		return fmt.Errorf("invalid extraction.provider %q: want %s or %s", c.Extraction.Provider, ProviderFirecrawl, ProviderLocal)
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenRouter:
	default:
		return fmt.Errorf("invalid llm.provider %q: want %s or %s", c.LLM.Provider, ProviderOllama, ProviderOpenRouter)
	}
	return nil
}

// RequireSecrets reports the first secret the selected providers need but
// that is missing. Only the server calls it; client commands work without secrets.
func (c Config) RequireSecrets() error {
	if c.Extraction.Provider == ProviderFirecrawl && c.Firecrawl.APIKey == "" {
		return missingSecret("Firecrawl API key", "firecrawl.api_key")
	}
	if c.LLM.Provider == ProviderOpenRouter && c.OpenRouter.APIKey == "" {
		return missingSecret("OpenRouter API key", "openrouter.api_key")
	}
	return nil
}

func missingSecret(what, key string) error {
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s%s", what, envName(key), secretHint(key))
}
