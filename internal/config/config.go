package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend is the platform settings store: UserDefaults on macOS, a JSON
// file elsewhere. Keys are the dotted names of the key table, e.g.
// "api.base_url".
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// ErrSecretNotFound is returned by Secrets for a secret that is not stored.
var ErrSecretNotFound = errors.New("secret not found")

// Secrets is the platform secret store: the login keychain on macOS, a JSON
// file elsewhere.
type Secrets interface {
	Secret(name string) (string, error)
}

type Config struct {
	API     APIConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Warm    WarmConfig
}

type APIConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
	MaxRetries     int
	// Resources is a comma-separated allow-list of collections, e.g.
	// "products,orders". Empty allows any collection name.
	Resources string
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type WarmConfig struct {
	Interval    time.Duration
	Concurrency int
	// Targets is a comma-separated list of "resource" or "resource?query"
	// entries, e.g. "products?status=publish,orders".
	Targets string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:    "http://localhost:4000",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Warm: WarmConfig{
			Interval:    5 * time.Minute,
			Concurrency: 4,
		},
	}
}

// Load reads configuration from the platform backend, a .env file in the
// working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.wcdata.app) and secrets
// come from the Keychain (service: wcdata). Elsewhere the backend is
// $XDG_CONFIG_HOME/wcdata/config.json and secrets come from secrets.json in
// the same directory.
//
// Environment variables (WCDATA_*) override backend values on all platforms.
// Variables from .env never override ones already set.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(platformBackend(), platformSecrets())
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func loadWith(b Backend, sec Secrets) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.ConsumerKey != "" && cfg.API.ConsumerSecret == "" {
		cfg.API.ConsumerSecret = lookupSecret(sec, "consumer_secret")
	}
	if cfg.Server.Token == "" {
		cfg.Server.Token = lookupSecret(sec, "server_token")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func lookupSecret(sec Secrets, name string) string {
	v, err := sec.Secret(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func validate(cfg Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config: api.base_url %q must be an http(s) URL", cfg.API.BaseURL)
	}
	if cfg.API.ConsumerKey != "" && cfg.API.ConsumerSecret == "" {
		return fmt.Errorf("missing required config: consumer secret for key %q. "+
			"Set it via environment variable WCDATA_API_CONSUMER_SECRET%s", cfg.API.ConsumerKey, secretHint("consumer_secret"))
	}
	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("invalid config: api.timeout must be positive")
	}
	if cfg.Warm.Concurrency <= 0 {
		return fmt.Errorf("invalid config: warm.concurrency must be positive")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn or error)", cfg.Log.Level)
	}
	return nil
}
