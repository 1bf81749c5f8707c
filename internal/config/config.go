package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kalambet/gapscout/internal/storage"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Search  SearchConfig
	AI      AIConfig
	Storage StorageConfig
	Auth    AuthConfig
	Alerts  AlertsConfig
}

type ServerConfig struct {
	Port          int
	AllowedOrigin string
}

type LogConfig struct {
	Level string
}

type SearchConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       string
	RatePerSecond float64
}

type AIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type StorageConfig struct {
	URL        string
	ServiceKey string
}

type AuthConfig struct {
	APIToken string
}

type AlertsConfig struct {
	Enabled  bool
	Interval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:          4000,
			AllowedOrigin: "*",
		},
		Log: LogConfig{Level: "info"},
		Search: SearchConfig{
			BaseURL:       "https://api.firecrawl.dev/v1",
			Timeout:       "15s",
			RatePerSecond: 5,
		},
		AI: AIConfig{
			BaseURL: "https://ai.gateway.lovable.dev/v1",
			Model:   "google/gemini-2.0-flash-exp",
		},
		Storage: StorageConfig{
			URL: "sqlite://" + defaultDataDir(),
		},
		Alerts: AlertsConfig{
			Enabled:  false,
			Interval: "1h",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/gapscout/config.json, then environment variables
// (GAPSCOUT_*), then fills secrets still empty from
// $XDG_DATA_HOME/gapscout/secrets.json.
//
// Load does not require any key to be present; callers that run the
// pipeline call Validate.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretReader abstracts the secrets file for testing.
type secretReader interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	return cfg, nil
}

// Validate is the fail-fast check run before the server accepts work. The
// storage service key is only required for Postgres URLs without an
// embedded password.
func (c Config) Validate() error {
	var missing []string
	if c.Search.APIKey == "" {
		missing = append(missing, "search.api_key (GAPSCOUT_SEARCH_API_KEY)")
	}
	if c.AI.APIKey == "" {
		missing = append(missing, "ai.api_key (GAPSCOUT_AI_API_KEY)")
	}
	if c.Storage.URL == "" {
		missing = append(missing, "storage.url (GAPSCOUT_STORAGE_URL)")
	} else if c.needsServiceKey() {
		missing = append(missing, "storage.service_key (GAPSCOUT_STORAGE_SERVICE_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if _, err := time.ParseDuration(c.Search.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("search.timeout: %w", err))
	}
	if c.Alerts.Enabled {
		if d, err := time.ParseDuration(c.Alerts.Interval); err != nil {
			errs = append(errs, fmt.Errorf("alerts.interval: %w", err))
		} else if d <= 0 {
			errs = append(errs, errors.New("alerts.interval must be positive"))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c Config) needsServiceKey() bool {
	if !storage.IsPostgresURL(c.Storage.URL) || c.Storage.ServiceKey != "" {
		return false
	}
	u, err := url.Parse(c.Storage.URL)
	if err != nil || u.User == nil {
		return true
	}
	_, hasPassword := u.User.Password()
	return !hasPassword
}

// SearchTimeout parses search.timeout, falling back to 15s.
func (c Config) SearchTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Search.Timeout); err == nil && d > 0 {
		return d
	}
	return 15 * time.Second
}

// AlertsInterval parses alerts.interval, falling back to one hour.
func (c Config) AlertsInterval() time.Duration {
	if d, err := time.ParseDuration(c.Alerts.Interval); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "gapscout-data"
		}
	}
	return filepath.Join(dir, "gapscout")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "gapscout", "config.json")
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}
