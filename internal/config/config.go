package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config centralises every runtime setting so the rest of the codebase can remain deterministic
// and easy to test. All fields can be overridden using environment variables.
type Config struct {
	AppName  string         `env:"APP_NAME" envDefault:"alarm-live"`
	Env      string         `env:"APP_ENV" envDefault:"development"`
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Source   SourceConfig   `envPrefix:"SOURCE_"`
	Refresh  RefreshConfig  `envPrefix:"REFRESH_"`
	Map      MapConfig      `envPrefix:"MAPBOX_"`
	Proxy    ProxyConfig    `envPrefix:"PROXY_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Keycloak KeycloakConfig `envPrefix:"KEYCLOAK_"`
}

// HTTPConfig controls the HTTP server behaviour.
type HTTPConfig struct {
	Address        string        `env:"ADDRESS" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:8080" envSeparator:","`
}

// SourceConfig describes where reports are scraped from.
type SourceConfig struct {
	BaseURL   string `env:"BASE_URL" envDefault:"https://alarmeringen.nl" validate:"required,http_url"`
	RegionURL string `env:"REGION_URL" envDefault:"https://alarmeringen.nl/noord-holland/amsterdam-amstelland/" validate:"required,http_url"`
	// ProxyURL routes scraping through a pass-through relay; empty fetches directly.
	ProxyURL          string        `env:"PROXY_URL" validate:"omitempty,http_url"`
	UserAgent         string        `env:"USER_AGENT" envDefault:"alarm-live/1.0"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"15s" validate:"gt=0"`
	Concurrency       int           `env:"CONCURRENCY" envDefault:"8" validate:"min=1,max=64"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0" validate:"gte=0"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"5242880" validate:"gt=0"`
}

// RefreshConfig drives the background refresh loop.
type RefreshConfig struct {
	Interval  time.Duration `env:"INTERVAL" envDefault:"20s" validate:"gt=0"`
	StaleTime time.Duration `env:"STALE_TIME" envDefault:"10s" validate:"gte=0"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"60s" validate:"gt=0"`
	// ReadWait caps how long a request waits on a refresh; it must stay
	// below HTTP.WriteTimeout.
	ReadWait  time.Duration `env:"READ_WAIT" envDefault:"5s" validate:"gt=0"`
}

// MapConfig is handed to the browser map.
type MapConfig struct {
	Token string `env:"TOKEN"`
	Style string `env:"STYLE" envDefault:"mapbox://styles/mapbox/dark-v11"`
	// Center is "lng,lat", the order Mapbox expects.
	Center []float64 `env:"CENTER" envDefault:"4.9041,52.3676" envSeparator:"," validate:"len=2,lnglat"`
	Zoom   float64   `env:"ZOOM" envDefault:"11.5" validate:"gte=0,lte=22"`
}

// ProxyConfig restricts the pass-through relay.
type ProxyConfig struct {
	AllowedHosts []string `env:"ALLOWED_HOSTS" envDefault:"alarmeringen.nl" envSeparator:"," validate:"min=1"`
}

// DatabaseConfig groups the optional Postgres/PostGIS archive settings.
// An empty URL disables the archive.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"30m"`
}

// Enabled reports whether the archive should be used.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// KeycloakConfig enables bearer-token auth on the refresh and proxy routes when URL is set.
type KeycloakConfig struct {
	URL       string `env:"URL"`
	PublicURL string `env:"PUBLIC_URL"`
	Realm     string `env:"REALM" envDefault:"alarm-live"`
	Role      string `env:"ROLE" envDefault:"api-access"`
}

// Enabled reports whether requests must carry a valid token.
func (k KeycloakConfig) Enabled() bool {
	return k.URL != ""
}

// Load reads configuration from the environment, applying defaults defined above.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and formats env.Parse cannot express.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("lnglat", func(fl validator.FieldLevel) bool {
		pair, ok := fl.Field().Interface().([]float64)
		if !ok || len(pair) != 2 {
			return false
		}
		return pair[0] >= -180 && pair[0] <= 180 && pair[1] >= -90 && pair[1] <= 90
	})
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Refresh.ReadWait >= cfg.HTTP.WriteTimeout {
		return fmt.Errorf("invalid config: REFRESH_READ_WAIT (%s) must be below HTTP_WRITE_TIMEOUT (%s)",
			cfg.Refresh.ReadWait, cfg.HTTP.WriteTimeout)
	}
	return nil
}
