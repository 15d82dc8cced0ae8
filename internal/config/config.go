package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
)

// Duration is a time.Duration that can be configured as a string like "8m"
// both in the configuration file and in the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// EnvDecode implements envconfig.Decoder.
func (d *Duration) EnvDecode(val string) error {
	return d.UnmarshalText([]byte(val))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	ListenAddress  string   `env:"LISTEN" json:"listenAddress"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" json:"allowedOrigins"`

	MongoURL string `env:"MONGO_URL" json:"mongoUrl"`
	Database string `env:"DATABASE" json:"database"`
	RedisURL string `env:"REDIS_URL" json:"redisUrl"`

	BackendURL        string   `env:"BACKEND_URL" json:"backendUrl"`
	BackendToken      string   `env:"BACKEND_TOKEN" json:"backendToken"`
	BackendMaxElapsed Duration `env:"BACKEND_MAX_ELAPSED, default=30s" json:"backendMaxElapsed"`

	AuthPublicKey string `env:"AUTH_PUBLIC_KEY" json:"authPublicKey"`
	AuthSecret    string `env:"AUTH_SECRET" json:"authSecret"`
	AuthIssuer    string `env:"AUTH_ISSUER" json:"authIssuer"`
	AuthAudience  string `env:"AUTH_AUDIENCE" json:"authAudience"`
	IngestToken   string `env:"INGEST_TOKEN" json:"ingestToken"`

	Country         string `env:"COUNTRY, default=AT" json:"country"`
	Timezone        string `env:"TIMEZONE" json:"timezone"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE, default=en" json:"defaultLanguage"`
	TwilioNumber    string `env:"TWILIO_NUMBER" json:"twilioNumber"`

	// InboundLivenessWindow is how long an inbound call without a recording
	// is displayed as in progress.
	InboundLivenessWindow Duration `env:"INBOUND_LIVENESS_WINDOW, default=8m" json:"inboundLivenessWindow"`
	MatchInterval         Duration `env:"MATCH_INTERVAL, default=10m" json:"matchInterval"`

	LogLevel  string `env:"LOG_LEVEL" json:"logLevel"`
	LogFormat string `env:"LOG_FORMAT" json:"logFormat"`
}

// Location returns the configured time zone or time.Local.
func (cfg Config) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return time.Local, nil
	}

	return time.LoadLocation(cfg.Timezone)
}

func LoadConfig(ctx context.Context, path string) (*Config, error) {
	var cfg Config

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file at path %q: %w", path, err)
		}

		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			content, err = yaml.YAMLToJSON(content)
			if err != nil {
				return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
			}

			fallthrough
		case ".json":
			dec := json.NewDecoder(bytes.NewReader(content))
			dec.DisallowUnknownFields()

			if err := dec.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("failed to decode JSON: %w", err)
			}

		default:
			return nil, fmt.Errorf("unsupported config file format %q", filepath.Ext(path))
		}
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration from environment: %w", err)
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	if cfg.MongoURL == "" {
		return nil, fmt.Errorf("missing mongoUrl config setting")
	}

	if cfg.Database == "" {
		return nil, fmt.Errorf("missing database config setting")
	}

	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("missing backendUrl config setting")
	}
	cfg.BackendURL = strings.TrimSuffix(cfg.BackendURL, "/")

	if cfg.IngestToken == "" {
		return nil, fmt.Errorf("missing ingestToken config setting")
	}

	if cfg.AuthPublicKey == "" && cfg.AuthSecret == "" {
		return nil, fmt.Errorf("either authPublicKey or authSecret must be configured")
	}

	switch cfg.DefaultLanguage {
	case "en", "es":
	default:
		return nil, fmt.Errorf("invalid defaultLanguage %q, allowed values are en and es", cfg.DefaultLanguage)
	}

	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	if cfg.RedisURL == "" {
		logrus.Info("no redis configured, live updates are limited to this instance")
	}

	return &cfg, nil
}
