// Package config loads launcher-auth settings from an optional YAML file and
// LAUNCHER_* environment variables, in that order.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/pysugar/launcher-accounts/internal/auth/oauth"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix   = "LAUNCHER_"
	FileEnv     = EnvPrefix + "CONFIG"
	defaultFile = "launcher-auth.yaml"
)

type Config struct {
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Provider ProviderConfig `yaml:"provider" envPrefix:"PROVIDER_"`
	Refresh  RefreshConfig  `yaml:"refresh" envPrefix:"REFRESH_"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

type ProviderConfig struct {
	ClientID      string   `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret  string   `yaml:"client_secret" env:"CLIENT_SECRET"`
	AuthURL       string   `yaml:"auth_url" env:"AUTH_URL"`
	DeviceAuthURL string   `yaml:"device_auth_url" env:"DEVICE_AUTH_URL"`
	TokenURL      string   `yaml:"token_url" env:"TOKEN_URL"`
	ProfileURL    string   `yaml:"profile_url" env:"PROFILE_URL"`
	Scopes        []string `yaml:"scopes" env:"SCOPES" envSeparator:","`
}

// OAuth converts the section into the provider adapter's config.
func (p ProviderConfig) OAuth() oauth.Config {
	return oauth.Config{
		ClientID:      p.ClientID,
		ClientSecret:  p.ClientSecret,
		AuthURL:       p.AuthURL,
		DeviceAuthURL: p.DeviceAuthURL,
		TokenURL:      p.TokenURL,
		ProfileURL:    p.ProfileURL,
		Scopes:        p.Scopes,
	}
}

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Margin   time.Duration `yaml:"margin" env:"MARGIN"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "accounts.db"},
		Server:   ServerConfig{Host: "127.0.0.1", Port: 8086},
		Log:      LogConfig{Level: "info"},
		Refresh:  RefreshConfig{Interval: 15 * time.Minute, Margin: 20 * time.Minute},
	}
}

// Load reads the file at path, or the first file found by ResolvePath when
// path is empty, and applies environment overrides. A missing file is not an
// error unless it was named explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ResolvePath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(err, "parse %s", path)
			}
		case explicit || !os.IsNotExist(err):
			return Config{}, errors.Wrapf(err, "read %s", path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, cfg.Validate()
}

// ResolvePath returns LAUNCHER_CONFIG when set, otherwise the first existing
// well-known location, otherwise "".
func ResolvePath() string {
	if explicit := strings.TrimSpace(os.Getenv(FileEnv)); explicit != "" {
		return explicit
	}
	candidates := []string{defaultFile, filepath.Join("config", defaultFile)}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "launcher-auth", defaultFile))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", c.Server.Port)
	}
	if c.Refresh.Interval <= 0 || c.Refresh.Margin <= 0 {
		return errors.New("refresh.interval and refresh.margin must be positive")
	}
	return nil
}
