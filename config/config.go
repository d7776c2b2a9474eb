// Package config loads the client's settings from YAML, layered over
// defaults and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"gopkg.in/yaml.v3"

	"github.com/kleeedolinux/devsettings/endpoint"
	"github.com/kleeedolinux/devsettings/socket/transport"
)

// EnvPage overrides the page URL from the environment.
const EnvPage = "DEVSETTINGS_PAGE"

// DefaultPage is the address a device serves its page on while it runs as
// an access point.
const DefaultPage = "http://192.168.1.1/"

type Config struct {
	Page         string   `yaml:"page"`
	Subprotocols []string `yaml:"subprotocols"`
	Timeouts     Timeouts `yaml:"timeouts"`
	Submit       Submit   `yaml:"submit"`
	Log          Log      `yaml:"log"`
}

type Timeouts struct {
	Handshake time.Duration `yaml:"handshake"`
	Write     time.Duration `yaml:"write"`
	// Read bounds how long the echo channel may stay idle. Zero disables it.
	Read   time.Duration `yaml:"read"`
	Submit time.Duration `yaml:"submit"`
}

type Submit struct {
	// Silent keeps submission outcomes out of the UI; they are only logged.
	Silent        bool `yaml:"silent"`
	GuardInFlight bool `yaml:"guard_in_flight"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Page:         DefaultPage,
		Subprotocols: append([]string(nil), transport.DefaultSubprotocols...),
		Timeouts: Timeouts{
			Handshake: 10 * time.Second,
			Write:     10 * time.Second,
			Submit:    10 * time.Second,
		},
		Submit: Submit{
			GuardInFlight: true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %v: %w", path, err, errdefs.ErrInvalidArgument)
			}
		}
	}

	if page, ok := os.LookupEnv(EnvPage); ok && strings.TrimSpace(page) != "" {
		cfg.Page = strings.TrimSpace(page)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := endpoint.Parse(c.Page); err != nil {
		return fmt.Errorf("config: page: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	for name, d := range map[string]time.Duration{
		"handshake": c.Timeouts.Handshake,
		"write":     c.Timeouts.Write,
		"read":      c.Timeouts.Read,
		"submit":    c.Timeouts.Submit,
	} {
		if d < 0 {
			return fmt.Errorf("config: timeouts.%s must not be negative: %w", name, errdefs.ErrInvalidArgument)
		}
	}
	return nil
}

// Endpoints resolves the configured page.
func (c Config) Endpoints() (endpoint.Endpoints, error) {
	return endpoint.Parse(c.Page)
}
