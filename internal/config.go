package internal

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/portlight/internal/discovery"
	"github.com/starford/portlight/internal/monitor"
	"github.com/starford/portlight/internal/probe"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Duration is a time.Duration that decodes from strings such as "3s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Scan  ScanConfig        `yaml:"scan"`
	Probe ProbeConfig       `yaml:"probe"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	if err := c.Probe.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns HTTP server address. An empty host listens on all interfaces.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ScanConfig controls the discovery loop.
type ScanConfig struct {
	Interval    Duration `yaml:"interval"`
	KillRecheck Duration `yaml:"kill_recheck"`
	// Browsers are lowercase substrings matched against process names to
	// recognise browser connections.
	Browsers []string `yaml:"browsers"`
}

// Validate validates the scan configuration.
func (c *ScanConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(Duration(500*time.Millisecond))),
		validation.Field(&c.KillRecheck, validation.Required,
			validation.Min(Duration(50*time.Millisecond)), validation.Max(Duration(10*time.Second))),
		validation.Field(&c.Browsers, validation.Required, validation.Each(validation.Required)),
	)
}

// ProbeConfig controls page title probing.
type ProbeConfig struct {
	Timeout Duration `yaml:"timeout"`
	Host    string   `yaml:"host"`
}

// Validate validates the probe configuration.
func (c *ProbeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required,
			validation.Min(Duration(100*time.Millisecond)), validation.Max(Duration(5*time.Second))),
		validation.Field(&c.Host, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 7780,
			},
		},
		Scan: ScanConfig{
			Interval:    Duration(monitor.DefaultInterval),
			KillRecheck: Duration(monitor.DefaultKillRecheck),
			Browsers:    append([]string(nil), discovery.DefaultBrowsers...),
		},
		Probe: ProbeConfig{
			Timeout: Duration(probe.DefaultTimeout),
			Host:    monitor.DefaultProbeHost,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
