package internal

import (
	"github.com/starford/portlight/internal/discovery"
	"github.com/starford/portlight/internal/monitor"
)

// Mode selects the presentation surface.
type Mode int

// Modes.
const (
	ModeServe Mode = iota // HTTP API + SSE
	ModeMCP               // MCP over stdio
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	mode       Mode
	version    string
	system     discovery.System
	prober     monitor.Prober
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath enables hot reload of the given config file.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithMode selects HTTP or MCP serving.
func WithMode(m Mode) Option {
	return func(a *application) {
		a.mode = m
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithSystem replaces the host OS surface.
func WithSystem(sys discovery.System) Option {
	return func(a *application) {
		a.system = sys
	}
}

// WithProber replaces the HTTP title prober.
func WithProber(p monitor.Prober) Option {
	return func(a *application) {
		a.prober = p
	}
}
