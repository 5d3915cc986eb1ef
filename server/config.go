package server

import (
	"fmt"
	"net/url"
	"time"

	"github.com/zero8dotdev/godspeed-cli/config"
	"github.com/zero8dotdev/godspeed-cli/supervisor"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	// Root is the directory exposed to clients
	Root string

	// Origins allowed to open the event channel; "*" allows any
	AllowedOrigins []string

	// Project collaborators
	TemplatePath string
	ScriptRunner string
	StopGrace    time.Duration

	// WatchEnabled turns on reload-on-change for dev processes
	WatchEnabled bool
}

// FromAppConfig derives the server configuration from the environment configuration
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		Port:           cfg.Port,
		Host:           cfg.Host,
		Env:            cfg.Env,
		Root:           cfg.Root,
		AllowedOrigins: cfg.AllowedOrigins,
		TemplatePath:   cfg.TemplatePath,
		ScriptRunner:   cfg.ScriptRunner,
		StopGrace:      cfg.StopGrace,
		WatchEnabled:   true,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToSupervisorOptions converts server config to the options of a project's dev process
func (c *Config) ToSupervisorOptions(watch supervisor.WatchConfig) supervisor.Options {
	return supervisor.Options{
		Config:    watch,
		StopGrace: c.StopGrace,
		Watch:     c.WatchEnabled,
	}
}

// OriginPatterns returns the allowed origins as host patterns for the websocket handshake
func (c *Config) OriginPatterns() []string {
	var patterns []string
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
