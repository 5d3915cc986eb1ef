package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int
	Host string
	Env  string // "development" or "production"

	// LogLevel is applied at startup ("debug", "info", "warn", "error")
	LogLevel string

	// Root is the directory the bridge exposes. Every session starts here.
	Root string

	// Origins allowed to open the event channel (the web client)
	AllowedOrigins []string

	// Project collaborators
	TemplatePath string // directory or archive used by "create"
	ScriptRunner string // binary used to run lifecycle scripts ("npm run <script>")

	// StopGrace is how long a child process gets between SIGINT and SIGKILL
	StopGrace time.Duration
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		cfg = load()
	})
	return cfg
}

// load reads configuration from environment variables
func load() *Config {
	root := getEnv("GODSPEED_ROOT", "")
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		} else {
			root = "."
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	return &Config{
		// Server
		Port: getEnvInt("PORT", 3100),
		Host: getEnv("HOST", "localhost"),
		Env:  getEnv("ENV", "development"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Root: root,

		AllowedOrigins: getEnvList("GODSPEED_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		TemplatePath: getEnv("GODSPEED_TEMPLATE", ""),
		ScriptRunner: getEnv("GODSPEED_RUNNER", "npm"),

		StopGrace: getEnvDuration("GODSPEED_STOP_GRACE", 5*time.Second),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
