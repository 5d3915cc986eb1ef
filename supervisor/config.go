package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zero8dotdev/godspeed-cli/fs"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the optional per-project override, read from the project directory
const ConfigFile = ".bridge.yaml"

// WatchConfig describes what the dev process runs and which changes reload it
type WatchConfig struct {
	Script string        `yaml:"script"`
	Paths  []string      `yaml:"paths"`
	Ext    string        `yaml:"ext"`
	Exec   string        `yaml:"exec"`
	Delay  time.Duration `yaml:"delay"`
}

type fileConfig struct {
	Watch WatchConfig `yaml:"watch"`
}

// DefaultWatchConfig returns the configuration godspeed projects are generated with
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Script: "./src/index.ts",
		Paths:  []string{"src"},
		Ext:    "ts,js,yaml,json",
		Exec:   "ts-node -r dotenv",
		Delay:  fs.DefaultDebounceDelay,
	}
}

// LoadWatchConfig reads dir/.bridge.yaml on top of the defaults.
// A missing file is not an error.
func LoadWatchConfig(dir string) (WatchConfig, error) {
	cfg := DefaultWatchConfig()

	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	return ParseWatchConfig(data)
}

// ParseWatchConfig parses the YAML form of a watch override. Fields left out
// keep their default values.
func ParseWatchConfig(data []byte) (WatchConfig, error) {
	file := fileConfig{Watch: DefaultWatchConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return DefaultWatchConfig(), fmt.Errorf("parse %s: %w", ConfigFile, err)
	}

	cfg := file.Watch
	if err := cfg.Validate(); err != nil {
		return DefaultWatchConfig(), err
	}
	return cfg, nil
}

// Validate checks that the configuration can be launched and matched
func (c WatchConfig) Validate() error {
	if strings.TrimSpace(c.Exec) == "" {
		return fmt.Errorf("%s: watch.exec is empty", ConfigFile)
	}
	if len(c.extensions()) == 0 {
		return fmt.Errorf("%s: watch.ext is empty", ConfigFile)
	}
	if !doublestar.ValidatePattern(c.Pattern()) {
		return fmt.Errorf("%s: invalid extension list %q", ConfigFile, c.Ext)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%s: watch.delay is negative", ConfigFile)
	}
	return nil
}

func (c WatchConfig) extensions() []string {
	var exts []string
	for _, ext := range strings.Split(c.Ext, ",") {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// Pattern returns the doublestar glob changed files are matched against
func (c WatchConfig) Pattern() string {
	exts := c.extensions()
	if len(exts) == 1 {
		return "**/*." + exts[0]
	}
	return "**/*.{" + strings.Join(exts, ",") + "}"
}

// Matches reports whether relPath (slash separated, relative to a watch root) should reload the process
func (c WatchConfig) Matches(relPath string) bool {
	ok, err := doublestar.Match(c.Pattern(), path.Clean(relPath))
	return err == nil && ok
}

// Command returns the executable and arguments that start the dev process
func (c WatchConfig) Command() (string, []string) {
	fields := strings.Fields(c.Exec)
	if len(fields) == 0 {
		return "", nil
	}
	args := append(fields[1:], c.Script)
	return fields[0], args
}
