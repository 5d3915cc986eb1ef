package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zero8dotdev/godspeed-cli/log"
	"github.com/zero8dotdev/godspeed-cli/project"
)

// Command is a project lifecycle script the client can run
type Command string

const (
	CommandServe Command = "serve"
	CommandDev   Command = "dev"
	CommandBuild Command = "build"
	CommandClean Command = "clean"
)

// Script returns the npm script the command runs
func (c Command) Script() string {
	return string(c)
}

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	switch c {
	case CommandServe, CommandDev, CommandBuild, CommandClean:
		return true
	}
	return false
}

// Validator decides whether a directory is a project
type Validator interface {
	IsProject(dir string) bool
}

// ScriptRunner runs a lifecycle script in a directory and waits for it to exit
type ScriptRunner interface {
	RunScript(ctx context.Context, script, dir string, env []string) error
}

// Dispatcher validates a target directory and runs lifecycle scripts in it
type Dispatcher struct {
	validator Validator
	runner    ScriptRunner
	environ   func() []string
}

// NewDispatcher creates a dispatcher passing the bridge's environment to every script
func NewDispatcher(validator Validator, runner ScriptRunner) *Dispatcher {
	return &Dispatcher{
		validator: validator,
		runner:    runner,
		environ:   os.Environ,
	}
}

// ResolveTarget returns dir/name when name is non-empty and names an existing
// directory directly inside dir, otherwise dir.
func ResolveTarget(dir, name string) string {
	if name == "" {
		return dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to read directory while resolving project")
		return dir
	}
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() == name {
			return filepath.Join(dir, name)
		}
	}
	return dir
}

// Env returns the environment a command runs with. serve always runs with
// NODE_ENV=production whatever the bridge inherited.
func (d *Dispatcher) Env(cmd Command) []string {
	base := d.environ()
	if cmd == CommandServe {
		return project.MergeEnv(base, map[string]string{"NODE_ENV": "production"})
	}
	return base
}

// Dispatch validates target and runs cmd in it, blocking until the script exits
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, target string) error {
	if !cmd.Valid() {
		log.Error().Str("command", string(cmd)).Msg("unknown command received")
		return fmt.Errorf("%q: %w", cmd, ErrUnknownCommand)
	}

	if !d.validator.IsProject(target) {
		log.Error().Str("dir", target).Msg("not a godspeed project")
		return fmt.Errorf("%s: %w", target, ErrNotAProject)
	}

	log.Info().Str("command", string(cmd)).Str("dir", target).Msg("command received")
	return d.runner.RunScript(ctx, cmd.Script(), target, d.Env(cmd))
}
