package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/zero8dotdev/godspeed-cli/log"
)

// ErrScriptFailed is matched by every ScriptError
var ErrScriptFailed = errors.New("script failed")

// ScriptError reports a lifecycle script that could not start or exited non-zero
type ScriptError struct {
	Script   string
	Dir      string
	ExitCode int // -1 when the process never started or was killed by a signal
	Cause    error
}

func (e *ScriptError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("script %q in %s exited with code %d", e.Script, e.Dir, e.ExitCode)
	}
	return fmt.Sprintf("script %q in %s: %v", e.Script, e.Dir, e.Cause)
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptFailed
}

// Runner runs npm-style lifecycle scripts ("<bin> run <script>") with inherited stdio
type Runner struct {
	Bin       string
	StopGrace time.Duration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a runner using bin (typically "npm") wired to the process stdio
func NewRunner(bin string, stopGrace time.Duration) *Runner {
	return &Runner{
		Bin:       bin,
		StopGrace: stopGrace,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// RunScript runs script in dir and waits for it to exit.
// env is the complete child environment. Cancelling ctx interrupts the script
// with SIGINT and kills it if it is still alive after the stop grace period.
func (r *Runner) RunScript(ctx context.Context, script, dir string, env []string) error {
	cmd := exec.CommandContext(ctx, r.Bin, "run", script)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	// npm forwards SIGINT to the script; SIGKILL would orphan its children
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
	cmd.WaitDelay = r.StopGrace

	log.Info().Str("script", script).Str("dir", dir).Msg("running script")

	if err := cmd.Start(); err != nil {
		return &ScriptError{Script: script, Dir: dir, ExitCode: -1, Cause: err}
	}

	startTime := time.Now()
	err := cmd.Wait()

	exitCode := cmd.ProcessState.ExitCode()
	log.Info().
		Str("script", script).
		Str("dir", dir).
		Int("exitCode", exitCode).
		Dur("duration", time.Since(startTime)).
		Msg("script exited")

	if err != nil {
		return &ScriptError{Script: script, Dir: dir, ExitCode: exitCode, Cause: err}
	}
	return nil
}

// MergeEnv returns base with overlay applied. Keys present in overlay replace
// any inherited value; other entries keep their order.
func MergeEnv(base []string, overlay map[string]string) []string {
	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overlay[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overlay))
	for key := range overlay {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+overlay[key])
	}
	return env
}
