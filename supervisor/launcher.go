package supervisor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/zero8dotdev/godspeed-cli/log"
)

// Launcher starts one instance of the dev process
type Launcher interface {
	Launch(ctx context.Context, dir string, cfg WatchConfig) (Process, error)
}

// Process is a running dev process
type Process interface {
	Pid() int
	// Done is closed once the process has exited
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed
	Err() error
	// Stop interrupts the process and kills it if it outlives grace
	Stop(grace time.Duration) error
}

// PtyLauncher runs the dev process under a pseudo-terminal so watch-mode
// tooling keeps its interactive output, and copies that output to Output.
type PtyLauncher struct {
	Output io.Writer
	Env    []string
}

// NewPtyLauncher creates a launcher writing process output to stdout
func NewPtyLauncher() *PtyLauncher {
	return &PtyLauncher{Output: os.Stdout}
}

// Launch starts the configured command in dir
func (l *PtyLauncher) Launch(ctx context.Context, dir string, cfg WatchConfig) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, args := cfg.Command()
	if name == "" {
		return nil, errors.New("empty exec command")
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = l.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	p := &ptyProcess{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
	}

	out := l.Output
	if out == nil {
		out = io.Discard
	}
	// Returns with EIO once the child side closes
	go io.Copy(out, ptmx)

	go p.monitor()

	log.Info().
		Int("pid", cmd.Process.Pid).
		Str("dir", dir).
		Str("exec", cfg.Exec).
		Str("script", cfg.Script).
		Msg("dev process started")

	return p, nil
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan struct{}
	err  error
	once sync.Once
}

func (p *ptyProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Done() <-chan struct{} {
	return p.done
}

func (p *ptyProcess) Err() error {
	<-p.done
	return p.err
}

// monitor waits for the process to exit and releases the terminal
func (p *ptyProcess) monitor() {
	p.err = p.cmd.Wait()
	p.ptmx.Close()
	close(p.done)

	log.Info().
		Int("pid", p.cmd.Process.Pid).
		Int("exitCode", p.cmd.ProcessState.ExitCode()).
		Msg("dev process exited")
}

// Stop sends SIGINT (node tooling handles it, SIGTERM is often ignored),
// waits up to grace and then falls back to SIGKILL.
func (p *ptyProcess) Stop(grace time.Duration) error {
	var stopErr error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
			// Process might already be dead, try Kill anyway
			p.cmd.Process.Kill()
		} else {
			select {
			case <-p.done:
				return
			case <-time.After(grace):
				log.Warn().Int("pid", p.cmd.Process.Pid).Msg("dev process didn't exit gracefully, sending SIGKILL")
				if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					stopErr = err
				}
			}
		}
	})
	<-p.done
	return stopErr
}
