package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zero8dotdev/godspeed-cli/fs"
	"github.com/zero8dotdev/godspeed-cli/log"
)

// State of the supervised dev process
type State int

const (
	Stopped State = iota
	Starting
	Running
	Restarting
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	default:
		return "unknown"
	}
}

var (
	// ErrLaunch wraps every failure to start the dev process
	ErrLaunch = errors.New("failed to launch dev process")

	// ErrStopped is delivered to a pending restart when Stop wins the race
	ErrStopped = errors.New("supervisor stopped")

	// ErrExited is reported to error listeners when the process dies on its own
	ErrExited = errors.New("dev process exited")
)

// Restart reasons passed to listeners
const (
	ReasonRequested = "restart requested"
	ReasonChanged   = "files changed"
)

// Options configures a Supervisor
type Options struct {
	Launcher  Launcher
	Config    WatchConfig
	StopGrace time.Duration

	// Watch enables reloading when files under Config.Paths change
	Watch bool
}

// Supervisor keeps one dev process for a project directory alive and
// relaunches it on request or when watched files change.
//
// State moves Stopped → Starting → Running → Restarting → Starting → Running,
// and any state → Stopped on Stop, launch failure or process exit. Restart
// requests that arrive while a relaunch is pending are coalesced into it.
type Supervisor struct {
	dir  string
	opts Options

	mu        sync.Mutex
	state     State
	proc      Process
	watchers  []*fs.Watcher
	listeners []func(reason string)
	errorFns  []func(err error)
	gen       uint64 // bumped by Stop so an in-flight relaunch can tell it lost
}

// New creates a stopped supervisor for dir
func New(dir string, opts Options) *Supervisor {
	if opts.Launcher == nil {
		opts.Launcher = NewPtyLauncher()
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.Config.Exec == "" {
		opts.Config = DefaultWatchConfig()
	}
	return &Supervisor{
		dir:  dir,
		opts: opts,
	}
}

// Dir returns the project directory the process runs in
func (s *Supervisor) Dir() string {
	return s.dir
}

// State returns the current state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnRestart registers fn to be called after every successful relaunch.
// fn runs on the supervisor's goroutine and must not block.
func (s *Supervisor) OnRestart(fn func(reason string)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// OnError registers fn to be told about failures nobody is waiting on: a
// relaunch triggered by a file change that fails, or the process exiting on
// its own. Failures of Restart calls go to their channel only.
func (s *Supervisor) OnError(fn func(err error)) {
	s.mu.Lock()
	s.errorFns = append(s.errorFns, fn)
	s.mu.Unlock()
}

func (s *Supervisor) notifyError(err error) {
	s.mu.Lock()
	fns := make([]func(error), len(s.errorFns))
	copy(fns, s.errorFns)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// Restart stops the running process (if any) and launches a new one.
// The returned channel receives nil once the new process is running, or the
// launch error. When a relaunch is already pending the request is coalesced
// and Restart returns (nil, false).
func (s *Supervisor) Restart(ctx context.Context) (<-chan error, bool) {
	return s.restart(ctx, ReasonRequested)
}

func (s *Supervisor) restart(ctx context.Context, reason string) (<-chan error, bool) {
	s.mu.Lock()
	switch s.state {
	case Starting, Restarting:
		s.mu.Unlock()
		log.Debug().Str("dir", s.dir).Str("reason", reason).Msg("restart already pending, coalescing")
		return nil, false
	case Running:
		s.state = Restarting
	default:
		s.state = Starting
	}
	old := s.proc
	s.proc = nil
	gen := s.gen
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.relaunch(ctx, old, gen, reason)
	}()
	return done, true
}

func (s *Supervisor) relaunch(ctx context.Context, old Process, gen uint64, reason string) error {
	if old != nil {
		log.Info().Str("dir", s.dir).Str("reason", reason).Int("pid", old.Pid()).Msg("restarting dev process")
		if err := old.Stop(s.opts.StopGrace); err != nil {
			log.Warn().Err(err).Int("pid", old.Pid()).Msg("failed to stop dev process")
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrStopped
	}
	s.state = Starting
	s.mu.Unlock()

	proc, err := s.opts.Launcher.Launch(ctx, s.dir, s.opts.Config)
	if err != nil {
		s.mu.Lock()
		current := s.gen == gen
		if current {
			s.state = Stopped
		}
		s.mu.Unlock()
		log.Error().Err(err).Str("dir", s.dir).Msg("failed to launch dev process")
		err = fmt.Errorf("%w: %w", ErrLaunch, err)
		if current && reason == ReasonChanged {
			s.notifyError(err)
		}
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Stop ran while we were launching
		s.mu.Unlock()
		proc.Stop(s.opts.StopGrace)
		return ErrStopped
	}
	s.proc = proc
	s.state = Running
	needWatch := s.opts.Watch && s.watchers == nil
	listeners := make([]func(string), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	go s.monitor(proc)

	if needWatch {
		s.startWatching(gen)
	}

	for _, fn := range listeners {
		fn(reason)
	}
	return nil
}

// monitor moves the supervisor to Stopped when the process dies on its own.
// Watching continues so the next change brings it back.
func (s *Supervisor) monitor(proc Process) {
	<-proc.Done()

	s.mu.Lock()
	if s.proc != proc {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	s.state = Stopped
	s.mu.Unlock()

	log.Warn().Err(proc.Err()).Str("dir", s.dir).Msg("dev process exited, waiting for changes")
	err := ErrExited
	if cause := proc.Err(); cause != nil {
		err = fmt.Errorf("%w: %w", ErrExited, cause)
	}
	s.notifyError(err)
}

func (s *Supervisor) startWatching(gen uint64) {
	var watchers []*fs.Watcher
	for _, p := range s.opts.Config.Paths {
		root := filepath.Join(s.dir, p)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			log.Warn().Str("path", root).Msg("watch path is not a directory, skipping")
			continue
		}

		w := fs.NewWatcher(fs.WatcherConfig{
			Root:     root,
			Delay:    s.opts.Config.Delay,
			Match:    s.opts.Config.Matches,
			OnChange: s.onChange,
		})
		if err := w.Start(); err != nil {
			log.Warn().Err(err).Str("path", root).Msg("failed to watch path")
			continue
		}
		watchers = append(watchers, w)
	}

	s.mu.Lock()
	if s.gen != gen || s.watchers != nil {
		s.mu.Unlock()
		for _, w := range watchers {
			w.Stop()
		}
		return
	}
	s.watchers = watchers
	if s.watchers == nil {
		// Remember that watching was attempted
		s.watchers = []*fs.Watcher{}
	}
	s.mu.Unlock()

	log.Info().
		Str("dir", s.dir).
		Strs("paths", s.opts.Config.Paths).
		Str("pattern", s.opts.Config.Pattern()).
		Msg("watching for changes")
}

func (s *Supervisor) onChange(batch []fs.Change) {
	paths := make([]string, len(batch))
	for i, c := range batch {
		paths[i] = c.Path
	}
	log.Info().Strs("changed", paths).Str("dir", s.dir).Msg("files changed")

	s.restart(context.Background(), ReasonChanged)
}

// Stop terminates the process and stops watching. The supervisor can be
// restarted afterwards. Returns ctx.Err() if ctx ends before the process exits.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	proc := s.proc
	watchers := s.watchers
	s.proc = nil
	s.watchers = nil
	s.state = Stopped
	s.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}

	if proc == nil {
		return nil
	}

	stopped := make(chan error, 1)
	go func() {
		stopped <- proc.Stop(s.opts.StopGrace)
	}()

	select {
	case err := <-stopped:
		log.Info().Str("dir", s.dir).Msg("dev process stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
