package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zero8dotdev/godspeed-cli/fs"
	"github.com/zero8dotdev/godspeed-cli/log"
	"github.com/zero8dotdev/godspeed-cli/project"
)

// Snapshotter lists a directory tree
type Snapshotter interface {
	Snapshot(ctx context.Context, root string) ([]fs.FileRecord, error)
}

// Scaffolder creates a new project directory inside baseDir
type Scaffolder interface {
	Create(ctx context.Context, baseDir, name string) error
}

// DevProcess is the watch-and-reload process of one project directory
type DevProcess interface {
	Dir() string
	Restart(ctx context.Context) (<-chan error, bool)
	Stop(ctx context.Context) error
	OnRestart(fn func(reason string))
	OnError(fn func(err error))
}

// DevProcessFactory creates the dev process for a project directory
type DevProcessFactory func(dir string) (DevProcess, error)

// Deps are the collaborators shared by all sessions of a bridge
type Deps struct {
	// Root is the directory every session starts in; snapshot paths are relative to it
	Root string

	Snapshotter Snapshotter
	Dispatcher  *Dispatcher
	Scaffolder  Scaffolder
	DevProcess  DevProcessFactory

	// StopTimeout bounds how long closing a session waits for its dev process
	StopTimeout time.Duration
}

// SessionState of a connected client
type SessionState int

const (
	Connected SessionState = iota
	Disconnected
)

func (s SessionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Session is the per-connection synchronization state. It owns the client's
// current project directory and the dev process started for it.
//
// Filesystem operations are expected to be called from one goroutine (the
// transport's read loop); commands and restarts run on their own goroutines
// through Handle. The current directory is guarded by mu.
type Session struct {
	id      string
	deps    Deps
	emitter Emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	dir     string
	state   SessionState
	running Command // foreground command, empty when idle

	devMu sync.Mutex
	dev   DevProcess
}

// NewSession creates a session starting in deps.Root
func NewSession(id string, deps Deps, emitter Emitter) *Session {
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      id,
		deps:    deps,
		emitter: emitter,
		ctx:     ctx,
		cancel:  cancel,
		dir:     deps.Root,
		state:   Connected,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Dir returns the session's current project directory
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// State returns whether the client is still connected
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// moveDir commits to only while the session is still in from
func (s *Session) moveDir(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != from {
		return false
	}
	s.dir = to
	return true
}

func (s *Session) closed() bool {
	return s.State() == Disconnected
}

// emit drops events once the session is closed
func (s *Session) emit(event string, data any) {
	if s.closed() {
		return
	}
	s.emitter.Emit(event, data)
}

// resolve makes p absolute against the session directory
func (s *Session) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Dir(), p)
}

// Open sends the client its starting directory and the snapshot of it
func (s *Session) Open() error {
	root := s.Dir()
	s.emit(EventCwd, root)

	records, err := s.deps.Snapshotter.Snapshot(s.ctx, root)
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Str("dir", root).Msg("failed to read folder structure")
		s.emit(EventError, MsgFolderStructure)
		return err
	}
	s.emit(EventFileList, records)
	return nil
}

// Edit overwrites an existing file. Relative paths resolve against the session directory.
func (s *Session) Edit(path, content string) error {
	target := s.resolve(path)

	if err := fs.WriteExisting(target, []byte(content)); err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("path", target).Msg("failed to save file")
		s.emit(EventFileUpdateError, FileUpdateError{Path: path, Error: err.Error()})
		return err
	}

	log.Debug().Str("session", s.id).Str("path", target).Msg("file saved")
	s.emit(EventFileSaved, s.Dir())
	return nil
}

// RequestSnapshot sends the snapshot of dir without changing the session directory.
// An empty dir means the session directory.
func (s *Session) RequestSnapshot(dir string) error {
	root := s.Dir()
	if dir != "" {
		root = s.resolve(dir)
	}

	records, err := s.deps.Snapshotter.Snapshot(s.ctx, root)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("dir", root).Msg("failed to read folder structure")
		s.emit(EventError, MsgFolderStructure)
		return err
	}
	s.emit(EventFileList, records)
	return nil
}

// Navigate moves the session into the child directory name. The directory only
// changes when its snapshot succeeds.
func (s *Session) Navigate(name string) error {
	if err := validateChildName(name); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("rejected project navigation")
		s.emit(EventError, MsgProjectFolderStructure)
		return err
	}

	base := s.Dir()
	newPath := filepath.Join(base, name)
	records, err := s.deps.Snapshotter.Snapshot(s.ctx, newPath)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("dir", newPath).Msg("failed to read project folder structure")
		s.emit(EventError, MsgProjectFolderStructure)
		return err
	}

	// A command dispatched meanwhile owns the directory now
	if !s.moveDir(base, newPath) {
		err := fmt.Errorf("%q: %w", name, ErrDirChanged)
		log.Warn().Err(err).Str("session", s.id).Str("dir", s.Dir()).Msg("dropped navigation")
		return err
	}

	s.emit(EventFileList, records)
	s.emit(EventCwd, newPath)

	log.Info().Str("session", s.id).Str("dir", newPath).Msg("navigated to project")
	return nil
}

func validateChildName(name string) error {
	if name == ".." || filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, ErrInvalidProjectName)
	}
	return nil
}

// Create scaffolds a new project inside the session directory
func (s *Session) Create(name string) error {
	log.Info().Str("session", s.id).Str("name", name).Msg("create command received")

	if err := s.deps.Scaffolder.Create(s.ctx, s.Dir(), name); err != nil {
		log.Error().Err(err).Str("session", s.id).Str("name", name).Msg("failed to create project")
		s.emit(EventCreateError, err.Error())
		return err
	}
	s.emit(EventCreateSuccess, name)
	return nil
}

// Dispatch runs cmd in the resolved target directory and waits for it to exit.
// The session directory becomes the target before validation, so a failed
// validation still moves the session.
func (s *Session) Dispatch(cmd Command, name string) error {
	if !cmd.Valid() {
		err := fmt.Errorf("%q: %w", cmd, ErrUnknownCommand)
		log.Error().Err(err).Str("session", s.id).Msg("unknown command received")
		s.emit(EventError, err.Error())
		return err
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.running != "" {
		running := s.running
		s.mu.Unlock()
		err := fmt.Errorf("%s: %w (%s)", cmd, ErrCommandRunning, running)
		log.Warn().Err(err).Str("session", s.id).Msg("rejected command")
		s.emit(EventError, err.Error())
		return err
	}
	target := ResolveTarget(s.dir, name)
	s.dir = target
	s.running = cmd
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = ""
		s.mu.Unlock()
	}()

	err := s.deps.Dispatcher.Dispatch(s.ctx, cmd, target)
	switch {
	case errors.Is(err, ErrNotAProject):
		s.emit(EventError, fmt.Sprintf("%s is not a Godspeed Framework project.", target))
		return err
	case s.ctx.Err() != nil:
		// Session closed while the command ran
		return err
	}

	exited := CommandExited{Command: string(cmd), Dir: target}
	if err != nil {
		exited.ExitCode = exitCode(err)
		exited.Error = err.Error()
	}
	s.emit(EventCommandExited, exited)
	return err
}

func exitCode(err error) int {
	var scriptErr *project.ScriptError
	if errors.As(err, &scriptErr) {
		return scriptErr.ExitCode
	}
	return -1
}

// devProcess returns the dev process for the current directory, replacing one
// that was started for a directory the session has since left.
func (s *Session) devProcess() (DevProcess, error) {
	s.devMu.Lock()
	defer s.devMu.Unlock()

	if s.closed() {
		return nil, ErrSessionClosed
	}

	dir := s.Dir()
	if s.dev != nil && s.dev.Dir() == dir {
		return s.dev, nil
	}

	if s.dev != nil {
		old := s.dev
		s.dev = nil
		ctx, cancel := context.WithTimeout(s.ctx, s.deps.StopTimeout)
		if err := old.Stop(ctx); err != nil {
			log.Warn().Err(err).Str("dir", old.Dir()).Msg("failed to stop previous dev process")
		}
		cancel()
	}

	dev, err := s.deps.DevProcess(dir)
	if err != nil {
		return nil, err
	}
	dev.OnRestart(func(reason string) {
		log.Info().Str("session", s.id).Str("reason", reason).Msg("nodemon restarted")
		s.emit(EventNodemonRestarted, MsgNodemonRestarted)
	})
	dev.OnError(func(err error) {
		log.Warn().Err(err).Str("session", s.id).Str("dir", dir).Msg("nodemon failed")
		s.emit(EventError, err.Error())
	})
	s.dev = dev
	return dev, nil
}

// Restart (re)launches the dev process of the current directory and waits
// until it is running. Requests made while a relaunch is pending are folded into it.
func (s *Session) Restart() error {
	log.Info().Str("session", s.id).Msg("restarting nodemon")

	dev, err := s.devProcess()
	if err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("failed to prepare dev process")
		s.emit(EventError, err.Error())
		return err
	}

	done, ok := dev.Restart(s.ctx)
	if !ok {
		return nil
	}
	if err := <-done; err != nil {
		if s.ctx.Err() != nil {
			return err
		}
		s.emit(EventError, err.Error())
		return err
	}
	return nil
}

// StopDev stops the dev process, if one was started
func (s *Session) StopDev() error {
	s.devMu.Lock()
	dev := s.dev
	s.devMu.Unlock()

	if dev != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.deps.StopTimeout)
		defer cancel()
		if err := dev.Stop(ctx); err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("failed to stop dev process")
			s.emit(EventError, err.Error())
			return err
		}
	}
	s.emit(EventNodemonStopped, MsgNodemonStopped)
	return nil
}

// Close disconnects the session. Running commands are interrupted, the dev
// process is stopped and later events are ignored. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	s.mu.Unlock()

	s.cancel()

	s.devMu.Lock()
	dev := s.dev
	s.dev = nil
	s.devMu.Unlock()

	if dev != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.deps.StopTimeout)
		defer cancel()
		if err := dev.Stop(ctx); err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("failed to stop dev process")
		}
	}

	log.Info().Str("session", s.id).Msg("client disconnected")
}

// Wait blocks until handlers started by Handle have returned
func (s *Session) Wait() {
	s.wg.Wait()
}
