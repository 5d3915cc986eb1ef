package bridge

import (
	"errors"
	"fmt"

	"github.com/zero8dotdev/godspeed-cli/log"
)

type handlerFunc func(s *Session, env Envelope) error

type handler struct {
	fn handlerFunc
	// async handlers wait on processes and must not hold up the read loop
	async bool
}

var handlers = map[string]handler{
	EventFileUpdate:             {fn: handleFileUpdate},
	EventRequestFolderStructure: {fn: handleRequestFolderStructure},
	EventGoToProject:            {fn: handleGoToProject},
	EventCreate:                 {fn: handleCreate},
	EventServe:                  {fn: commandHandler(CommandServe), async: true},
	EventDev:                    {fn: commandHandler(CommandDev), async: true},
	EventBuild:                  {fn: commandHandler(CommandBuild), async: true},
	EventClean:                  {fn: commandHandler(CommandClean), async: true},
	EventRestartNodemon:         {fn: func(s *Session, _ Envelope) error { return s.Restart() }, async: true},
	EventStopNodemon:            {fn: func(s *Session, _ Envelope) error { return s.StopDev() }, async: true},
	EventDisconnect:             {fn: func(s *Session, _ Envelope) error { s.Close(); return nil }},
}

// Handle routes one inbound event to its operation. Filesystem events run on
// the caller's goroutine; commands and restarts run in the background.
// Events after Close are ignored.
func (s *Session) Handle(env Envelope) {
	if s.closed() {
		log.Debug().Str("session", s.id).Str("event", env.Event).Msg("ignoring event on closed session")
		return
	}

	h, ok := handlers[env.Event]
	if !ok {
		log.Warn().Str("session", s.id).Str("event", env.Event).Msg("unknown event")
		s.emit(EventError, fmt.Sprintf("unknown event %q", env.Event))
		return
	}

	if !h.async {
		s.run(h, env)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(h, env)
	}()
}

func (s *Session) run(h handler, env Envelope) {
	err := h.fn(s, env)
	if err == nil {
		return
	}
	// Operations report their own failures; only payload errors are answered here
	if errors.Is(err, ErrMalformedPayload) {
		log.Warn().Err(err).Str("session", s.id).Msg("malformed event")
		s.emit(EventError, err.Error())
	}
}

func handleFileUpdate(s *Session, env Envelope) error {
	var update FileUpdate
	if err := env.Decode(&update); err != nil {
		return err
	}
	return s.Edit(update.Path, update.Content)
}

func handleRequestFolderStructure(s *Session, env Envelope) error {
	dir, err := env.DecodeOptionalString()
	if err != nil {
		return err
	}
	return s.RequestSnapshot(dir)
}

func handleGoToProject(s *Session, env Envelope) error {
	var name string
	if err := env.Decode(&name); err != nil {
		return err
	}
	return s.Navigate(name)
}

func handleCreate(s *Session, env Envelope) error {
	var name string
	if err := env.Decode(&name); err != nil {
		return err
	}
	return s.Create(name)
}

func commandHandler(cmd Command) handlerFunc {
	return func(s *Session, env Envelope) error {
		name, err := env.DecodeOptionalString()
		if err != nil {
			return err
		}
		return s.Dispatch(cmd, name)
	}
}
