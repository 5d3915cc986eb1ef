package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/fs"
	"github.com/zero8dotdev/godspeed-cli/log"
	"github.com/zero8dotdev/godspeed-cli/project"
	"github.com/zero8dotdev/godspeed-cli/supervisor"
)

// SocketPath is the websocket endpoint of the event channel
const SocketPath = "/socket"

// Server owns and coordinates all application components
type Server struct {
	cfg *Config

	// Components (owned by server)
	snapshotter *fs.Snapshotter
	dispatcher  *bridge.Dispatcher
	scaffolder  *project.Scaffolder

	// Connected clients
	mu       sync.Mutex
	sessions map[string]*bridge.Session

	// Shutdown context - cancelled when server is shutting down.
	// WebSocket handlers listen to this.
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// HTTP
	router   *gin.Engine
	http     *http.Server
	listener net.Listener
}

// New creates a new server with all components initialized
func New(cfg *Config) (*Server, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid root %s: %w", cfg.Root, fs.ErrNotADirectory)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:            cfg,
		sessions:       make(map[string]*bridge.Session),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	log.Info().Str("root", cfg.Root).Msg("initializing bridge components")
	s.snapshotter = fs.NewSnapshotter(cfg.Root)
	s.dispatcher = bridge.NewDispatcher(
		project.Validator{},
		project.NewRunner(cfg.ScriptRunner, cfg.StopGrace),
	)
	s.scaffolder = project.NewScaffolder(cfg.TemplatePath)

	s.setupRouter()

	log.Info().Msg("server initialized successfully")
	return s, nil
}

// setupRouter creates and configures the Gin router
func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(log.GinLogger("/api/health"))
	s.router.Use(s.corsMiddleware())

	// Gzip compression (skip the WebSocket endpoint)
	s.router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		SocketPath,
	})))

	s.router.SetTrustedProxies(nil)

	// Note: API routes are set up by calling code to avoid import cycles
}

// corsMiddleware allows the web client origins
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowedOrigins := make(map[string]bool, len(s.cfg.AllowedOrigins))
	allowAny := false
	for _, origin := range s.cfg.AllowedOrigins {
		if origin == "*" {
			allowAny = true
		}
		allowedOrigins[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" && (allowAny || allowedOrigins[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Deps returns the collaborators a new session is built from
func (s *Server) Deps() bridge.Deps {
	return bridge.Deps{
		Root:        s.cfg.Root,
		Snapshotter: s.snapshotter,
		Dispatcher:  s.dispatcher,
		Scaffolder:  s.scaffolder,
		DevProcess:  s.newDevProcess,
		StopTimeout: s.cfg.StopGrace + 5*time.Second,
	}
}

func (s *Server) newDevProcess(dir string) (bridge.DevProcess, error) {
	watch, err := supervisor.LoadWatchConfig(dir)
	if err != nil {
		return nil, err
	}
	return supervisor.New(dir, s.cfg.ToSupervisorOptions(watch)), nil
}

// OpenSession registers a session for a newly connected client
func (s *Server) OpenSession(emitter bridge.Emitter) *bridge.Session {
	session := bridge.NewSession(uuid.New().String(), s.Deps(), emitter)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()

	log.Info().Str("session", session.ID()).Msg("client connected")
	if count > 1 {
		log.Warn().Int("sessions", count).Msg("more than one client connected, concurrent edits are not coordinated")
	}
	return session
}

// CloseSession disconnects and forgets a session
func (s *Server) CloseSession(session *bridge.Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID())
	s.mu.Unlock()

	session.Close()
}

// SessionCount returns the number of connected clients
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Listen binds the HTTP listener without serving, so callers learn the
// actual address (port 0 picks a free port).
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:  s.router,
		ErrorLog: log.StdErrorLogger(), // Route Go's internal HTTP errors through zerolog
	}
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}

// Start serves HTTP until Shutdown. It listens first if Listen was not called;
// callers that shut down concurrently must call Listen themselves.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	log.Info().
		Str("addr", s.Addr()).
		Str("env", s.cfg.Env).
		Msg("HTTP server starting")

	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	// Signal WebSocket handlers to stop before closing the HTTP server
	s.shutdownCancel()

	s.mu.Lock()
	sessions := make([]*bridge.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*bridge.Session)
	s.mu.Unlock()

	// Stops dev processes and interrupts running commands
	for _, session := range sessions {
		session.Close()
	}

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
			return err
		}
	}
	if s.listener != nil {
		// Not tracked by http.Server when Start never ran
		s.listener.Close()
	}

	log.Info().Msg("server shutdown complete")
	return nil
}

// Component accessors for API handlers
func (s *Server) Config() *Config                  { return s.cfg }
func (s *Server) Snapshotter() *fs.Snapshotter     { return s.snapshotter }
func (s *Server) Router() *gin.Engine              { return s.router }
func (s *Server) ShutdownContext() context.Context { return s.shutdownCtx }
