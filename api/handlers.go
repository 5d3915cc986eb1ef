package api

import "github.com/zero8dotdev/godspeed-cli/server"

// Handlers serves the bridge over HTTP: the websocket event channel a web
// client drives its session through, and read-only health and snapshot
// endpoints scoped to the exposed root.
type Handlers struct {
	server *server.Server

	// root is fixed for the server's lifetime
	root string
}

// NewHandlers binds the handlers to srv's session registry and exposed root
func NewHandlers(srv *server.Server) *Handlers {
	return &Handlers{server: srv, root: srv.Config().Root}
}
