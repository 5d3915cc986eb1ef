package api

import (
	"github.com/gin-gonic/gin"
	"github.com/zero8dotdev/godspeed-cli/server"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// Event channel used by the web client
	r.GET(server.SocketPath, h.Socket)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/snapshot", h.Snapshot)
	}

	// Not served; keeps browser lookups out of the logs
	r.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(404)
	})
}
