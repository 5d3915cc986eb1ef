package log

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ContextKeyHijacked marks a request whose connection was taken over by a websocket.
const ContextKeyHijacked = "connection_hijacked"

// MarkHijacked must be called by websocket handlers before the upgrade so the
// request logger never touches the hijacked writer.
func MarkHijacked(c *gin.Context) {
	c.Set(ContextKeyHijacked, true)
}

// IsHijacked reports whether MarkHijacked was called for this request.
func IsHijacked(c *gin.Context) bool {
	hijacked, exists := c.Get(ContextKeyHijacked)
	return exists && hijacked.(bool)
}

// GinLogger returns a Gin middleware that logs requests using zerolog.
// Paths listed in quiet are logged at debug level when they succeed.
func GinLogger(quiet ...string) gin.HandlerFunc {
	quietPaths := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		quietPaths[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		// Touching c.Writer after an upgrade makes net/http complain about
		// WriteHeader on a hijacked connection.
		if IsHijacked(c) {
			Debug().
				Str("path", path).
				Str("ip", c.ClientIP()).
				Dur("duration", time.Since(start)).
				Msg("websocket closed")
			return
		}

		status := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = Error()
		case status >= 400:
			event = Warn()
		case quietPaths[c.Request.URL.Path]:
			event = Debug()
		default:
			event = Info()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP())

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			event.Str("error", errorMessage)
		}

		event.Msg("request")
	}
}
