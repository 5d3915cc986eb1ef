package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/log"
)

const (
	// File contents travel inside frames, so the default 32 KiB limit is too small
	maxMessageSize = 64 << 20
	pingInterval   = 30 * time.Second
	sendBuffer     = 256
)

// socketEmitter queues outbound envelopes for the connection's writer goroutine
type socketEmitter struct {
	ctx  context.Context
	send chan<- []byte
}

func (e socketEmitter) Emit(event string, data any) {
	env, err := bridge.NewEnvelope(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to encode envelope")
		return
	}

	select {
	case e.send <- frame:
	case <-e.ctx.Done():
	}
}

// Socket handles the event channel of one web client.
// Each connection gets its own session, which is closed when the socket goes away.
func (h *Handlers) Socket(c *gin.Context) {
	// Get the underlying http.ResponseWriter from Gin's wrapper
	// Gin's ResponseWriter wraps the original, and coder/websocket needs direct access for hijacking
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	log.MarkHijacked(c)

	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}
	patterns := h.server.Config().OriginPatterns()
	if len(patterns) == 1 && patterns[0] == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = patterns
	}

	conn, err := websocket.Accept(w, c.Request, opts)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxMessageSize)

	// Mark response as handled to prevent Gin from writing headers
	c.Abort()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Server shutdown closes the socket too
	go func() {
		select {
		case <-h.server.ShutdownContext().Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	send := make(chan []byte, sendBuffer)
	session := h.server.OpenSession(socketEmitter{ctx: ctx, send: send})
	defer h.server.CloseSession(session)

	// Writer goroutine: the only place frames are written
	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-send:
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					log.Debug().Err(err).Str("session", session.ID()).Msg("WebSocket write failed")
					cancel()
					return
				}
			}
		}
	}()

	// Ping goroutine to keep the connection alive
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Ping(ctx); err != nil {
					log.Debug().Err(err).Str("session", session.ID()).Msg("WebSocket ping failed")
					cancel()
					return
				}
			}
		}
	}()

	if err := session.Open(); err != nil {
		log.Warn().Err(err).Str("session", session.ID()).Msg("initial snapshot failed")
	}

	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusGoingAway ||
				status == websocket.StatusNormalClosure ||
				status == websocket.StatusNoStatusRcvd ||
				ctx.Err() != nil {
				log.Debug().Str("session", session.ID()).Msg("WebSocket closed")
			} else {
				log.Info().Err(err).Str("session", session.ID()).Msg("WebSocket read error")
			}
			break
		}

		if msgType != websocket.MessageText {
			log.Debug().Str("session", session.ID()).Msg("ignoring binary frame")
			continue
		}

		var env bridge.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			log.Warn().Err(err).Str("session", session.ID()).Msg("malformed frame")
			socketEmitter{ctx: ctx, send: send}.Emit(bridge.EventError, bridge.ErrMalformedPayload.Error())
			continue
		}

		session.Handle(env)

		if session.State() == bridge.Disconnected {
			break
		}
	}

	cancel()
	<-sendDone
	<-pingDone
}
