// Package client is a small event-channel client, used by the attach command
// and by tests that drive a bridge end to end.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/server"
)

// Client is one connection to a bridge
type Client struct {
	conn *websocket.Conn

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// SocketURL turns a bridge base URL (http://host:port) into its event-channel URL
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + server.SocketPath
	return u.String(), nil
}

// Dial connects to the bridge at base. origin is sent as the Origin header when set.
func Dial(ctx context.Context, base, origin string) (*Client, error) {
	wsURL, err := SocketURL(base)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Client{conn: conn}, nil
}

// Emit sends one event
func (c *Client) Emit(event string, data any) error {
	env, err := bridge.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Next reads the next event. The context deadline, if any, bounds the read;
// a timed out connection cannot be read again.
func (c *Client) Next(ctx context.Context) (bridge.Envelope, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return bridge.Envelope{}, err
	}

	var env bridge.Envelope
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return bridge.Envelope{}, err
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return bridge.Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	return env, nil
}

// Expect reads events until one named event arrives, discarding the others
func (c *Client) Expect(ctx context.Context, event string) (bridge.Envelope, error) {
	for {
		env, err := c.Next(ctx)
		if err != nil {
			return bridge.Envelope{}, err
		}
		if env.Event == event {
			return env, nil
		}
	}
}

// Close announces the disconnect and closes the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(time.Second)
	if env, err := bridge.NewEnvelope(bridge.EventDisconnect, nil); err == nil {
		c.conn.SetWriteDeadline(deadline)
		c.conn.WriteJSON(env)
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// IsClosed reports whether err means the bridge closed the connection
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
