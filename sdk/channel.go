// Package revlive is the Go client for the revlive relay. LiveChannel speaks
// the relay's WebSocket protocol and plugs into turn.Controller as its
// Channel.
package revlive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/revlive/pkg/core/turn"
	"github.com/vango-go/revlive/pkg/gateway/live/protocol"
)

const (
	defaultConnectTimeout = 15 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultEventBuffer    = 64

	// closedEventTimeout bounds how long a dropped connection waits for room
	// to report itself when nobody is draining Events.
	closedEventTimeout = 5 * time.Second
)

// ChannelConfig configures a LiveChannel.
type ChannelConfig struct {
	// URL of the relay. http(s) schemes are rewritten to ws(s).
	URL          string
	Header       http.Header
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
	WriteTimeout time.Duration
	EventBuffer  int
}

// LiveChannel is a turn.Channel over one relay WebSocket at a time. Each Open
// replaces the previous connection. Events from a replaced or deliberately
// closed connection are discarded, so only an unexpected drop of the current
// connection produces turn.ChannelClosedEvent.
type LiveChannel struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	logger       *slog.Logger
	writeTimeout time.Duration

	events        chan turn.Event
	closedTimeout time.Duration
	readers       sync.WaitGroup

	mu   sync.Mutex
	conn *liveConn
}

type liveConn struct {
	ws      *websocket.Conn
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

func (c *liveConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func NewLiveChannel(cfg ChannelConfig) (*LiveChannel, error) {
	wsURL, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &LiveChannel{
		url:           wsURL,
		header:        cfg.Header,
		dialer:        cfg.Dialer,
		logger:        cfg.Logger,
		writeTimeout:  cfg.WriteTimeout,
		events:        make(chan turn.Event, cfg.EventBuffer),
		closedTimeout: closedEventTimeout,
	}, nil
}

func websocketURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("relay url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("relay url scheme %q is not supported", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", raw)
	}
	return u.String(), nil
}

// URL returns the WebSocket URL the channel dials.
func (c *LiveChannel) URL() string { return c.url }

// Events yields relay messages mapped to controller events.
func (c *LiveChannel) Events() <-chan turn.Event { return c.events }

// Open dials the relay. A connection that is already open is closed first
// without reporting a ChannelClosedEvent.
func (c *LiveChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()
	if old != nil {
		old.shutdown()
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}
	ws, resp, err := c.dialer.DialContext(dialCtx, c.url, c.header)
	if err != nil {
		te := &TransportError{Op: "GET", URL: c.url, Err: err}
		if resp != nil {
			te.Status = resp.StatusCode
		}
		return te
	}

	conn := &liveConn{ws: ws, done: make(chan struct{})}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.readers.Add(1)
	go c.readLoop(conn)
	return nil
}

// Send transmits one user turn numbered turnID.
func (c *LiveChannel) Send(ctx context.Context, turnID uint64, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrChannelClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send turn: %w", err)
	}
	if err := conn.ws.WriteJSON(protocol.NewNumberedTextMessage(turnID, text)); err != nil {
		return fmt.Errorf("send turn: %w", err)
	}
	return nil
}

// Close closes the current connection. It is safe to call when closed.
func (c *LiveChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.shutdown()
	}
	return nil
}

func (c *LiveChannel) current(conn *liveConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

func (c *LiveChannel) readLoop(conn *liveConn) {
	defer c.readers.Done()
	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if !current {
				return
			}
			conn.shutdown()
			var closeErr error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				closeErr = err
			}
			c.logger.Info("relay connection closed", "error", closeErr)
			c.emitClosed(turn.ChannelClosedEvent{Err: closeErr})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		ev := decodeEvent(data)
		if !c.current(conn) {
			return
		}
		select {
		case c.events <- ev:
		case <-conn.done:
			return
		}
	}
}

// emitClosed reports a dropped connection. conn.done is already closed at
// this point, so the send is bounded by a timer instead.
func (c *LiveChannel) emitClosed(ev turn.ChannelClosedEvent) {
	timer := time.NewTimer(c.closedTimeout)
	defer timer.Stop()
	select {
	case c.events <- ev:
	case <-timer.C:
		c.logger.Warn("relay close not delivered; events are not being read")
	}
}

func decodeEvent(data []byte) turn.Event {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) && protocol.IsUnknownType(err) {
			return turn.UnknownMessageEvent{Type: de.Type}
		}
		return turn.MalformedMessageEvent{Err: err}
	}
	switch m := msg.(type) {
	case protocol.ServerConnectionEstablished:
		return turn.ConnectionEstablishedEvent{Message: m.Message}
	case protocol.ServerAIResponse:
		return turn.AnswerEvent{Turn: m.TurnID, Text: m.Text}
	case protocol.ServerError:
		return turn.TurnFailedEvent{Turn: m.TurnID, Message: m.Message}
	default:
		return turn.MalformedMessageEvent{Err: fmt.Errorf("unhandled message %T", msg)}
	}
}

var _ turn.Channel = (*LiveChannel)(nil)
