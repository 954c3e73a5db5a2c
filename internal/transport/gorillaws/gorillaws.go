// Package gorillaws implements transport.Connector on github.com/gorilla/websocket.
package gorillaws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Model and parameter lists
	// can get large.
	defaultReadLimit = 16 << 20

	handshakeTimeout = 10 * time.Second
)

// Connector dials a websocket URL, typically ws://localhost:8001
type Connector struct {
	URL    string
	Header http.Header
	// Dialer defaults to a copy of websocket.DefaultDialer
	Dialer *websocket.Dialer
	// WriteTimeout bounds every write; defaults to 10s
	WriteTimeout time.Duration
	// ReadLimit caps inbound message size; defaults to 16 MiB
	ReadLimit int64
}

// New returns a Connector for url with default settings
func New(url string) *Connector {
	return &Connector{URL: url}
}

// Connect dials the server and starts the keepalive loop
func (c *Connector) Connect(ctx context.Context) (transport.Conn, error) {
	dialer := c.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = handshakeTimeout
		dialer = &d
	}

	ws, resp, err := dialer.DialContext(ctx, c.URL, c.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.URL, err)
	}

	readLimit := c.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	writeWait := c.WriteTimeout
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn := &Conn{
		ws:        ws,
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
	go conn.keepalive()

	logger.Debug("gorillaws: connected to %s", c.URL)
	return conn, nil
}

// Conn is a gorilla websocket connection
type Conn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *Conn) Send(ctx context.Context, frame transport.Frame) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	msgType := websocket.TextMessage
	if frame.Type == transport.FrameBinary {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(msgType, frame.Data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Recv reads the next data frame. Cancelling ctx interrupts the read and
// leaves the connection unusable, so callers pass a connection-scoped ctx.
func (c *Conn) Recv(ctx context.Context) (transport.Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return transport.Frame{}, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return transport.Frame{}, io.EOF
		}
		select {
		case <-c.done:
			return transport.Frame{}, io.EOF
		default:
		}
		return transport.Frame{}, fmt.Errorf("websocket read: %w", err)
	}

	frameType := transport.FrameText
	if msgType == websocket.BinaryMessage {
		frameType = transport.FrameBinary
	}
	return transport.Frame{Type: frameType, Data: data}, nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				logger.Debug("gorillaws: ping failed: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}
