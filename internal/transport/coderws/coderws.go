// Package coderws implements transport.Connector on github.com/coder/websocket.
package coderws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/coder/websocket"
)

const defaultReadLimit = 16 << 20

// Connector dials a websocket URL
type Connector struct {
	URL     string
	Options *websocket.DialOptions
	// ReadLimit caps inbound message size; defaults to 16 MiB
	ReadLimit int64
}

// New returns a Connector for url with default settings
func New(url string) *Connector {
	return &Connector{URL: url}
}

func (c *Connector) Connect(ctx context.Context) (transport.Conn, error) {
	ws, resp, err := websocket.Dial(ctx, c.URL, c.Options)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.URL, err)
	}

	limit := c.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	ws.SetReadLimit(limit)

	return &Conn{ws: ws, closed: make(chan struct{})}, nil
}

// Conn is a coder/websocket connection
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *Conn) Send(ctx context.Context, frame transport.Frame) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	msgType := websocket.MessageText
	if frame.Type == transport.FrameBinary {
		msgType = websocket.MessageBinary
	}
	if err := c.ws.Write(ctx, msgType, frame.Data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Recv reads the next frame. The library closes the connection when ctx is
// cancelled mid-read.
func (c *Conn) Recv(ctx context.Context) (transport.Frame, error) {
	msgType, data, err := c.ws.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return transport.Frame{}, ctx.Err()
		}
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return transport.Frame{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return transport.Frame{}, io.EOF
		}
		select {
		case <-c.closed:
			return transport.Frame{}, io.EOF
		default:
		}
		return transport.Frame{}, fmt.Errorf("websocket read: %w", err)
	}

	frameType := transport.FrameText
	if msgType == websocket.MessageBinary {
		frameType = transport.FrameBinary
	}
	return transport.Frame{Type: frameType, Data: data}, nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
