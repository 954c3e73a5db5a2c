// Package transport defines the duplex frame channel the client talks over
// and the connector that opens one. Concrete websocket implementations live
// in the gorillaws and coderws subpackages; Pipe provides an in-memory pair.
package transport

import (
	"context"
	"errors"
)

// FrameType distinguishes text from binary frames
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

func (t FrameType) String() string {
	if t == FrameBinary {
		return "binary"
	}
	return "text"
}

// Frame is one discrete message on the transport
type Frame struct {
	Type FrameType
	Data []byte
}

// Text creates a text frame
func Text(data []byte) Frame {
	return Frame{Type: FrameText, Data: data}
}

// ErrClosed is returned by Send on a closed connection
var ErrClosed = errors.New("transport: connection closed")

// Conn is a live duplex connection.
//
// Send may be called from one goroutine at a time; Recv likewise. Recv returns
// io.EOF after an orderly close by either side. Close is safe to call
// concurrently with Send and Recv, and more than once.
type Conn interface {
	Send(ctx context.Context, frame Frame) error
	Recv(ctx context.Context) (Frame, error)
	Close() error
}

// Connector opens a fresh connection. It is called once per connect attempt.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}
