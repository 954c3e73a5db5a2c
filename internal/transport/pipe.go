package transport

import (
	"context"
	"io"
	"sync"
)

// Pipe returns two connected in-memory ends. Each direction buffers up to
// buffer frames; once the buffer is full Send blocks until the peer reads.
// Closing either end closes both. Frames already buffered are still
// delivered before Recv reports io.EOF.
func Pipe(buffer int) (client, server Conn) {
	if buffer < 0 {
		buffer = 0
	}
	shared := &pipeState{done: make(chan struct{})}
	toServer := make(chan Frame, buffer)
	toClient := make(chan Frame, buffer)

	client = &pipeEnd{state: shared, in: toClient, out: toServer}
	server = &pipeEnd{state: shared, in: toServer, out: toClient}
	return client, server
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	state *pipeState
	in    <-chan Frame
	out   chan<- Frame
}

func (p *pipeEnd) Send(ctx context.Context, frame Frame) error {
	// Fail fast if closed; a select with both cases ready picks randomly.
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- frame:
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (Frame, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.state.done:
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return Frame{}, io.EOF
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() {
		close(p.state.done)
	})
	return nil
}
