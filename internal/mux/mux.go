// Package mux multiplexes concurrent calls over one transport connection.
//
// Each call gets a fresh request id and a pending entry in a table owned by
// a single actor goroutine. One goroutine writes frames in FIFO order from a
// bounded queue; another reads frames, decodes them and hands them to the
// table, which resolves the matching call or forwards events. When the
// connection fails every pending call is resolved with
// clienterr.ErrConnectionLost and the Mux becomes unusable. When the cause
// was an I/O failure, the error also wraps clienterr.ErrTransport.
package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/vtsclient/internal/actor"
	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/codec"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/transport"
)

const (
	// DefaultOutgoingBuffer is the number of frames queued for writing
	// before callers start to wait
	DefaultOutgoingBuffer = 32

	tableMailboxSize = 64
	stopTimeout      = 5 * time.Second
)

var muxCounter atomic.Uint64

// Observer receives notifications about the multiplexer's activity. Calls
// are made from the mux goroutines and must not block.
type Observer interface {
	RequestSent(messageType string)
	FrameRouted(route Route)
	FrameMalformed()
	PendingCount(n int)
}

type nopObserver struct{}

func (nopObserver) RequestSent(string) {}
func (nopObserver) FrameRouted(Route)  {}
func (nopObserver) FrameMalformed()    {}
func (nopObserver) PendingCount(int)   {}

// Options configures a Mux
type Options struct {
	Codec codec.Codec
	IDs   IDGenerator
	// OutgoingBuffer defaults to DefaultOutgoingBuffer
	OutgoingBuffer int
	// OnEvent receives notification envelopes in the order they arrived.
	// It runs on the table goroutine and must not block.
	OnEvent  func(*data.ResponseEnvelope)
	Observer Observer
	Logger   *logger.Logger
}

type outgoing struct {
	id    data.RequestID
	frame transport.Frame
}

// Mux is a correlation multiplexer bound to one connection
type Mux struct {
	conn     transport.Conn
	codec    codec.Codec
	ids      IDGenerator
	observer Observer
	log      *logger.Logger

	table    *actor.Ref
	outbound chan outgoing

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	teardownOnce sync.Once
	done         chan struct{}
	errMu        sync.RWMutex
	err          error
}

// New starts multiplexing over conn. The Mux owns conn from now on.
func New(conn transport.Conn, opts Options) *Mux {
	if opts.Codec == nil {
		opts.Codec = codec.JSON{}
	}
	if opts.IDs == nil {
		opts.IDs = NewNumericIDs()
	}
	if opts.OutgoingBuffer <= 0 {
		opts.OutgoingBuffer = DefaultOutgoingBuffer
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global().WithPrefix("mux")
	}

	ctx, cancel := context.WithCancel(context.Background())
	name := fmt.Sprintf("mux-%d", muxCounter.Add(1))

	m := &Mux{
		conn:     conn,
		codec:    opts.Codec,
		ids:      opts.IDs,
		observer: opts.Observer,
		log:      opts.Logger,
		outbound: make(chan outgoing, opts.OutgoingBuffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.table = actor.NewRef(name, newTable(name, opts.OnEvent, opts.Observer, opts.Logger), tableMailboxSize)
	// The table's lifetime is bound to Close/teardown, not to ctx.
	_ = m.table.Start(context.Background())

	m.wg.Add(2)
	go m.readLoop()
	go m.writeLoop()
	return m
}

// Call sends req and waits for its response. The request id of req is
// replaced with a fresh one; req itself is not modified. API error responses
// are returned as envelopes, not as errors.
func (m *Mux) Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	select {
	case <-m.done:
		return nil, m.Err()
	default:
	}

	env := req.WithID(m.ids.Next())
	frame, err := m.codec.Encode(env)
	if err != nil {
		return nil, err
	}

	slot := make(chan result, 1)
	pending := &pendingRequest{
		id:          env.RequestID,
		messageType: env.MessageType,
		slot:        slot,
		created:     time.Now(),
	}

	// Registration is queued before the frame, so the reader can never see
	// the response before the table knows the id.
	if err := m.table.Send(ctx, &registerMsg{req: pending}); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return nil, m.Err()
		}
		return nil, err
	}

	select {
	case m.outbound <- outgoing{id: env.RequestID, frame: frame}:
		m.observer.RequestSent(env.MessageType)
	case <-m.done:
		// The drain resolves the registration.
	case <-ctx.Done():
		// Never written, so no response can arrive for it.
		_ = m.table.TrySend(&forgetMsg{id: env.RequestID})
		return nil, ctx.Err()
	}

	select {
	case r := <-slot:
		return r.env, r.err
	case <-ctx.Done():
		// The entry stays; a late response fills the buffered slot and is
		// discarded with it.
		return nil, ctx.Err()
	}
}

// Pending returns the number of outstanding calls
func (m *Mux) Pending(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := m.table.Send(ctx, &countMsg{reply: reply}); err != nil {
		if errors.Is(err, actor.ErrStopped) {
			return 0, nil
		}
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Done is closed once the connection has failed or Close was called
func (m *Mux) Done() <-chan struct{} {
	return m.done
}

// Err returns the connection-lost error after Done is closed, nil before
func (m *Mux) Err() error {
	m.errMu.RLock()
	defer m.errMu.RUnlock()
	return m.err
}

// Close tears the connection down and waits for the mux goroutines.
func (m *Mux) Close() error {
	m.teardown(errors.New("closed"))
	m.wg.Wait()
	return nil
}

func (m *Mux) readLoop() {
	defer m.wg.Done()

	for {
		frame, err := m.conn.Recv(m.ctx)
		if err != nil {
			if m.ctx.Err() == nil {
				m.log.Info("Connection read ended: %v", err)
			}
			m.teardown(clienterr.New(clienterr.KindTransport, "mux.read", err))
			return
		}

		env, err := m.codec.Decode(frame)
		if err != nil {
			m.observer.FrameMalformed()
			id, ok := codec.SalvageRequestID(frame)
			if !ok {
				m.log.Warn("Dropping undecodable frame %s: %v", codec.Describe(frame), err)
				continue
			}
			if sendErr := m.table.Send(m.ctx, &malformedMsg{id: id, err: err}); sendErr != nil {
				return
			}
			continue
		}

		if err := m.table.Send(m.ctx, &frameMsg{env: env}); err != nil {
			return
		}
	}
}

func (m *Mux) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case out := <-m.outbound:
			if err := m.conn.Send(m.ctx, out.frame); err != nil {
				if m.ctx.Err() == nil {
					m.log.Warn("Failed to write request %s: %v", out.id, err)
				}
				m.teardown(clienterr.New(clienterr.KindTransport, "mux.write", err))
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}

// teardown runs once: it marks the mux failed, closes the connection,
// drains the pending table and stops the table actor.
func (m *Mux) teardown(cause error) {
	m.teardownOnce.Do(func() {
		lost := clienterr.New(clienterr.KindConnectionLost, "mux", cause)

		m.errMu.Lock()
		m.err = lost
		m.errMu.Unlock()
		close(m.done)

		m.cancel()
		if err := m.conn.Close(); err != nil {
			m.log.Debug("Closing connection: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := m.table.Send(ctx, &drainMsg{err: lost}); err != nil {
			m.log.Warn("Failed to queue drain: %v", err)
		}
		if err := m.table.Stop(ctx); err != nil {
			m.log.Warn("Failed to stop pending table: %v", err)
		}
	})
}
