package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/events"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/service"
	"golang.org/x/sync/singleflight"
)

// State of the connection as seen by the Reconnector
type State int32

const (
	// StateDisconnected means no connection exists; the next call dials
	StateDisconnected State = iota
	// StateConnecting is the first connect cycle
	StateConnecting
	// StateConnected means calls go to a live connection
	StateConnected
	// StateReconnecting is a connect cycle after a lost connection
	StateReconnecting
	// StateFailed means a connect cycle was exhausted; calls fail until the
	// client is rebuilt
	StateFailed
	// StateClosed means Close was called
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection with its protocol stack
type Session interface {
	service.Service
	// Done is closed when the connection is gone
	Done() <-chan struct{}
	// Err reports why Done was closed
	Err() error
	Close() error
}

// Dialer opens a connection and builds the stack on top of it. ctx ends
// when the Reconnector is closed.
type Dialer func(ctx context.Context) (Session, error)

// Config configures a Reconnector
type Config struct {
	Dialer Dialer
	Policy Policy
	// Events receives ConnectionEstablished and ConnectionLost. May be nil.
	Events *events.Hub
	// OnStateChange is called with every new state
	OnStateChange func(State)
	Logger        *logger.Logger
}

// session tracks one dialed Session so it is retired exactly once
type session struct {
	Session
	retireOnce sync.Once
}

// Reconnector is the outermost layer of the client. It owns the current
// connection and replaces it when it fails.
type Reconnector struct {
	cfg Config
	log *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	state atomic.Int32

	mu        sync.Mutex
	current   *session
	connected bool // a connection was established before
	lastErr   error
	closed    bool
}

// New creates a Reconnector. Nothing is dialed until the first call.
func New(cfg Config) *Reconnector {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithPrefix("retry")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconnector{
		cfg:    cfg,
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current connection state
func (r *Reconnector) State() State {
	return State(r.state.Load())
}

// Call sends req on the current connection, connecting first if needed. If
// the connection drops while the call is pending it is retried once on a
// new connection, as the policy allows.
func (r *Reconnector) Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	ctx, budget := service.WithBudget(ctx)

	for {
		sess, err := r.acquire(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := sess.Call(ctx, req)
		if err == nil || !clienterr.IsRetryable(err) {
			return resp, err
		}

		r.retire(sess)
		if !r.cfg.Policy.RetryOnDisconnect || !budget.TakeReconnect() {
			return nil, err
		}
		r.log.Info("Retrying %s on a new connection: %v", req.MessageType, err)
	}
}

// Connect establishes a connection now instead of on the first call.
func (r *Reconnector) Connect(ctx context.Context) error {
	_, err := r.acquire(ctx)
	return err
}

// Close drops the connection. Later calls fail with clienterr.ErrClosed.
func (r *Reconnector) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	current := r.current
	r.current = nil
	r.mu.Unlock()

	r.cancel()
	r.setState(StateClosed)

	var err error
	if current != nil {
		err = current.Close()
	}
	r.wg.Wait()
	return err
}

func (r *Reconnector) acquire(ctx context.Context) (*session, error) {
	if sess, err := r.live(); sess != nil || err != nil {
		return sess, err
	}

	ch := r.group.DoChan("connect", func() (any, error) {
		return r.connect()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// live returns the current connection if it is usable, or the error every
// call must fail with. Both are nil when a connect is needed.
func (r *Reconnector) live() (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, clienterr.New(clienterr.KindClosed, "retry", nil)
	}
	if r.State() == StateFailed {
		return nil, clienterr.New(clienterr.KindFailed, "retry", r.lastErr)
	}
	if r.current != nil {
		select {
		case <-r.current.Done():
		default:
			return r.current, nil
		}
	}
	return nil, nil
}

// connect runs one connect cycle. Only one runs at a time.
func (r *Reconnector) connect() (*session, error) {
	if sess, err := r.live(); sess != nil || err != nil {
		return sess, err
	}

	r.mu.Lock()
	dead := r.current
	reconnecting := r.connected
	r.mu.Unlock()

	if dead != nil {
		r.retire(dead)
	}
	if reconnecting {
		r.setState(StateReconnecting)
	} else {
		r.setState(StateConnecting)
	}

	attempts := r.cfg.Policy.attempts()
	attempt := 0
	var dialed Session
	op := func() error {
		attempt++
		sess, err := r.cfg.Dialer(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		dialed = sess
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("Connect attempt %d/%d failed: %v (next in %s)", attempt, attempts, err, wait)
	}

	if err := backoff.RetryNotify(op, r.cfg.Policy.backOff(r.ctx), notify); err != nil {
		connectErr := clienterr.New(clienterr.KindConnect, "retry.dial", err)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, clienterr.New(clienterr.KindClosed, "retry", nil)
		}
		r.lastErr = connectErr
		r.mu.Unlock()

		r.setState(StateFailed)
		r.log.Error("Giving up after %d connect attempt(s): %v", attempt, err)
		return nil, clienterr.New(clienterr.KindFailed, "retry", connectErr)
	}

	sess := &session{Session: dialed}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = dialed.Close()
		return nil, clienterr.New(clienterr.KindClosed, "retry", nil)
	}
	r.current = sess
	r.connected = true
	r.wg.Add(1)
	r.mu.Unlock()

	r.setState(StateConnected)
	r.log.Info("Connected after %d attempt(s)", attempt)
	r.publish(events.Event{Kind: events.ConnectionEstablished})

	go r.watch(sess)
	return sess, nil
}

// watch retires sess as soon as its connection is gone, so ConnectionLost is
// published even when no call notices.
func (r *Reconnector) watch(sess *session) {
	defer r.wg.Done()

	select {
	case <-sess.Done():
		r.retire(sess)
	case <-r.ctx.Done():
	}
}

// retire forgets a dead connection and publishes ConnectionLost once
func (r *Reconnector) retire(sess *session) {
	sess.retireOnce.Do(func() {
		r.mu.Lock()
		wasCurrent := r.current == sess
		if wasCurrent {
			r.current = nil
		}
		closed := r.closed
		r.mu.Unlock()

		cause := sess.Err()
		if err := sess.Close(); err != nil {
			r.log.Debug("Closing lost connection: %v", err)
		}
		if closed {
			return
		}

		if cause == nil {
			cause = clienterr.New(clienterr.KindConnectionLost, "retry", errors.New("connection dropped"))
		}
		r.log.Warn("Connection lost: %v", cause)
		if wasCurrent {
			r.casState(StateConnected, StateDisconnected)
		}
		r.publish(events.Event{Kind: events.ConnectionLost, Err: cause})
	})
}

func (r *Reconnector) setState(s State) {
	if State(r.state.Swap(int32(s))) != s && r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(s)
	}
}

func (r *Reconnector) casState(from, to State) {
	if r.state.CompareAndSwap(int32(from), int32(to)) && r.cfg.OnStateChange != nil {
		r.cfg.OnStateChange(to)
	}
}

func (r *Reconnector) publish(ev events.Event) {
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(ev)
	}
}
