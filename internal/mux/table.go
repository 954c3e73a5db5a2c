package mux

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/vtsclient/internal/actor"
	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/logger"
)

// result completes one pending call
type result struct {
	env *data.ResponseEnvelope
	err error
}

// pendingRequest is one outstanding call. slot has capacity 1 and receives
// exactly one result.
type pendingRequest struct {
	id          data.RequestID
	messageType string
	slot        chan<- result
	created     time.Time
}

func (p *pendingRequest) resolve(r result) {
	p.slot <- r
}

// Table messages. Every mutation of the pending table is one of these,
// applied in mailbox order by the table actor.

type registerMsg struct {
	req *pendingRequest
}

func (*registerMsg) Type() string { return "register" }

// forgetMsg removes a registration whose frame was never written
type forgetMsg struct {
	id data.RequestID
}

func (*forgetMsg) Type() string { return "forget" }

type frameMsg struct {
	env *data.ResponseEnvelope
}

func (*frameMsg) Type() string { return "frame" }

// malformedMsg reports a frame that failed to decode but whose request id
// could be recovered
type malformedMsg struct {
	id  data.RequestID
	err error
}

func (*malformedMsg) Type() string { return "malformed" }

type drainMsg struct {
	err error
}

func (*drainMsg) Type() string { return "drain" }

type countMsg struct {
	reply chan<- int
}

func (*countMsg) Type() string { return "count" }

// table owns the pending requests of one connection
type table struct {
	id       string
	pending  map[data.RequestID]*pendingRequest
	drained  error
	onEvent  func(*data.ResponseEnvelope)
	observer Observer
	log      *logger.Logger
}

func newTable(id string, onEvent func(*data.ResponseEnvelope), observer Observer, log *logger.Logger) *table {
	return &table{
		id:       id,
		pending:  make(map[data.RequestID]*pendingRequest),
		onEvent:  onEvent,
		observer: observer,
		log:      log,
	}
}

func (t *table) ID() string { return t.id }

func (t *table) Start(ctx context.Context) error { return nil }

// Stop fails anything still pending. Normally the table was drained already.
func (t *table) Stop(ctx context.Context) error {
	if t.drained == nil {
		t.drain(clienterr.New(clienterr.KindConnectionLost, "mux.stop", nil))
	}
	return nil
}

func (t *table) Receive(ctx context.Context, msg actor.Message) error {
	switch m := msg.(type) {
	case *registerMsg:
		return t.register(m.req)
	case *forgetMsg:
		delete(t.pending, m.id)
		t.observer.PendingCount(len(t.pending))
	case *frameMsg:
		t.dispatch(m.env)
	case *malformedMsg:
		t.failMalformed(m.id, m.err)
	case *drainMsg:
		t.drain(m.err)
	case *countMsg:
		m.reply <- len(t.pending)
	default:
		return fmt.Errorf("unknown message type %s", msg.Type())
	}
	return nil
}

func (t *table) register(req *pendingRequest) error {
	if t.drained != nil {
		req.resolve(result{err: t.drained})
		return nil
	}
	if _, exists := t.pending[req.id]; exists {
		err := clienterr.Newf(clienterr.KindProtocol, "mux.register", "request id %s is already outstanding", req.id)
		req.resolve(result{err: err})
		return err
	}
	t.pending[req.id] = req
	t.observer.PendingCount(len(t.pending))
	return nil
}

func (t *table) isPending(id data.RequestID) bool {
	_, ok := t.pending[id]
	return ok
}

func (t *table) dispatch(env *data.ResponseEnvelope) {
	route := Classify(env, t.isPending)
	t.observer.FrameRouted(route)

	switch route {
	case RouteResponse:
		req := t.pending[env.RequestID]
		delete(t.pending, env.RequestID)
		t.observer.PendingCount(len(t.pending))
		t.log.Debug("%s %s answered with %s after %s", req.messageType, req.id, env.MessageType, time.Since(req.created))
		req.resolve(result{env: env})
	case RouteEvent:
		if t.onEvent != nil {
			t.onEvent(env)
		}
	case RouteOrphan:
		t.log.Warn("Dropping %s for unknown request id %q", env.MessageType, env.RequestID)
	}
}

func (t *table) failMalformed(id data.RequestID, cause error) {
	req, ok := t.pending[id]
	if !ok {
		t.log.Warn("Dropping malformed frame for unknown request id %q: %v", id, cause)
		return
	}
	delete(t.pending, id)
	t.observer.PendingCount(len(t.pending))
	req.resolve(result{err: clienterr.New(clienterr.KindProtocol, "mux.decode", cause)})
}

// drain resolves every pending call with err. Registrations arriving later
// are resolved with the same error immediately.
func (t *table) drain(err error) {
	if t.drained != nil {
		return
	}
	t.drained = err
	if len(t.pending) > 0 {
		t.log.Info("Failing %d pending request(s): %v", len(t.pending), err)
	}
	for id, req := range t.pending {
		req.resolve(result{err: err})
		delete(t.pending, id)
	}
	t.observer.PendingCount(0)
}
