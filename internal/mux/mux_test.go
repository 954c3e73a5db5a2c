package mux

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/service"
	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

type peer struct {
	t    *testing.T
	conn transport.Conn
}

func newMux(t *testing.T, opts Options) (*Mux, *peer) {
	t.Helper()
	client, server := transport.Pipe(8)
	m := New(client, opts)
	t.Cleanup(func() { _ = m.Close() })
	return m, &peer{t: t, conn: server}
}

func (p *peer) recv() *data.RequestEnvelope {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	frame, err := p.conn.Recv(ctx)
	require.NoError(p.t, err)
	var env data.RequestEnvelope
	require.NoError(p.t, json.Unmarshal(frame.Data, &env))
	return &env
}

func (p *peer) sendEnvelope(env *data.ResponseEnvelope) {
	p.t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(p.t, err)
	p.sendRaw(string(raw))
}

func (p *peer) sendRaw(raw string) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(p.t, p.conn.Send(ctx, transport.Text([]byte(raw))))
}

func (p *peer) respond(id data.RequestID, resp data.Response) {
	p.t.Helper()
	env, err := data.NewResponseEnvelope(id, resp)
	require.NoError(p.t, err)
	p.sendEnvelope(env)
}

func request(t *testing.T, req data.Request) *data.RequestEnvelope {
	t.Helper()
	env, err := data.NewRequestEnvelope(req)
	require.NoError(t, err)
	return env
}

func callAsync(m *Mux, req *data.RequestEnvelope) *service.Future[*data.ResponseEnvelope] {
	return service.Async(context.Background(), func(ctx context.Context) (*data.ResponseEnvelope, error) {
		ctx, cancel := context.WithTimeout(ctx, testTimeout)
		defer cancel()
		return m.Call(ctx, req)
	})
}

func await(t *testing.T, f *service.Future[*data.ResponseEnvelope]) (*data.ResponseEnvelope, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	select {
	case <-f.Done():
	case <-ctx.Done():
		t.Fatal("call did not resolve")
	}
	return f.Await(ctx)
}

func pending(t *testing.T, m *Mux) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	n, err := m.Pending(ctx)
	require.NoError(t, err)
	return n
}

func TestResponsesMatchedOutOfOrder(t *testing.T) {
	m, srv := newMux(t, Options{})

	a := callAsync(m, request(t, data.APIStateRequest{}))
	reqA := srv.recv()
	b := callAsync(m, request(t, data.StatisticsRequest{}))
	reqB := srv.recv()

	srv.respond(reqB.RequestID, &data.StatisticsResponse{Framerate: 60})
	srv.respond(reqA.RequestID, &data.APIStateResponse{Active: true})

	respA, err := await(t, a)
	require.NoError(t, err)
	var state data.APIStateResponse
	require.NoError(t, respA.Parse(&state))
	assert.True(t, state.Active)

	respB, err := await(t, b)
	require.NoError(t, err)
	var stats data.StatisticsResponse
	require.NoError(t, respB.Parse(&stats))
	assert.Equal(t, 60, stats.Framerate)

	assert.Equal(t, 0, pending(t, m))
}

func TestManyConcurrentCalls(t *testing.T) {
	m, srv := newMux(t, Options{})
	const n = 20

	futures := make([]*service.Future[*data.ResponseEnvelope], n)
	for i := range futures {
		futures[i] = callAsync(m, request(t, data.HotkeyTriggerRequest{HotkeyID: string(rune('a' + i))}))
	}

	received := make([]*data.RequestEnvelope, n)
	for i := range received {
		received[i] = srv.recv()
	}
	// Answer in reverse, echoing the hotkey id back.
	for i := n - 1; i >= 0; i-- {
		var req data.HotkeyTriggerRequest
		require.NoError(t, json.Unmarshal(received[i].Data, &req))
		srv.respond(received[i].RequestID, &data.HotkeyTriggerResponse{HotkeyID: req.HotkeyID})
	}

	for i, f := range futures {
		resp, err := await(t, f)
		require.NoError(t, err)
		var out data.HotkeyTriggerResponse
		require.NoError(t, resp.Parse(&out))
		assert.Equal(t, string(rune('a'+i)), out.HotkeyID)
	}
}

func TestUnknownResponseIDIsDropped(t *testing.T) {
	m, srv := newMux(t, Options{})

	f := callAsync(m, request(t, data.APIStateRequest{}))
	req := srv.recv()

	srv.respond("no-such-id", &data.APIStateResponse{Active: false})
	srv.respond(req.RequestID, &data.APIStateResponse{Active: true})

	resp, err := await(t, f)
	require.NoError(t, err)
	var state data.APIStateResponse
	require.NoError(t, resp.Parse(&state))
	assert.True(t, state.Active, "orphan response must not resolve the pending call")
}

func TestTransportFailureDrainsPendingCalls(t *testing.T) {
	m, srv := newMux(t, Options{})

	a := callAsync(m, request(t, data.APIStateRequest{}))
	b := callAsync(m, request(t, data.StatisticsRequest{}))
	srv.recv()
	srv.recv()

	require.NoError(t, srv.conn.Close())

	for _, f := range []*service.Future[*data.ResponseEnvelope]{a, b} {
		_, err := await(t, f)
		assert.True(t, errors.Is(err, clienterr.ErrConnectionLost), "got %v", err)
		assert.True(t, errors.Is(err, clienterr.ErrTransport), "I/O cause is kept: %v", err)
		assert.Equal(t, clienterr.KindConnectionLost, clienterr.KindOf(err))
		assert.True(t, clienterr.IsRetryable(err))
	}

	select {
	case <-m.Done():
	case <-time.After(testTimeout):
		t.Fatal("mux not done after transport failure")
	}
	assert.True(t, errors.Is(m.Err(), clienterr.ErrConnectionLost))
	assert.Equal(t, 0, pending(t, m))

	_, err := m.Call(context.Background(), request(t, data.APIStateRequest{}))
	assert.True(t, errors.Is(err, clienterr.ErrConnectionLost), "calls after teardown fail immediately")
}

func TestSameRequestTwiceGetsDistinctIDs(t *testing.T) {
	m, srv := newMux(t, Options{})
	req := request(t, data.APIStateRequest{})

	first := callAsync(m, req)
	second := callAsync(m, req)
	r1 := srv.recv()
	r2 := srv.recv()
	require.NotEqual(t, r1.RequestID, r2.RequestID)
	assert.Empty(t, req.RequestID, "caller's envelope is not modified")

	srv.respond(r1.RequestID, &data.APIStateResponse{VTubeStudioVersion: r1.RequestID.String()})
	srv.respond(r2.RequestID, &data.APIStateResponse{VTubeStudioVersion: r2.RequestID.String()})

	seen := map[string]bool{}
	for _, f := range []*service.Future[*data.ResponseEnvelope]{first, second} {
		resp, err := await(t, f)
		require.NoError(t, err)
		var state data.APIStateResponse
		require.NoError(t, resp.Parse(&state))
		assert.Equal(t, resp.RequestID.String(), state.VTubeStudioVersion)
		seen[state.VTubeStudioVersion] = true
	}
	assert.Len(t, seen, 2)
}

func TestAbandonedCallDoesNotCorruptTable(t *testing.T) {
	m, srv := newMux(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := service.Async(ctx, func(ctx context.Context) (*data.ResponseEnvelope, error) {
		return m.Call(ctx, request(t, data.APIStateRequest{}))
	})
	late := srv.recv()
	cancel()
	_, err := await(t, abandoned)
	assert.True(t, errors.Is(err, context.Canceled))

	next := callAsync(m, request(t, data.StatisticsRequest{}))
	fresh := srv.recv()

	srv.respond(late.RequestID, &data.APIStateResponse{})
	srv.respond(fresh.RequestID, &data.StatisticsResponse{ConnectedPlugins: 2})

	resp, err := await(t, next)
	require.NoError(t, err)
	var stats data.StatisticsResponse
	require.NoError(t, resp.Parse(&stats))
	assert.Equal(t, 2, stats.ConnectedPlugins)
	assert.Equal(t, 0, pending(t, m))
}

func TestEventsAreForwardedInOrder(t *testing.T) {
	var mu sync.Mutex
	var events []string
	m, srv := newMux(t, Options{OnEvent: func(env *data.ResponseEnvelope) {
		mu.Lock()
		events = append(events, env.MessageType)
		mu.Unlock()
	}})

	f := callAsync(m, request(t, data.APIStateRequest{}))
	req := srv.recv()

	for _, ev := range []data.EventData{
		&data.TestEvent{Counter: 1},
		&data.BackgroundChangedEvent{BackgroundName: "beach"},
		&data.TestEvent{Counter: 2},
	} {
		env, err := data.NewEventEnvelope(ev)
		require.NoError(t, err)
		// Even an id matching the pending call must not divert an event.
		env.RequestID = req.RequestID
		srv.sendEnvelope(env)
	}
	srv.respond(req.RequestID, &data.APIStateResponse{Active: true})

	_, err := await(t, f)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"TestEvent", "BackgroundChangedEvent", "TestEvent"}, events)
}

func TestMalformedResponseFailsOnlyItsCall(t *testing.T) {
	m, srv := newMux(t, Options{})

	a := callAsync(m, request(t, data.APIStateRequest{}))
	reqA := srv.recv()
	b := callAsync(m, request(t, data.StatisticsRequest{}))
	reqB := srv.recv()

	srv.sendRaw(`{"requestID":"` + reqA.RequestID.String() + `","messageType":"APIStateResponse","data":{`)
	srv.sendRaw(`not json at all`)
	srv.respond(reqB.RequestID, &data.StatisticsResponse{})

	_, err := await(t, a)
	assert.True(t, errors.Is(err, clienterr.ErrProtocol), "got %v", err)

	_, err = await(t, b)
	assert.NoError(t, err)

	select {
	case <-m.Done():
		t.Fatal("malformed frames must not tear down the connection")
	default:
	}
}

func TestAPIErrorIsReturnedAsEnvelope(t *testing.T) {
	m, srv := newMux(t, Options{})

	f := callAsync(m, request(t, data.HotkeyTriggerRequest{HotkeyID: "missing"}))
	req := srv.recv()
	srv.sendEnvelope(data.NewErrorResponse(req.RequestID, data.ErrHotkeyIDNotFoundInModel, "no such hotkey"))

	resp, err := await(t, f)
	require.NoError(t, err)
	apiErr, ok := resp.APIError()
	require.True(t, ok)
	assert.Equal(t, data.ErrHotkeyIDNotFoundInModel, apiErr.ErrorID)
}

func TestBackpressureSuspendsCaller(t *testing.T) {
	client, _ := transport.Pipe(0)
	m := New(client, Options{OutgoingBuffer: 1})
	t.Cleanup(func() { _ = m.Close() })

	// Nobody reads the server side: the writer blocks on the first frame and
	// the second fills the queue.
	callAsync(m, request(t, data.APIStateRequest{}))
	callAsync(m, request(t, data.APIStateRequest{}))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.Call(ctx, request(t, data.APIStateRequest{}))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	select {
	case <-m.Done():
		t.Fatal("backpressure must not fail the connection")
	default:
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	m, srv := newMux(t, Options{})

	f := callAsync(m, request(t, data.APIStateRequest{}))
	srv.recv()
	require.NoError(t, m.Close())

	_, err := await(t, f)
	assert.True(t, errors.Is(err, clienterr.ErrConnectionLost))
	assert.False(t, errors.Is(err, clienterr.ErrTransport), "a local close is not a transport failure")
}

type countingObserver struct {
	mu        sync.Mutex
	sent      int
	routes    map[Route]int
	malformed int
}

func (o *countingObserver) RequestSent(string) {
	o.mu.Lock()
	o.sent++
	o.mu.Unlock()
}

func (o *countingObserver) FrameRouted(r Route) {
	o.mu.Lock()
	o.routes[r]++
	o.mu.Unlock()
}

func (o *countingObserver) FrameMalformed() {
	o.mu.Lock()
	o.malformed++
	o.mu.Unlock()
}

func (o *countingObserver) PendingCount(int) {}

func TestObserverSeesTraffic(t *testing.T) {
	obs := &countingObserver{routes: map[Route]int{}}
	m, srv := newMux(t, Options{Observer: obs})

	f := callAsync(m, request(t, data.APIStateRequest{}))
	req := srv.recv()
	srv.respond("stale", &data.APIStateResponse{})
	srv.sendRaw("{")
	srv.respond(req.RequestID, &data.APIStateResponse{})
	_, err := await(t, f)
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.sent)
	assert.Equal(t, 1, obs.routes[RouteResponse])
	assert.Equal(t, 1, obs.routes[RouteOrphan])
	assert.Equal(t, 1, obs.malformed)
}
