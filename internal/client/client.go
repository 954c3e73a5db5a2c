// Package client is the public face of the VTube Studio client. It wires
// the transport, multiplexer, authentication and reconnect layers into one
// call stack and exposes typed request helpers and an event stream.
//
//	c, evs := client.NewBuilder().
//		Authentication("My Plugin", "Me", "").
//		RetryPolicy(retry.DefaultPolicy()).
//		Build()
//	defer c.Close()
//
//	stats, err := client.Do[data.StatisticsResponse](ctx, c, data.StatisticsRequest{})
package client

import (
	"context"
	"errors"

	"github.com/codefionn/vtsclient/internal/auth"
	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/events"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/mux"
	"github.com/codefionn/vtsclient/internal/retry"
	"github.com/codefionn/vtsclient/internal/service"
	"github.com/codefionn/vtsclient/internal/transport"
)

// Client sends requests to VTube Studio. It is safe for concurrent use.
type Client struct {
	hub         *events.Hub
	state       *auth.State
	connector   transport.Connector
	identity    *auth.Identity
	opts        Builder
	ids         mux.IDGenerator
	reconnector *retry.Reconnector
	stack       service.Service

	log     *logger.Logger
	muxLog  *logger.Logger
	authLog *logger.Logger
}

// buildStack layers metrics and the request timeout over the reconnector.
// The per-connection layers are built by dial.
func (c *Client) buildStack() service.Service {
	var layers []service.Layer
	if c.opts.collector != nil {
		layers = append(layers, c.opts.collector.Layer())
	}
	layers = append(layers, service.Timeout(c.opts.requestTimeout))
	return service.Chain(c.reconnector, layers...)
}

// session is one connection: the multiplexer and the layers bound to it
type session struct {
	service.Service
	mux *mux.Mux
}

func (s *session) Done() <-chan struct{} { return s.mux.Done() }
func (s *session) Err() error            { return s.mux.Err() }
func (s *session) Close() error          { return s.mux.Close() }

func (c *Client) dial(ctx context.Context) (retry.Session, error) {
	conn, err := c.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	var observer mux.Observer
	if c.opts.collector != nil {
		observer = c.opts.collector
	}
	m := mux.New(conn, mux.Options{
		Codec:          c.opts.codec,
		IDs:            c.ids,
		OutgoingBuffer: c.opts.outgoingBuffer,
		OnEvent:        c.notify,
		Observer:       observer,
		Logger:         c.muxLog,
	})

	var svc service.Service = m
	if c.identity != nil {
		svc = auth.Layer(auth.Config{
			Identity:         *c.identity,
			State:            c.state,
			Attacher:         c.opts.attacher,
			OnNewToken:       c.newToken,
			OnHandshake:      c.handshakeDone,
			HandshakeTimeout: c.opts.handshakeTimeout,
			Logger:           c.authLog,
		})(m)
	}
	return &session{Service: svc, mux: m}, nil
}

func (c *Client) notify(env *data.ResponseEnvelope) {
	c.hub.Publish(events.FromEnvelope(env))
}

func (c *Client) newToken(token string) {
	if c.opts.onNewToken != nil {
		c.opts.onNewToken(token)
	}
	c.hub.Publish(events.Event{Kind: events.NewAuthToken, Token: token})
}

func (c *Client) handshakeDone(err error) {
	if c.opts.collector != nil {
		c.opts.collector.HandshakeDone(err)
	}
}

func (c *Client) stateChanged(s retry.State) {
	c.log.Debug("Connection state: %s", s)
	if c.opts.collector != nil {
		c.opts.collector.StateChanged(s)
	}
}

// Call sends an envelope through the full stack. API errors come back as
// envelopes.
func (c *Client) Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	return c.stack.Call(ctx, req)
}

// CallAsync starts Call in the background
func (c *Client) CallAsync(ctx context.Context, req *data.RequestEnvelope) *service.Future[*data.ResponseEnvelope] {
	return service.Async(ctx, func(ctx context.Context) (*data.ResponseEnvelope, error) {
		return c.Call(ctx, req)
	})
}

// Send sends req and decodes the answer into resp. API errors are returned
// as clienterr.ErrApplication wrapping the *data.APIError.
func (c *Client) Send(ctx context.Context, req data.Request, resp data.Response) error {
	env, err := data.NewRequestEnvelope(req)
	if err != nil {
		return clienterr.New(clienterr.KindEncode, "client.send", err)
	}

	out, err := c.Call(ctx, env)
	if err != nil {
		return err
	}
	return decode(out, resp)
}

func decode(out *data.ResponseEnvelope, resp data.Response) error {
	err := out.Parse(resp)
	if err == nil {
		return nil
	}

	var apiErr *data.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsUnauthenticated() {
			return clienterr.New(clienterr.KindAuthentication, "client.send", apiErr)
		}
		return clienterr.New(clienterr.KindApplication, "client.send", apiErr)
	}
	return clienterr.New(clienterr.KindProtocol, "client.send", err)
}

// Do sends req and returns the decoded response of type Resp
func Do[Resp any, P interface {
	*Resp
	data.Response
}](ctx context.Context, c *Client, req data.Request) (*Resp, error) {
	resp := P(new(Resp))
	if err := c.Send(ctx, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DoAsync starts Do in the background
func DoAsync[Resp any, P interface {
	*Resp
	data.Response
}](ctx context.Context, c *Client, req data.Request) *service.Future[*Resp] {
	return service.Async(ctx, func(ctx context.Context) (*Resp, error) {
		return Do[Resp, P](ctx, c, req)
	})
}

// Connect dials now instead of on the first call. With authentication
// enabled the session is authenticated as well.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.reconnector.Connect(ctx); err != nil {
		return err
	}
	if c.identity == nil {
		return nil
	}
	// Any request needing auth triggers the handshake; Statistics is cheap.
	_, err := Do[data.StatisticsResponse](ctx, c, data.StatisticsRequest{})
	return err
}

// Subscribe returns a new event stream. It sees only events published after
// the call.
func (c *Client) Subscribe() *events.Subscription {
	return c.hub.Subscribe()
}

// Token returns the current authentication token or ""
func (c *Client) Token() string {
	return c.state.Token()
}

// SetToken replaces the stored token, e.g. with one another process
// obtained. The next handshake uses it.
func (c *Client) SetToken(token string) {
	if token == "" {
		return
	}
	if c.state.Set(token) {
		c.log.Info("Authentication token replaced")
	}
}

// State returns the connection state
func (c *Client) State() retry.State {
	return c.reconnector.State()
}

// Close drops the connection and ends every event stream. Calls made after
// Close fail with clienterr.ErrClosed.
func (c *Client) Close() error {
	err := c.reconnector.Close()
	c.hub.Close()
	return err
}
