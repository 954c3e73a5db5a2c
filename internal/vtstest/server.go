// Package vtstest provides a fake VTube Studio for tests. It speaks the real
// envelope format over transport.Pipe and authenticates sessions the way
// VTube Studio does.
package vtstest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/transport"
)

// Handler answers one request. Returning a *data.APIError sends an APIError
// response; any other error drops the connection.
type Handler func(req *data.RequestEnvelope) (data.Response, error)

// ErrDrop makes a handler drop the connection without answering
var ErrDrop = errors.New("vtstest: drop connection")

// Server is a fake VTube Studio instance. The zero value is not usable; call
// NewServer.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	handlers    map[string]Handler
	counts      map[string]int
	tokens      map[string]bool
	issued      int
	denyTokens  bool
	tokenDelay  time.Duration
	failDials   int
	dials       int
	dropOn      map[string]int
	conns       map[*serverConn]struct{}
	subscribers map[string]bool
}

type serverConn struct {
	conn          transport.Conn
	sendMu        sync.Mutex
	authenticated bool
}

// NewServer starts a fake server with handlers for the common requests
func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:         ctx,
		cancel:      cancel,
		handlers:    make(map[string]Handler),
		counts:      make(map[string]int),
		tokens:      make(map[string]bool),
		dropOn:      make(map[string]int),
		conns:       make(map[*serverConn]struct{}),
		subscribers: make(map[string]bool),
	}

	s.Handle("StatisticsRequest", func(*data.RequestEnvelope) (data.Response, error) {
		return &data.StatisticsResponse{VTubeStudioVersion: "1.28.0", Framerate: 60, ConnectedPlugins: 1}, nil
	})
	s.Handle("HotkeyTriggerRequest", func(req *data.RequestEnvelope) (data.Response, error) {
		var hk data.HotkeyTriggerRequest
		if err := json.Unmarshal(req.Data, &hk); err != nil {
			return nil, &data.APIError{ErrorID: data.ErrJSONInvalid, Message: err.Error()}
		}
		if hk.HotkeyID == "" {
			return nil, &data.APIError{ErrorID: data.ErrHotkeyIDNotFoundInModel, Message: "no hotkey given"}
		}
		return &data.HotkeyTriggerResponse{HotkeyID: hk.HotkeyID}, nil
	})
	s.Handle("EventSubscriptionRequest", s.subscribe)
	return s
}

// Close drops every connection and stops the server
func (s *Server) Close() {
	s.cancel()
	s.DropConnections()
	s.wg.Wait()
}

// Handle sets the handler for messageType
func (s *Server) Handle(messageType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[messageType] = h
}

// AddToken makes token valid, as if it had been issued earlier
func (s *Server) AddToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

// RevokeTokens invalidates every issued token and deauthenticates every
// session
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
	for c := range s.conns {
		c.authenticated = false
	}
}

// DenyTokens makes the user deny every token request
func (s *Server) DenyTokens(deny bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denyTokens = deny
}

// SetTokenDelay delays token responses, like a user reading the popup
func (s *Server) SetTokenDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenDelay = d
}

// FailDials makes the next n Connect calls fail
func (s *Server) FailDials(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDials = n
}

// DropOn drops the connection when the next n requests of messageType
// arrive, before they are answered
func (s *Server) DropOn(messageType string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropOn[messageType] = n
}

// Count returns how many requests of messageType arrived
func (s *Server) Count(messageType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[messageType]
}

// Dials returns how many Connect calls were made, failed ones included
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// IssuedTokens returns how many tokens the server handed out
func (s *Server) IssuedTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Connections returns the number of open connections
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// DropConnections closes every open connection
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}

// Emit sends ev to every connection subscribed to its type
func (s *Server) Emit(ev data.EventData) error {
	env, err := data.NewEventEnvelope(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.subscribers[ev.EventType()] {
		s.mu.Unlock()
		return nil
	}
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := s.send(c, env); err != nil {
			return err
		}
	}
	return nil
}

// SendRaw writes frame to every connection
func (s *Server) SendRaw(frame []byte) {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.sendMu.Lock()
		_ = c.conn.Send(s.ctx, transport.Text(frame))
		c.sendMu.Unlock()
	}
}

// Connector returns a connector dialing this server
func (s *Server) Connector() transport.Connector {
	return transport.ConnectorFunc(s.connect)
}

func (s *Server) connect(ctx context.Context) (transport.Conn, error) {
	s.mu.Lock()
	s.dials++
	if s.failDials > 0 {
		s.failDials--
		s.mu.Unlock()
		return nil, fmt.Errorf("vtstest: connection refused")
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("vtstest: server closed")
	}

	client, server := transport.Pipe(16)
	c := &serverConn{conn: server}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.serve(c)
	return client, nil
}

func (s *Server) serve(c *serverConn) {
	defer s.wg.Done()
	defer func() {
		_ = c.conn.Close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	for {
		frame, err := c.conn.Recv(s.ctx)
		if err != nil {
			return
		}

		var req data.RequestEnvelope
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			if s.send(c, data.NewErrorResponse("", data.ErrJSONInvalid, err.Error())) != nil {
				return
			}
			continue
		}

		resp, err := s.handle(c, &req)
		if err != nil {
			return
		}
		if err := s.send(c, resp); err != nil {
			return
		}
	}
}

// handle answers req. An error means the connection must be dropped.
func (s *Server) handle(c *serverConn, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	s.mu.Lock()
	s.counts[req.MessageType]++
	if s.dropOn[req.MessageType] > 0 {
		s.dropOn[req.MessageType]--
		s.mu.Unlock()
		return nil, ErrDrop
	}
	authenticated := c.authenticated
	handler := s.handlers[req.MessageType]
	s.mu.Unlock()

	if req.APIName != data.APIName {
		return data.NewErrorResponse(req.RequestID, data.ErrAPINameInvalid, "invalid apiName"), nil
	}

	var (
		resp data.Response
		err  error
	)
	switch req.MessageType {
	case data.TypeAPIStateRequest:
		resp = &data.APIStateResponse{Active: true, VTubeStudioVersion: "1.28.0", CurrentSessionAuthenticated: authenticated}
	case data.TypeAuthenticationTokenRequest:
		resp, err = s.issueToken(req)
	case data.TypeAuthenticationRequest:
		resp, err = s.authenticate(c, req)
	default:
		switch {
		case !authenticated:
			err = &data.APIError{ErrorID: data.ErrRequestRequiresAuthentication, Message: "This request requires authentication."}
		case handler == nil:
			err = &data.APIError{ErrorID: data.ErrRequestTypeUnknown, Message: "Unknown request type " + req.MessageType}
		default:
			resp, err = handler(req)
		}
	}

	var apiErr *data.APIError
	switch {
	case errors.As(err, &apiErr):
		return data.NewErrorResponse(req.RequestID, apiErr.ErrorID, apiErr.Message), nil
	case err != nil:
		return nil, err
	}
	return data.NewResponseEnvelope(req.RequestID, resp)
}

func (s *Server) issueToken(req *data.RequestEnvelope) (data.Response, error) {
	var tr data.AuthenticationTokenRequest
	if err := json.Unmarshal(req.Data, &tr); err != nil {
		return nil, &data.APIError{ErrorID: data.ErrJSONInvalid, Message: err.Error()}
	}
	if l := len(tr.PluginName); l < 3 || l > 32 {
		return nil, &data.APIError{ErrorID: data.ErrTokenRequestPluginNameInvalid, Message: "plugin name must be 3 to 32 characters"}
	}
	if l := len(tr.PluginDeveloper); l < 3 || l > 32 {
		return nil, &data.APIError{ErrorID: data.ErrTokenRequestDeveloperNameInvalid, Message: "developer name must be 3 to 32 characters"}
	}

	s.mu.Lock()
	delay, deny := s.tokenDelay, s.denyTokens
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	if deny {
		return nil, &data.APIError{ErrorID: data.ErrTokenRequestDenied, Message: "User has denied API access for your plugin."}
	}

	s.mu.Lock()
	s.issued++
	token := fmt.Sprintf("token-%d", s.issued)
	s.tokens[token] = true
	s.mu.Unlock()
	return &data.AuthenticationTokenResponse{AuthenticationToken: token}, nil
}

func (s *Server) authenticate(c *serverConn, req *data.RequestEnvelope) (data.Response, error) {
	var ar data.AuthenticationRequest
	if err := json.Unmarshal(req.Data, &ar); err != nil {
		return nil, &data.APIError{ErrorID: data.ErrJSONInvalid, Message: err.Error()}
	}
	if ar.AuthenticationToken == "" {
		return nil, &data.APIError{ErrorID: data.ErrAuthenticationTokenMissing, Message: "token missing"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tokens[ar.AuthenticationToken] {
		return &data.AuthenticationResponse{Authenticated: false, Reason: "Token invalid."}, nil
	}
	c.authenticated = true
	return &data.AuthenticationResponse{Authenticated: true, Reason: "Token valid. The plugin is authenticated for the duration of this session."}, nil
}

func (s *Server) subscribe(req *data.RequestEnvelope) (data.Response, error) {
	var sub data.EventSubscriptionRequest
	if err := json.Unmarshal(req.Data, &sub); err != nil {
		return nil, &data.APIError{ErrorID: data.ErrJSONInvalid, Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case sub.Subscribe:
		s.subscribers[sub.EventName] = true
	case sub.EventName == "":
		s.subscribers = make(map[string]bool)
	default:
		delete(s.subscribers, sub.EventName)
	}

	names := make([]string, 0, len(s.subscribers))
	for name := range s.subscribers {
		names = append(names, name)
	}
	return &data.EventSubscriptionResponse{SubscribedEventCount: len(names), SubscribedEvents: names}, nil
}

func (s *Server) send(c *serverConn, env *data.ResponseEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.Send(s.ctx, transport.Text(raw))
}
