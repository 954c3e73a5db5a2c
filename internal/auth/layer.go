package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/service"
	"golang.org/x/sync/singleflight"
)

// Attacher adds token to req following the protocol's convention. It must
// not modify req in place; it returns the envelope to send.
type Attacher func(req *data.RequestEnvelope, token string) *data.RequestEnvelope

// Config configures the authentication layer
type Config struct {
	Identity Identity
	// State is shared by every connection of a client
	State *State
	// Attacher runs before every request that requires authentication.
	// VTube Studio authenticates the session, so nil attaches nothing.
	Attacher Attacher
	// OnNewToken is called once for every handshake that produced a token
	// different from the stored one
	OnNewToken func(token string)
	// OnHandshake is called after every handshake with its outcome
	OnHandshake func(err error)
	// HandshakeTimeout bounds a handshake. The token popup waits for the
	// user, so zero means no limit.
	HandshakeTimeout time.Duration
	Logger           *logger.Logger
}

// Layer returns the authentication layer. Build one per connection: the
// session it authenticates is the connection below it.
func Layer(cfg Config) service.Layer {
	if cfg.State == nil {
		cfg.State = NewState("")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithPrefix("auth")
	}
	return func(inner service.Service) service.Service {
		return &authService{inner: inner, cfg: cfg}
	}
}

type authService struct {
	inner service.Service
	cfg   Config
	group singleflight.Group
	// generation counts completed handshakes on this session
	generation atomic.Uint64
}

func (s *authService) Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	if !RequiresAuth(req.MessageType) {
		return s.inner.Call(ctx, req)
	}

	budget := service.BudgetFrom(ctx)
	gen := s.generation.Load()

	resp, err := s.inner.Call(ctx, s.attach(req))
	if err != nil || !resp.IsUnauthenticated() {
		return resp, err
	}

	if !budget.TakeAuth() {
		return nil, unauthenticated(resp)
	}

	// Another caller may have authenticated the session while this request
	// was in flight; then only the retry is needed.
	if s.generation.Load() == gen {
		if err := s.authenticate(ctx); err != nil {
			if clienterr.IsRetryable(err) {
				budget.ReleaseAuth()
			}
			return nil, err
		}
	}

	s.cfg.Logger.Debug("Retrying %s after authentication", req.MessageType)
	resp, err = s.inner.Call(ctx, s.attach(req))
	if err != nil {
		return nil, err
	}
	if resp.IsUnauthenticated() {
		return nil, unauthenticated(resp)
	}
	return resp, nil
}

func (s *authService) attach(req *data.RequestEnvelope) *data.RequestEnvelope {
	if s.cfg.Attacher == nil || !s.cfg.State.HasToken() {
		return req
	}
	return s.cfg.Attacher(req, s.cfg.State.Token())
}

// authenticate runs one handshake for all callers that need it at the same
// time. Each caller stops waiting when its own ctx ends; the handshake keeps
// running for the others.
func (s *authService) authenticate(ctx context.Context) error {
	ch := s.group.DoChan("handshake", func() (any, error) {
		hctx := context.WithoutCancel(ctx)
		if s.cfg.HandshakeTimeout > 0 {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(hctx, s.cfg.HandshakeTimeout)
			defer cancel()
		}
		err := s.handshake(hctx)
		if err == nil {
			s.generation.Add(1)
		}
		if s.cfg.OnHandshake != nil {
			s.cfg.OnHandshake(err)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshake authenticates the session. A stored token is tried first; if it
// is rejected or missing a new one is requested from the user.
func (s *authService) handshake(ctx context.Context) error {
	if token := s.cfg.State.Token(); token != "" {
		ok, reason, err := s.authenticateWith(ctx, token)
		if err != nil {
			return err
		}
		if ok {
			s.cfg.Logger.Info("Session authenticated with stored token")
			return nil
		}
		s.cfg.Logger.Info("Stored token rejected (%s), requesting a new one", reason)
	}

	token, err := s.requestToken(ctx)
	if err != nil {
		return err
	}

	ok, reason, err := s.authenticateWith(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return clienterr.Newf(clienterr.KindAuthentication, "auth.handshake", "new token rejected: %s", reason)
	}

	if s.cfg.State.Set(token) {
		s.cfg.Logger.Info("Received new authentication token")
		if s.cfg.OnNewToken != nil {
			s.cfg.OnNewToken(token)
		}
	}
	return nil
}

func (s *authService) requestToken(ctx context.Context) (string, error) {
	var resp data.AuthenticationTokenResponse
	if err := s.send(ctx, s.cfg.Identity.tokenRequest(), &resp); err != nil {
		return "", err
	}
	if resp.AuthenticationToken == "" {
		return "", clienterr.Newf(clienterr.KindAuthentication, "auth.token", "server returned an empty token")
	}
	return resp.AuthenticationToken, nil
}

func (s *authService) authenticateWith(ctx context.Context, token string) (bool, string, error) {
	var resp data.AuthenticationResponse
	if err := s.send(ctx, s.cfg.Identity.authRequest(token), &resp); err != nil {
		return false, "", err
	}
	return resp.Authenticated, resp.Reason, nil
}

// send performs one handshake step on the inner service. API errors become
// authentication errors, unexpected responses protocol errors. Transport
// errors are returned unchanged.
func (s *authService) send(ctx context.Context, req data.Request, resp data.Response) error {
	env, err := data.NewRequestEnvelope(req)
	if err != nil {
		return clienterr.New(clienterr.KindEncode, "auth.handshake", err)
	}
	out, err := s.inner.Call(ctx, env)
	if err != nil {
		return err
	}
	if err := out.Parse(resp); err != nil {
		var apiErr *data.APIError
		if errors.As(err, &apiErr) {
			return clienterr.New(clienterr.KindAuthentication, "auth.handshake", err)
		}
		return clienterr.New(clienterr.KindProtocol, "auth.handshake", err)
	}
	return nil
}

func unauthenticated(resp *data.ResponseEnvelope) error {
	apiErr, _ := resp.APIError()
	return clienterr.New(clienterr.KindAuthentication, "auth", apiErr)
}
