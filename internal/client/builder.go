package client

import (
	"time"

	"github.com/codefionn/vtsclient/internal/auth"
	"github.com/codefionn/vtsclient/internal/codec"
	"github.com/codefionn/vtsclient/internal/events"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/metrics"
	"github.com/codefionn/vtsclient/internal/mux"
	"github.com/codefionn/vtsclient/internal/retry"
	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/codefionn/vtsclient/internal/transport/gorillaws"
)

// DefaultURL is where VTube Studio listens unless configured otherwise
const DefaultURL = "ws://localhost:8001"

// Builder collects client options. The zero value is not usable; call
// NewBuilder.
type Builder struct {
	url              string
	connector        transport.Connector
	token            string
	identity         *auth.Identity
	policy           *retry.Policy
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	outgoingBuffer   int
	ids              mux.IDGenerator
	codec            codec.Codec
	collector        *metrics.Collector
	log              *logger.Logger
	attacher         auth.Attacher
	onNewToken       func(string)
}

// NewBuilder starts a client configuration
func NewBuilder() *Builder {
	return &Builder{url: DefaultURL}
}

// URL sets the websocket address dialed by the default connector
func (b *Builder) URL(url string) *Builder {
	b.url = url
	return b
}

// Connector replaces the default gorilla websocket connector
func (b *Builder) Connector(c transport.Connector) *Builder {
	b.connector = c
	return b
}

// AuthToken sets a token obtained in an earlier run
func (b *Builder) AuthToken(token string) *Builder {
	b.token = token
	return b
}

// Authentication enables the authentication layer. icon is an optional base64
// encoded 128x128 PNG.
func (b *Builder) Authentication(pluginName, pluginDeveloper, icon string) *Builder {
	b.identity = &auth.Identity{
		PluginName:      pluginName,
		PluginDeveloper: pluginDeveloper,
		PluginIcon:      icon,
	}
	return b
}

// RetryPolicy enables reconnect retries. Without it a lost connection is
// redialed on the next call but never retried.
func (b *Builder) RetryPolicy(p retry.Policy) *Builder {
	b.policy = &p
	return b
}

// RequestTimeout bounds every call, reconnects and handshakes included
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.requestTimeout = d
	return b
}

// HandshakeTimeout bounds one authentication handshake
func (b *Builder) HandshakeTimeout(d time.Duration) *Builder {
	b.handshakeTimeout = d
	return b
}

// OutgoingBuffer sets how many frames may wait to be written before callers
// block
func (b *Builder) OutgoingBuffer(n int) *Builder {
	b.outgoingBuffer = n
	return b
}

// IDGenerator replaces the numeric request ids
func (b *Builder) IDGenerator(ids mux.IDGenerator) *Builder {
	b.ids = ids
	return b
}

// Codec replaces the JSON codec
func (b *Builder) Codec(c codec.Codec) *Builder {
	b.codec = c
	return b
}

// Metrics records client activity in c
func (b *Builder) Metrics(c *metrics.Collector) *Builder {
	b.collector = c
	return b
}

// Logger sets the parent logger of every component
func (b *Builder) Logger(l *logger.Logger) *Builder {
	b.log = l
	return b
}

// TokenAttacher adds the token to requests that need it. VTube Studio does
// not need one; the session is authenticated.
func (b *Builder) TokenAttacher(a auth.Attacher) *Builder {
	b.attacher = a
	return b
}

// OnNewToken is called synchronously whenever a handshake produced a new
// token, before the NewAuthToken event is published
func (b *Builder) OnNewToken(fn func(token string)) *Builder {
	b.onNewToken = fn
	return b
}

// Build creates the client and a subscription to its events. Nothing is
// dialed until the first call or Client.Connect.
func (b *Builder) Build() (*Client, *events.Subscription) {
	log := b.log
	if log == nil {
		log = logger.Global()
	}
	connector := b.connector
	if connector == nil {
		connector = gorillaws.New(b.url)
	}
	policy := retry.NoRetry()
	if b.policy != nil {
		policy = *b.policy
	}
	ids := b.ids
	if ids == nil {
		ids = mux.NewNumericIDs()
	}

	c := &Client{
		hub:       events.NewHub(),
		state:     auth.NewState(b.token),
		connector: connector,
		identity:  b.identity,
		opts:      *b,
		ids:       ids,
		log:       log.WithPrefix("client"),
		muxLog:    log.WithPrefix("mux"),
		authLog:   log.WithPrefix("auth"),
	}

	c.reconnector = retry.New(retry.Config{
		Dialer:        c.dial,
		Policy:        policy,
		Events:        c.hub,
		OnStateChange: c.stateChanged,
		Logger:        log.WithPrefix("retry"),
	})
	c.stack = c.buildStack()

	return c, c.hub.Subscribe()
}
