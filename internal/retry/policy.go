// Package retry keeps a connection alive across failures. It dials lazily,
// reconnects with bounded backoff when the connection drops and retries a
// call that lost its connection once on the next one.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds reconnect attempts
type Policy struct {
	// MaxAttempts is the number of dials per connect cycle. Values below 1
	// mean a single attempt.
	MaxAttempts int
	// InitialInterval is the wait after the first failed dial
	InitialInterval time.Duration
	// MaxInterval caps the wait between dials
	MaxInterval time.Duration
	// Multiplier grows the wait after every failed dial
	Multiplier float64
	// RetryOnDisconnect retries a call whose connection dropped once on a
	// fresh connection
	RetryOnDisconnect bool
}

// DefaultPolicy tries five dials over roughly seven seconds and retries
// calls that lost their connection
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       5 * time.Second,
		Multiplier:        2,
		RetryOnDisconnect: true,
	}
}

// NoRetry dials once per cycle and never retries calls
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.Multiplier = p.Multiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts()-1)), ctx)
}
