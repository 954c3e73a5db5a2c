// Package service defines the call abstraction every client layer
// implements, and the helpers for composing layers into a pipeline.
//
// A layer wraps a Service and returns another Service:
//
//	stack := service.Chain(mux,
//		retry.Layer(...),  // outermost
//		auth.Layer(...),   // innermost, closest to mux
//	)
package service

import (
	"context"
	"time"

	"github.com/codefionn/vtsclient/internal/data"
)

// Service handles one request and returns its response. Implementations are
// safe for concurrent use. Call blocks until the response arrives, the call
// fails, or ctx is done.
type Service interface {
	Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error)
}

// Func adapts a function to the Service interface
type Func func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error)

func (f Func) Call(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
	return f(ctx, req)
}

// Layer decorates a Service
type Layer func(Service) Service

// Chain wraps inner with layers. The first layer is the outermost, so a
// request passes through layers in the order they are listed.
func Chain(inner Service, layers ...Layer) Service {
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] != nil {
			inner = layers[i](inner)
		}
	}
	return inner
}

// Timeout bounds every call with d. A zero or negative d disables the layer.
func Timeout(d time.Duration) Layer {
	return func(next Service) Service {
		if d <= 0 {
			return next
		}
		return Func(func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Call(ctx, req)
		})
	}
}
