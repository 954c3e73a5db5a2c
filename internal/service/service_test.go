package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codefionn/vtsclient/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo() Service {
	return Func(func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
		return &data.ResponseEnvelope{RequestID: req.RequestID, MessageType: req.MessageType}, nil
	})
}

// tag appends name to the request's message type on the way in.
func tag(name string) Layer {
	return func(next Service) Service {
		return Func(func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
			clone := *req
			clone.MessageType += "/" + name
			return next.Call(ctx, &clone)
		})
	}
}

func TestChainOrder(t *testing.T) {
	svc := Chain(echo(), tag("outer"), nil, tag("inner"))

	resp, err := svc.Call(context.Background(), &data.RequestEnvelope{MessageType: "req"})
	require.NoError(t, err)
	assert.Equal(t, "req/outer/inner", resp.MessageType)
}

func TestTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, req *data.RequestEnvelope) (*data.ResponseEnvelope, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := Chain(slow, Timeout(10*time.Millisecond)).Call(context.Background(), &data.RequestEnvelope{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	resp, err := Chain(echo(), Timeout(0)).Call(context.Background(), &data.RequestEnvelope{RequestID: "1"})
	require.NoError(t, err)
	assert.Equal(t, data.RequestID("1"), resp.RequestID)
}

func TestFutureResolvesOnce(t *testing.T) {
	release := make(chan struct{})
	f := Async(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(short)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "await should give up without cancelling the call")

	close(release)
	<-f.Done()

	for i := 0; i < 2; i++ {
		v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
}

func TestResolved(t *testing.T) {
	boom := errors.New("boom")
	f := Resolved[string]("", boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("resolved future not done")
	}
	_, err := f.Await(context.Background())
	assert.Equal(t, boom, err)
}
