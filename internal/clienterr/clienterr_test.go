package clienterr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := New(KindConnectionLost, "mux.read", io.EOF)
	wrapped := fmt.Errorf("send APIStateRequest: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConnectionLost))
	assert.False(t, errors.Is(wrapped, ErrAuthentication))
	assert.True(t, errors.Is(wrapped, io.EOF))
	assert.Equal(t, KindConnectionLost, KindOf(wrapped))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", &Error{Kind: KindClosed}, "client closed"},
		{"with op", New(KindConnect, "retry.connect", nil), "retry.connect: connect error"},
		{"with cause", New(KindProtocol, "", errors.New("bad json")), "protocol error: bad json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindConnectionLost, "", nil)))
	assert.False(t, IsRetryable(New(KindAuthentication, "", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestConnectionLostKeepsTransportCause(t *testing.T) {
	ioErr := New(KindTransport, "mux.read", io.EOF)
	lost := New(KindConnectionLost, "mux", ioErr)

	assert.True(t, errors.Is(lost, ErrConnectionLost))
	assert.True(t, errors.Is(lost, ErrTransport))
	assert.Equal(t, KindConnectionLost, KindOf(lost))
	assert.True(t, IsRetryable(lost))
	assert.False(t, IsRetryable(ioErr), "a bare transport error has no call to retry")
	assert.True(t, errors.Is(lost, io.EOF))
	assert.Equal(t, "mux: connection lost: mux.read: transport error: EOF", lost.Error())
}
