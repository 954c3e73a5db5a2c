package gorillaws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectorEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New(echoServer(t)).Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ctx, transport.Text([]byte(`{"messageType":"APIStateRequest"}`))))
	frame, err := conn.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.FrameText, frame.Type)
	assert.Equal(t, `{"messageType":"APIStateRequest"}`, string(frame.Data))
}

func TestConnectorServerClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New(echoServer(t)).Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ctx, transport.Text([]byte("bye"))))
	_, err = conn.Recv(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestConnectorDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New("ws://127.0.0.1:1").Connect(ctx)
	assert.Error(t, err)
}

func TestSendAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := New(echoServer(t)).Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Equal(t, transport.ErrClosed, conn.Send(ctx, transport.Text([]byte("late"))))
}
