package data

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestEnvelope(t *testing.T) {
	env, err := NewRequestEnvelope(HotkeyTriggerRequest{HotkeyID: "abc"})
	require.NoError(t, err)

	raw, err := json.Marshal(env.WithID("7"))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"apiName": "VTubeStudioPublicAPI",
		"apiVersion": "1.0",
		"requestID": "7",
		"messageType": "HotkeyTriggerRequest",
		"data": {"hotkeyID": "abc"}
	}`, string(raw))
	assert.Empty(t, env.RequestID, "WithID must not modify the original")
}

func TestResponseEnvelopeKind(t *testing.T) {
	tests := []struct {
		messageType string
		want        Kind
	}{
		{"APIStateResponse", KindResponse},
		{"APIError", KindResponse},
		{"TestEvent", KindNotification},
		{"SomeFutureEvent", KindNotification},
	}

	for _, tt := range tests {
		t.Run(tt.messageType, func(t *testing.T) {
			env := &ResponseEnvelope{MessageType: tt.messageType}
			assert.Equal(t, tt.want, env.Kind())
		})
	}
}

func TestParseResponse(t *testing.T) {
	env, err := NewResponseEnvelope("1", &APIStateResponse{Active: true, VTubeStudioVersion: "1.28.0"})
	require.NoError(t, err)

	var resp APIStateResponse
	require.NoError(t, env.Parse(&resp))
	assert.True(t, resp.Active)
	assert.Equal(t, "1.28.0", resp.VTubeStudioVersion)
}

func TestParseUnexpectedResponse(t *testing.T) {
	env, err := NewResponseEnvelope("1", &StatisticsResponse{})
	require.NoError(t, err)

	var resp APIStateResponse
	err = env.Parse(&resp)

	var unexpected *UnexpectedResponseError
	require.True(t, errors.As(err, &unexpected))
	assert.Equal(t, "APIStateResponse", unexpected.Expected)
	assert.Equal(t, "StatisticsResponse", unexpected.Received)
}

func TestParseAPIError(t *testing.T) {
	env := NewErrorResponse("1", ErrRequestRequiresAuthentication, "not authenticated")

	assert.True(t, env.IsAPIError())
	assert.True(t, env.IsUnauthenticated())

	var resp APIStateResponse
	err := env.Parse(&resp)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrRequestRequiresAuthentication, apiErr.ErrorID)
	assert.Equal(t, "APIError 8 (RequestRequiresAuthentication): not authenticated", apiErr.Error())
}

func TestErrorIDString(t *testing.T) {
	assert.Equal(t, "50 (TokenRequestDenied)", ErrTokenRequestDenied.String())
	assert.Equal(t, "9999", ErrorID(9999).String())
	assert.False(t, ErrTokenRequestDenied.IsUnauthenticated())
}

func TestParseEvent(t *testing.T) {
	env, err := NewEventEnvelope(&TestEvent{YourTestMessage: "hello", Counter: 3})
	require.NoError(t, err)
	assert.Equal(t, KindNotification, env.Kind())

	ev, err := env.ParseEvent()
	require.NoError(t, err)
	require.True(t, ev.Known())

	data, ok := ev.Data.(*TestEvent)
	require.True(t, ok)
	assert.Equal(t, "hello", data.YourTestMessage)
	assert.Equal(t, 3, data.Counter)
}

func TestParseUnknownEvent(t *testing.T) {
	env := &ResponseEnvelope{MessageType: "ItemDroppedEvent", Data: json.RawMessage(`{"x":1}`)}

	ev, err := env.ParseEvent()
	require.NoError(t, err)
	assert.False(t, ev.Known())
	assert.Equal(t, "ItemDroppedEvent", ev.Type)
	assert.JSONEq(t, `{"x":1}`, string(ev.Raw))
}

func TestEventSubscriptionConstructors(t *testing.T) {
	req, err := Subscribe(TestEventConfig{TestMessageForEvent: "ping"})
	require.NoError(t, err)
	assert.True(t, req.Subscribe)
	assert.Equal(t, TypeTestEvent, req.EventName)
	assert.JSONEq(t, `{"testMessageForEvent":"ping"}`, string(req.Config))

	unsub := Unsubscribe(TypeModelMovedEvent)
	assert.False(t, unsub.Subscribe)
	assert.Equal(t, TypeModelMovedEvent, unsub.EventName)

	raw, err := json.Marshal(UnsubscribeAll())
	require.NoError(t, err)
	assert.JSONEq(t, `{"subscribe":false}`, string(raw))
}
