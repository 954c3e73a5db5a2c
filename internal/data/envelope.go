// Package data holds the wire model of the VTube Studio public API: request
// and response envelopes, API errors and the typed message payloads carried
// inside them.
package data

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// APIName is the apiName field sent with every request
	APIName = "VTubeStudioPublicAPI"
	// APIVersion is the apiVersion field sent with every request
	APIVersion = "1.0"
	// APIErrorType is the message type of error responses
	APIErrorType = "APIError"

	eventSuffix = "Event"
)

// RequestID correlates a request with its response
type RequestID string

func (id RequestID) String() string {
	return string(id)
}

// Kind is the role an envelope plays on the wire
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Request is a typed request payload
type Request interface {
	RequestType() string
}

// Response is a typed response payload
type Response interface {
	ResponseType() string
}

// RequestEnvelope is a request as sent over the wire
type RequestEnvelope struct {
	APIName     string          `json:"apiName"`
	APIVersion  string          `json:"apiVersion"`
	RequestID   RequestID       `json:"requestID,omitempty"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// NewRequestEnvelope wraps req in an envelope. The request id is left empty;
// the multiplexer assigns one when the request is sent.
func NewRequestEnvelope(req Request) (*RequestEnvelope, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", req.RequestType(), err)
	}
	return &RequestEnvelope{
		APIName:     APIName,
		APIVersion:  APIVersion,
		MessageType: req.RequestType(),
		Data:        raw,
	}, nil
}

// NewRawRequestEnvelope builds an envelope from an arbitrary message type and
// pre-encoded data. Empty data is sent as an empty object.
func NewRawRequestEnvelope(messageType string, raw json.RawMessage) *RequestEnvelope {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return &RequestEnvelope{
		APIName:     APIName,
		APIVersion:  APIVersion,
		MessageType: messageType,
		Data:        raw,
	}
}

// Kind always reports KindRequest
func (e *RequestEnvelope) Kind() Kind {
	return KindRequest
}

// WithID returns a shallow copy of the envelope carrying id.
func (e *RequestEnvelope) WithID(id RequestID) *RequestEnvelope {
	clone := *e
	clone.RequestID = id
	return &clone
}

// ResponseEnvelope is a response or event as received over the wire
type ResponseEnvelope struct {
	APIName     string          `json:"apiName"`
	APIVersion  string          `json:"apiVersion"`
	Timestamp   int64           `json:"timestamp"`
	RequestID   RequestID       `json:"requestID"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// NewResponseEnvelope wraps resp in an envelope answering id.
func NewResponseEnvelope(id RequestID, resp Response) (*ResponseEnvelope, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", resp.ResponseType(), err)
	}
	return newResponse(id, resp.ResponseType(), raw), nil
}

// NewErrorResponse builds an APIError envelope answering id.
func NewErrorResponse(id RequestID, errorID ErrorID, message string) *ResponseEnvelope {
	raw, _ := json.Marshal(APIError{ErrorID: errorID, Message: message})
	return newResponse(id, APIErrorType, raw)
}

// NewEventEnvelope wraps an event payload. Events carry no meaningful id.
func NewEventEnvelope(ev EventData) (*ResponseEnvelope, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ev.EventType(), err)
	}
	return newResponse("", ev.EventType(), raw), nil
}

func newResponse(id RequestID, messageType string, raw json.RawMessage) *ResponseEnvelope {
	return &ResponseEnvelope{
		APIName:     APIName,
		APIVersion:  APIVersion,
		Timestamp:   time.Now().UnixMilli(),
		RequestID:   id,
		MessageType: messageType,
		Data:        raw,
	}
}

// IsEventType reports whether messageType names a server-pushed event
func IsEventType(messageType string) bool {
	return strings.HasSuffix(messageType, eventSuffix)
}

// Kind reports KindNotification for events and KindResponse otherwise.
func (e *ResponseEnvelope) Kind() Kind {
	if IsEventType(e.MessageType) {
		return KindNotification
	}
	return KindResponse
}

// IsAPIError reports whether the envelope carries an APIError
func (e *ResponseEnvelope) IsAPIError() bool {
	return e.MessageType == APIErrorType
}

// APIError decodes the error payload. ok is false for non-error envelopes.
// An error payload that cannot be decoded is reported as an internal server
// error carrying the raw data.
func (e *ResponseEnvelope) APIError() (apiErr *APIError, ok bool) {
	if !e.IsAPIError() {
		return nil, false
	}
	apiErr = &APIError{}
	if err := json.Unmarshal(e.Data, apiErr); err != nil {
		return &APIError{ErrorID: ErrInternalServerError, Message: string(e.Data)}, true
	}
	return apiErr, true
}

// IsUnauthenticated reports whether the envelope is an APIError with
// ErrRequestRequiresAuthentication.
func (e *ResponseEnvelope) IsUnauthenticated() bool {
	apiErr, ok := e.APIError()
	return ok && apiErr.IsUnauthenticated()
}

// Parse decodes the payload into resp. APIError envelopes return the
// *APIError; a message type other than resp's returns an
// *UnexpectedResponseError.
func (e *ResponseEnvelope) Parse(resp Response) error {
	if apiErr, ok := e.APIError(); ok {
		return apiErr
	}
	if e.MessageType != resp.ResponseType() {
		return &UnexpectedResponseError{Expected: resp.ResponseType(), Received: e.MessageType}
	}
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, resp); err != nil {
		return fmt.Errorf("failed to decode %s: %w", e.MessageType, err)
	}
	return nil
}

// UnexpectedResponseError is returned when a response has a different
// message type than the caller asked for
type UnexpectedResponseError struct {
	Expected string
	Received string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("received unexpected response (expected %s, received %s)", e.Expected, e.Received)
}

// APIError is the payload of an APIError response
type APIError struct {
	ErrorID ErrorID `json:"errorID"`
	Message string  `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("APIError %s: %s", e.ErrorID, e.Message)
}

// IsUnauthenticated reports whether the session must authenticate first
func (e *APIError) IsUnauthenticated() bool {
	return e.ErrorID.IsUnauthenticated()
}
