// Package events carries client lifecycle events and server notifications to
// subscribers.
package events

import (
	"fmt"

	"github.com/codefionn/vtsclient/internal/data"
)

// Kind identifies what happened
type Kind int

const (
	// ConnectionEstablished follows every successful connect
	ConnectionEstablished Kind = iota
	// ConnectionLost is published once per dropped connection
	ConnectionLost
	// NewAuthToken carries a token issued by the handshake
	NewAuthToken
	// Notification carries a server-pushed event
	Notification
	// Error reports a notification that could not be decoded
	Error
)

func (k Kind) String() string {
	switch k {
	case ConnectionEstablished:
		return "connection_established"
	case ConnectionLost:
		return "connection_lost"
	case NewAuthToken:
		return "new_auth_token"
	case Notification:
		return "notification"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one entry of the client event stream. Token is set for
// NewAuthToken, Notification for Notification and Err for ConnectionLost and
// Error.
type Event struct {
	Kind         Kind
	Token        string
	Notification *data.Event
	Err          error
}

func (e Event) String() string {
	switch e.Kind {
	case Notification:
		if e.Notification != nil {
			return fmt.Sprintf("%s(%s)", e.Kind, e.Notification.Type)
		}
	case ConnectionLost, Error:
		if e.Err != nil {
			return fmt.Sprintf("%s(%v)", e.Kind, e.Err)
		}
	}
	return e.Kind.String()
}

// FromEnvelope turns a notification envelope into a Notification event, or
// an Error event if its payload does not decode.
func FromEnvelope(env *data.ResponseEnvelope) Event {
	ev, err := env.ParseEvent()
	if err != nil {
		return Event{Kind: Error, Err: err}
	}
	return Event{Kind: Notification, Notification: ev}
}
