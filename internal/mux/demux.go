package mux

import "github.com/codefionn/vtsclient/internal/data"

// Route is where an inbound envelope goes
type Route int

const (
	// RouteResponse resolves an outstanding call
	RouteResponse Route = iota
	// RouteEvent goes to event subscribers
	RouteEvent
	// RouteOrphan is a response nobody is waiting for; it is logged and dropped
	RouteOrphan
)

func (r Route) String() string {
	switch r {
	case RouteResponse:
		return "response"
	case RouteEvent:
		return "event"
	case RouteOrphan:
		return "orphan"
	default:
		return "unknown"
	}
}

// Classify decides the route of env. Event message types never answer a
// request, so they are routed as events even if the server-chosen requestID
// happens to match an outstanding id. Everything else is a response: to a
// pending call if isPending recognizes its id, otherwise an orphan.
func Classify(env *data.ResponseEnvelope, isPending func(data.RequestID) bool) Route {
	if env.Kind() == data.KindNotification {
		return RouteEvent
	}
	if env.RequestID != "" && isPending(env.RequestID) {
		return RouteResponse
	}
	return RouteOrphan
}
