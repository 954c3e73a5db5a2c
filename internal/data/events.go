package data

import (
	"encoding/json"
	"fmt"
)

// EventData is a typed event payload
type EventData interface {
	EventType() string
}

// EventConfig is the subscription config of one event type
type EventConfig interface {
	EventType() string
}

// Event is a decoded notification. Data is nil when the event type is not
// known to this package; Raw always holds the undecoded payload.
type Event struct {
	Type      string
	Timestamp int64
	Data      EventData
	Raw       json.RawMessage
}

// Known reports whether Data was decoded into a typed payload
func (e *Event) Known() bool {
	return e.Data != nil
}

const (
	TypeTestEvent                  = "TestEvent"
	TypeModelLoadedEvent           = "ModelLoadedEvent"
	TypeTrackingStatusChangedEvent = "TrackingStatusChangedEvent"
	TypeBackgroundChangedEvent     = "BackgroundChangedEvent"
	TypeModelConfigChangedEvent    = "ModelConfigChangedEvent"
	TypeModelMovedEvent            = "ModelMovedEvent"
	TypeHotkeyTriggeredEvent       = "HotkeyTriggeredEvent"
)

var eventTypes = map[string]func() EventData{
	TypeTestEvent:                  func() EventData { return &TestEvent{} },
	TypeModelLoadedEvent:           func() EventData { return &ModelLoadedEvent{} },
	TypeTrackingStatusChangedEvent: func() EventData { return &TrackingStatusChangedEvent{} },
	TypeBackgroundChangedEvent:     func() EventData { return &BackgroundChangedEvent{} },
	TypeModelConfigChangedEvent:    func() EventData { return &ModelConfigChangedEvent{} },
	TypeModelMovedEvent:            func() EventData { return &ModelMovedEvent{} },
	TypeHotkeyTriggeredEvent:       func() EventData { return &HotkeyTriggeredEvent{} },
}

// ParseEvent decodes a notification envelope. Unknown event types are not an
// error; they come back with a nil Data and the raw payload.
func (e *ResponseEnvelope) ParseEvent() (*Event, error) {
	if apiErr, ok := e.APIError(); ok {
		return nil, apiErr
	}
	if !IsEventType(e.MessageType) {
		return nil, &UnexpectedResponseError{Expected: "event", Received: e.MessageType}
	}

	ev := &Event{Type: e.MessageType, Timestamp: e.Timestamp, Raw: e.Data}
	newData, ok := eventTypes[e.MessageType]
	if !ok {
		return ev, nil
	}

	payload := newData()
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, payload); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", e.MessageType, err)
		}
	}
	ev.Data = payload
	return ev, nil
}

// TestEventConfig asks VTube Studio to send a TestEvent every second
type TestEventConfig struct {
	TestMessageForEvent string `json:"testMessageForEvent"`
}

func (TestEventConfig) EventType() string { return TypeTestEvent }

type TestEvent struct {
	YourTestMessage string `json:"yourTestMessage"`
	// Counter is the number of seconds since VTube Studio started
	Counter int `json:"counter"`
}

func (*TestEvent) EventType() string { return TypeTestEvent }

// ModelLoadedEventConfig optionally restricts the event to some model ids
type ModelLoadedEventConfig struct {
	ModelID []string `json:"modelID,omitempty"`
}

func (ModelLoadedEventConfig) EventType() string { return TypeModelLoadedEvent }

type ModelLoadedEvent struct {
	ModelLoaded bool   `json:"modelLoaded"`
	ModelName   string `json:"modelName"`
	ModelID     string `json:"modelID"`
}

func (*ModelLoadedEvent) EventType() string { return TypeModelLoadedEvent }

type TrackingStatusChangedEventConfig struct{}

func (TrackingStatusChangedEventConfig) EventType() string { return TypeTrackingStatusChangedEvent }

type TrackingStatusChangedEvent struct {
	FaceFound      bool `json:"faceFound"`
	LeftHandFound  bool `json:"leftHandFound"`
	RightHandFound bool `json:"rightHandFound"`
}

func (*TrackingStatusChangedEvent) EventType() string { return TypeTrackingStatusChangedEvent }

type BackgroundChangedEventConfig struct{}

func (BackgroundChangedEventConfig) EventType() string { return TypeBackgroundChangedEvent }

type BackgroundChangedEvent struct {
	BackgroundName string `json:"backgroundName"`
}

func (*BackgroundChangedEvent) EventType() string { return TypeBackgroundChangedEvent }

type ModelConfigChangedEventConfig struct{}

func (ModelConfigChangedEventConfig) EventType() string { return TypeModelConfigChangedEvent }

type ModelConfigChangedEvent struct {
	ModelID             string `json:"modelID"`
	ModelName           string `json:"modelName"`
	HotkeyConfigChanged bool   `json:"hotkeyConfigChanged"`
}

func (*ModelConfigChangedEvent) EventType() string { return TypeModelConfigChangedEvent }

type ModelMovedEventConfig struct{}

func (ModelMovedEventConfig) EventType() string { return TypeModelMovedEvent }

type ModelMovedEvent struct {
	ModelID       string        `json:"modelID"`
	ModelName     string        `json:"modelName"`
	ModelPosition ModelPosition `json:"modelPosition"`
}

func (*ModelMovedEvent) EventType() string { return TypeModelMovedEvent }

type HotkeyTriggeredEventConfig struct {
	OnlyForAction               string `json:"onlyForAction,omitempty"`
	IgnoreHotkeysTriggeredByAPI bool   `json:"ignoreHotkeysTriggeredByAPI"`
}

func (HotkeyTriggeredEventConfig) EventType() string { return TypeHotkeyTriggeredEvent }

type HotkeyTriggeredEvent struct {
	HotkeyID             string `json:"hotkeyID"`
	HotkeyName           string `json:"hotkeyName"`
	HotkeyAction         string `json:"hotkeyAction"`
	HotkeyFile           string `json:"hotkeyFile"`
	HotkeyTriggeredByAPI bool   `json:"hotkeyTriggeredByAPI"`
	ModelID              string `json:"modelID"`
	ModelName            string `json:"modelName"`
	IsLive2DItem         bool   `json:"isLive2DItem"`
}

func (*HotkeyTriggeredEvent) EventType() string { return TypeHotkeyTriggeredEvent }
