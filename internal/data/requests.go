package data

import (
	"encoding/json"
	"fmt"
)

// Message types used by the authentication handshake.
const (
	TypeAPIStateRequest            = "APIStateRequest"
	TypeAuthenticationTokenRequest = "AuthenticationTokenRequest"
	TypeAuthenticationRequest      = "AuthenticationRequest"
)

// APIStateRequest asks for the current state of the API.
type APIStateRequest struct{}

func (APIStateRequest) RequestType() string { return TypeAPIStateRequest }

type APIStateResponse struct {
	Active                      bool   `json:"active"`
	VTubeStudioVersion          string `json:"vTubeStudioVersion"`
	CurrentSessionAuthenticated bool   `json:"currentSessionAuthenticated"`
}

func (*APIStateResponse) ResponseType() string { return "APIStateResponse" }

// AuthenticationTokenRequest asks the user to grant the plugin a token.
// VTube Studio shows a popup and answers once the user decides.
type AuthenticationTokenRequest struct {
	PluginName      string `json:"pluginName"`
	PluginDeveloper string `json:"pluginDeveloper"`
	// PluginIcon is a base64 encoded 128x128 PNG
	PluginIcon string `json:"pluginIcon,omitempty"`
}

func (AuthenticationTokenRequest) RequestType() string { return TypeAuthenticationTokenRequest }

type AuthenticationTokenResponse struct {
	AuthenticationToken string `json:"authenticationToken"`
}

func (*AuthenticationTokenResponse) ResponseType() string { return "AuthenticationTokenResponse" }

// AuthenticationRequest authenticates the session with a token.
type AuthenticationRequest struct {
	PluginName          string `json:"pluginName"`
	PluginDeveloper     string `json:"pluginDeveloper"`
	AuthenticationToken string `json:"authenticationToken"`
}

func (AuthenticationRequest) RequestType() string { return TypeAuthenticationRequest }

type AuthenticationResponse struct {
	Authenticated bool   `json:"authenticated"`
	Reason        string `json:"reason"`
}

func (*AuthenticationResponse) ResponseType() string { return "AuthenticationResponse" }

type StatisticsRequest struct{}

func (StatisticsRequest) RequestType() string { return "StatisticsRequest" }

type StatisticsResponse struct {
	// Uptime in milliseconds
	Uptime             int64  `json:"uptime"`
	Framerate          int    `json:"framerate"`
	VTubeStudioVersion string `json:"vTubeStudioVersion"`
	AllowedPlugins     int    `json:"allowedPlugins"`
	ConnectedPlugins   int    `json:"connectedPlugins"`
	StartedWithSteam   bool   `json:"startedWithSteam"`
	WindowWidth        int    `json:"windowWidth"`
	WindowHeight       int    `json:"windowHeight"`
	WindowIsFullscreen bool   `json:"windowIsFullscreen"`
}

func (*StatisticsResponse) ResponseType() string { return "StatisticsResponse" }

type VTSFolderInfoRequest struct{}

func (VTSFolderInfoRequest) RequestType() string { return "VTSFolderInfoRequest" }

type VTSFolderInfoResponse struct {
	Models      string `json:"models"`
	Backgrounds string `json:"backgrounds"`
	Items       string `json:"items"`
	Config      string `json:"config"`
	Logs        string `json:"logs"`
	Backup      string `json:"backup"`
}

func (*VTSFolderInfoResponse) ResponseType() string { return "VTSFolderInfoResponse" }

// ModelPosition is the placement of a model in the VTube Studio window
type ModelPosition struct {
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
	Rotation  float64 `json:"rotation"`
	Size      float64 `json:"size"`
}

type CurrentModelRequest struct{}

func (CurrentModelRequest) RequestType() string { return "CurrentModelRequest" }

type CurrentModelResponse struct {
	ModelLoaded              bool          `json:"modelLoaded"`
	ModelName                string        `json:"modelName"`
	ModelID                  string        `json:"modelID"`
	VTSModelName             string        `json:"vtsModelName"`
	VTSModelIconName         string        `json:"vtsModelIconName"`
	Live2DModelName          string        `json:"live2DModelName"`
	ModelLoadTime            int64         `json:"modelLoadTime"`
	TimeSinceModelLoaded     int64         `json:"timeSinceModelLoaded"`
	NumberOfLive2DParameters int           `json:"numberOfLive2DParameters"`
	NumberOfLive2DArtmeshes  int           `json:"numberOfLive2DArtmeshes"`
	HasPhysicsFile           bool          `json:"hasPhysicsFile"`
	NumberOfTextures         int           `json:"numberOfTextures"`
	TextureResolution        int           `json:"textureResolution"`
	ModelPosition            ModelPosition `json:"modelPosition"`
}

func (*CurrentModelResponse) ResponseType() string { return "CurrentModelResponse" }

type Model struct {
	ModelLoaded      bool   `json:"modelLoaded"`
	ModelName        string `json:"modelName"`
	ModelID          string `json:"modelID"`
	VTSModelName     string `json:"vtsModelName"`
	VTSModelIconName string `json:"vtsModelIconName"`
}

type AvailableModelsRequest struct{}

func (AvailableModelsRequest) RequestType() string { return "AvailableModelsRequest" }

type AvailableModelsResponse struct {
	NumberOfModels  int     `json:"numberOfModels"`
	AvailableModels []Model `json:"availableModels"`
}

func (*AvailableModelsResponse) ResponseType() string { return "AvailableModelsResponse" }

type ModelLoadRequest struct {
	ModelID string `json:"modelID"`
}

func (ModelLoadRequest) RequestType() string { return "ModelLoadRequest" }

type ModelLoadResponse struct {
	ModelID string `json:"modelID"`
}

func (*ModelLoadResponse) ResponseType() string { return "ModelLoadResponse" }

// MoveModelRequest moves the loaded model. Nil fields are left unchanged.
type MoveModelRequest struct {
	// TimeInSeconds is the animation length, at most 2
	TimeInSeconds            float64  `json:"timeInSeconds"`
	ValuesAreRelativeToModel bool     `json:"valuesAreRelativeToModel"`
	PositionX                *float64 `json:"positionX,omitempty"`
	PositionY                *float64 `json:"positionY,omitempty"`
	Rotation                 *float64 `json:"rotation,omitempty"`
	Size                     *float64 `json:"size,omitempty"`
}

func (MoveModelRequest) RequestType() string { return "MoveModelRequest" }

type MoveModelResponse struct{}

func (*MoveModelResponse) ResponseType() string { return "MoveModelResponse" }

type Hotkey struct {
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	File             string   `json:"file"`
	HotkeyID         string   `json:"hotkeyID"`
	Description      string   `json:"description,omitempty"`
	KeyCombination   []string `json:"keyCombination"`
	OnScreenButtonID int      `json:"onScreenButtonID"`
}

// HotkeysInCurrentModelRequest lists hotkeys of the current model, or of
// ModelID when set.
type HotkeysInCurrentModelRequest struct {
	ModelID            string `json:"modelID,omitempty"`
	Live2DItemFileName string `json:"live2DItemFileName,omitempty"`
}

func (HotkeysInCurrentModelRequest) RequestType() string { return "HotkeysInCurrentModelRequest" }

type HotkeysInCurrentModelResponse struct {
	ModelLoaded      bool     `json:"modelLoaded"`
	ModelName        string   `json:"modelName"`
	ModelID          string   `json:"modelID"`
	AvailableHotkeys []Hotkey `json:"availableHotkeys"`
}

func (*HotkeysInCurrentModelResponse) ResponseType() string { return "HotkeysInCurrentModelResponse" }

type HotkeyTriggerRequest struct {
	HotkeyID       string `json:"hotkeyID"`
	ItemInstanceID string `json:"itemInstanceID,omitempty"`
}

func (HotkeyTriggerRequest) RequestType() string { return "HotkeyTriggerRequest" }

type HotkeyTriggerResponse struct {
	HotkeyID string `json:"hotkeyID"`
}

func (*HotkeyTriggerResponse) ResponseType() string { return "HotkeyTriggerResponse" }

type Parameter struct {
	Name         string  `json:"name"`
	AddedBy      string  `json:"addedBy,omitempty"`
	Value        float64 `json:"value"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	DefaultValue float64 `json:"defaultValue"`
}

type InputParameterListRequest struct{}

func (InputParameterListRequest) RequestType() string { return "InputParameterListRequest" }

type InputParameterListResponse struct {
	ModelLoaded       bool        `json:"modelLoaded"`
	ModelName         string      `json:"modelName"`
	ModelID           string      `json:"modelID"`
	CustomParameters  []Parameter `json:"customParameters"`
	DefaultParameters []Parameter `json:"defaultParameters"`
}

func (*InputParameterListResponse) ResponseType() string { return "InputParameterListResponse" }

type ParameterValueRequest struct {
	Name string `json:"name"`
}

func (ParameterValueRequest) RequestType() string { return "ParameterValueRequest" }

type ParameterValueResponse struct {
	Parameter
}

func (*ParameterValueResponse) ResponseType() string { return "ParameterValueResponse" }

// Injection modes
const (
	InjectModeSet = "set"
	InjectModeAdd = "add"
)

type ParameterValue struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
	// Weight against tracking data, between 0 and 1
	Weight *float64 `json:"weight,omitempty"`
}

type InjectParameterDataRequest struct {
	ParameterValues []ParameterValue `json:"parameterValues"`
	FaceFound       bool             `json:"faceFound"`
	Mode            string           `json:"mode,omitempty"`
}

func (InjectParameterDataRequest) RequestType() string { return "InjectParameterDataRequest" }

type InjectParameterDataResponse struct{}

func (*InjectParameterDataResponse) ResponseType() string { return "InjectParameterDataResponse" }

// EventSubscriptionRequest subscribes to or unsubscribes from events. Use
// Subscribe, Unsubscribe or UnsubscribeAll instead of filling it by hand.
type EventSubscriptionRequest struct {
	Subscribe bool            `json:"subscribe"`
	EventName string          `json:"eventName,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

func (EventSubscriptionRequest) RequestType() string { return "EventSubscriptionRequest" }

type EventSubscriptionResponse struct {
	SubscribedEventCount int      `json:"subscribedEventCount"`
	SubscribedEvents     []string `json:"subscribedEvents"`
}

func (*EventSubscriptionResponse) ResponseType() string { return "EventSubscriptionResponse" }

// Subscribe builds a subscription for cfg's event type.
func Subscribe(cfg EventConfig) (*EventSubscriptionRequest, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s config: %w", cfg.EventType(), err)
	}
	return &EventSubscriptionRequest{Subscribe: true, EventName: cfg.EventType(), Config: raw}, nil
}

// Unsubscribe builds a request dropping the subscription to eventType.
func Unsubscribe(eventType string) *EventSubscriptionRequest {
	return &EventSubscriptionRequest{EventName: eventType}
}

// UnsubscribeAll builds a request dropping every subscription.
func UnsubscribeAll() *EventSubscriptionRequest {
	return &EventSubscriptionRequest{}
}
