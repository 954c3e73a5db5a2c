// Package auth authenticates plugin sessions against VTube Studio and
// transparently re-authenticates when a request is rejected.
package auth

import (
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/securemem"
)

// Identity is how the plugin presents itself in the token popup
type Identity struct {
	PluginName      string
	PluginDeveloper string
	// PluginIcon is an optional base64 encoded 128x128 PNG
	PluginIcon string
}

func (id Identity) tokenRequest() data.AuthenticationTokenRequest {
	return data.AuthenticationTokenRequest{
		PluginName:      id.PluginName,
		PluginDeveloper: id.PluginDeveloper,
		PluginIcon:      id.PluginIcon,
	}
}

func (id Identity) authRequest(token string) data.AuthenticationRequest {
	return data.AuthenticationRequest{
		PluginName:          id.PluginName,
		PluginDeveloper:     id.PluginDeveloper,
		AuthenticationToken: token,
	}
}

// State holds the authentication token of one client. It outlives
// connections and is only ever replaced by a newer token.
type State struct {
	token *securemem.Slot
}

// NewState starts with initial, which may be empty
func NewState(initial string) *State {
	return &State{token: securemem.NewSlot(initial)}
}

// Token returns the current token or ""
func (s *State) Token() string {
	return s.token.Get()
}

// HasToken reports whether a token is stored
func (s *State) HasToken() bool {
	return !s.token.IsEmpty()
}

// Set stores token and reports whether it differs from the previous one
func (s *State) Set(token string) bool {
	return s.token.Swap(token)
}

// exempt lists requests that never need an authenticated session
var exempt = map[string]bool{
	data.TypeAPIStateRequest:            true,
	data.TypeAuthenticationTokenRequest: true,
	data.TypeAuthenticationRequest:      true,
}

// RequiresAuth reports whether messageType must be sent on an authenticated
// session
func RequiresAuth(messageType string) bool {
	return !exempt[messageType]
}
