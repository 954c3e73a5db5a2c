// Package codec converts between transport frames and API envelopes.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/codefionn/vtsclient/internal/clienterr"
	"github.com/codefionn/vtsclient/internal/data"
	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/tidwall/gjson"
)

// Codec encodes requests and decodes responses
type Codec interface {
	Encode(req *data.RequestEnvelope) (transport.Frame, error)
	Decode(frame transport.Frame) (*data.ResponseEnvelope, error)
}

// JSON is the codec spoken by VTube Studio: one JSON object per text frame
type JSON struct{}

// Encode marshals req into a text frame. Failures are clienterr.ErrEncode.
func (JSON) Encode(req *data.RequestEnvelope) (transport.Frame, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return transport.Frame{}, clienterr.New(clienterr.KindEncode, "codec.encode", err)
	}
	return transport.Text(raw), nil
}

// Decode unmarshals a text frame. Binary frames, invalid JSON and envelopes
// without a message type are clienterr.ErrProtocol.
func (JSON) Decode(frame transport.Frame) (*data.ResponseEnvelope, error) {
	if frame.Type != transport.FrameText {
		return nil, clienterr.Newf(clienterr.KindProtocol, "codec.decode", "unexpected %s frame", frame.Type)
	}

	var env data.ResponseEnvelope
	if err := json.Unmarshal(frame.Data, &env); err != nil {
		return nil, clienterr.New(clienterr.KindProtocol, "codec.decode", err)
	}
	if env.MessageType == "" {
		return nil, clienterr.Newf(clienterr.KindProtocol, "codec.decode", "missing messageType")
	}
	return &env, nil
}

// SalvageRequestID pulls the requestID out of a frame that failed to decode,
// so the caller waiting on it can be failed instead of left hanging. gjson
// scans only as far as it needs, so an id that precedes truncated or
// otherwise damaged JSON is still found.
func SalvageRequestID(frame transport.Frame) (data.RequestID, bool) {
	if len(frame.Data) == 0 {
		return "", false
	}
	id := gjson.GetBytes(frame.Data, "requestID")
	if id.Type != gjson.String || id.Str == "" {
		return "", false
	}
	return data.RequestID(id.Str), true
}

// Describe returns a short summary of frame for log lines
func Describe(frame transport.Frame) string {
	const maxLen = 120
	if frame.Type != transport.FrameText {
		return fmt.Sprintf("<%s frame, %d bytes>", frame.Type, len(frame.Data))
	}
	if len(frame.Data) > maxLen {
		return string(frame.Data[:maxLen]) + "..."
	}
	return string(frame.Data)
}
