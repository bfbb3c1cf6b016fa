// Package protocol defines the websocket wire frames for live sessions.
// Client frames are type-discriminated JSON; microphone audio travels as
// binary PCM frames outside this package. Server frames wrap orchestrator
// events plus the handshake and error envelopes.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxloop-go/voxloop/pkg/core/live"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCMS16LE = "pcm_s16le"
)

// Control actions accepted in a ClientControl frame.
const (
	ActionStartListening = "start_listening"
	ActionStopListening  = "stop_listening"
	ActionEndCapture     = "end_capture"
	ActionUpdateVAD      = "update_vad"
)

// DecodeError describes a rejected client frame.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// AudioFormat describes the negotiated inbound audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello is the mandatory first frame of a session.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AudioIn         AudioFormat `json:"audio_in"`
	SystemPrompt    string      `json:"system_prompt,omitempty"`
	Model           string      `json:"model,omitempty"`
}

// ClientControl drives the orchestrator's listening lifecycle.
type ClientControl struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	VAD    *live.VADConfig `json:"vad,omitempty"`
}

// ClientText submits a discrete text turn, bypassing voice capture.
type ClientText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientSnapshot updates the latest image snapshot attached to the next
// voice turn.
type ClientSnapshot struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// DecodeClientMessage parses one JSON client frame by its type tag.
func DecodeClientMessage(data []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, badRequest("frame is not valid JSON", "")
	}

	switch probe.Type {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control frame", "")
		}
		switch msg.Action {
		case ActionStartListening, ActionStopListening, ActionEndCapture:
		case ActionUpdateVAD:
			if msg.VAD == nil {
				return nil, badRequest("update_vad requires a vad object", "vad")
			}
		default:
			return nil, badRequest("unknown control action", "action")
		}
		return msg, nil
	case "text":
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text is required", "text")
		}
		return msg, nil
	case "snapshot":
		var msg ClientSnapshot
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid snapshot frame", "")
		}
		if msg.Data == "" {
			return nil, badRequest("data is required", "data")
		}
		return msg, nil
	default:
		return nil, badRequest(fmt.Sprintf("unknown frame type %q", probe.Type), "type")
	}
}

// HelloAckLimits advertises session limits to the client.
type HelloAckLimits struct {
	MaxAudioFrameBytes  int `json:"max_audio_frame_bytes,omitempty"`
	MaxJSONMessageBytes int `json:"max_json_message_bytes,omitempty"`
	SilenceDurationMs   int `json:"silence_duration_ms,omitempty"`
	StartupGraceMs      int `json:"startup_grace_ms,omitempty"`
}

// ServerHelloAck acknowledges a valid hello.
type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	AudioIn         AudioFormat     `json:"audio_in"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

// ServerEvent wraps one orchestrator event for the wire.
type ServerEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// NewServerEvent wraps an orchestrator event in the wire envelope.
func NewServerEvent(e live.Event) ServerEvent {
	return ServerEvent{Type: "event", Event: e.EventType(), Data: e}
}

// ServerError reports a session-level failure.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
