package live

import (
	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// Event is the interface for all orchestrator events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// InitializedEvent is emitted when the orchestrator reaches READY.
type InitializedEvent struct {
	Config *OrchestratorConfig `json:"config"`
}

func (e *InitializedEvent) EventType() string { return "initialized" }

// StateChangedEvent is emitted when the orchestrator state changes.
type StateChangedEvent struct {
	From OrchestratorState `json:"from"`
	To   OrchestratorState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ListeningStartedEvent is emitted when capture and VAD go live.
type ListeningStartedEvent struct{}

func (e *ListeningStartedEvent) EventType() string { return "listening.started" }

// ListeningStoppedEvent is emitted when the orchestrator returns to READY.
type ListeningStoppedEvent struct{}

func (e *ListeningStoppedEvent) EventType() string { return "listening.stopped" }

// VoiceStartEvent is emitted when a voice segment begins.
type VoiceStartEvent struct {
	Volume float64 `json:"volume"`
}

func (e *VoiceStartEvent) EventType() string { return "voice.start" }

// VoiceStopEvent is emitted when a voice segment ends.
type VoiceStopEvent struct {
	DurationMs int `json:"duration_ms"`
}

func (e *VoiceStopEvent) EventType() string { return "voice.stop" }

// TurnDiscardedEvent is emitted when a voice segment is dropped without
// invoking the model, typically because too little audio was captured.
type TurnDiscardedEvent struct {
	Reason string `json:"reason"`
	Chunks int    `json:"chunks"`
}

func (e *TurnDiscardedEvent) EventType() string { return "turn.discarded" }

// TurnSubmittedEvent is emitted when a multimodal turn is handed to the
// agent and the orchestrator enters PROCESSING.
type TurnSubmittedEvent struct {
	AudioBytes  int  `json:"audio_bytes"`
	AudioChunks int  `json:"audio_chunks"`
	HasSnapshot bool `json:"has_snapshot"`
}

func (e *TurnSubmittedEvent) EventType() string { return "turn.submitted" }

// TurnFinishedEvent is emitted when the model's response completes and the
// orchestrator is about to resume listening.
type TurnFinishedEvent struct {
	Usage *types.Usage `json:"usage,omitempty"`
}

func (e *TurnFinishedEvent) EventType() string { return "turn.finished" }

// TextDeltaEvent carries an incremental piece of response text.
type TextDeltaEvent struct {
	Delta string `json:"delta"`
}

func (e *TextDeltaEvent) EventType() string { return "text.delta" }

// AudioDeltaEvent carries an incremental base64 audio payload of the
// model's spoken reply.
type AudioDeltaEvent struct {
	Data string `json:"data"`
}

func (e *AudioDeltaEvent) EventType() string { return "audio.delta" }

// ToolUseEvent is emitted when the model requests tool calls.
type ToolUseEvent struct {
	Calls []types.ToolCall `json:"calls"`
}

func (e *ToolUseEvent) EventType() string { return "tool.use" }

// ToolResultEvent carries the aggregated summary of an executed tool round.
type ToolResultEvent struct {
	Summary string `json:"summary"`
}

func (e *ToolResultEvent) EventType() string { return "tool.result" }

// ErrorEvent is emitted when an error occurs.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) EventType() string { return "error" }
