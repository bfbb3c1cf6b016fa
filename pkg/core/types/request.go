package types

// ToolDefinition describes a callable tool for prompting purposes.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema *JSONSchema `json:"input_schema,omitempty"`
}

// GenerateRequest is one streaming generation request against the model
// transport.
type GenerateRequest struct {
	// Model is the provider-specific model identifier.
	Model string `json:"model,omitempty"`

	// Messages is the normalized conversation to send.
	Messages []Message `json:"messages"`

	// AudioModality requests base64 audio deltas alongside text.
	AudioModality bool `json:"audio_modality,omitempty"`

	// Tools advertised to the model. Tool calls come back in-band inside
	// the generated text, not as a separate wire field.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls response randomness.
	Temperature *float64 `json:"temperature,omitempty"`
}

// GenerationChunk is the unit emitted by the streaming protocol handler.
// Zero or more non-final chunks carry deltas; a successful generation ends
// with exactly one Finished chunk carrying the final usage, a failed one
// with a chunk whose Error is set.
type GenerationChunk struct {
	// TextDelta is an incremental piece of response text.
	TextDelta string `json:"text_delta,omitempty"`

	// AudioDelta is an incremental base64 audio payload, when the audio
	// modality was requested.
	AudioDelta string `json:"audio_delta,omitempty"`

	// ToolCalls is set on the single intermediate chunk emitted when the
	// aggregated response text parsed to tool calls.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResultsSummary is the textual summary of an executed tool round.
	ToolResultsSummary string `json:"tool_results_summary,omitempty"`

	// Finished marks the terminal chunk of a successful generation.
	Finished bool `json:"finished,omitempty"`

	// Usage is attached to the terminal chunk.
	Usage *Usage `json:"usage,omitempty"`

	// Error carries a turn-fatal failure, typically a transport error. A
	// chunk with Error set is terminal; no Finished chunk follows it.
	Error string `json:"error,omitempty"`
}
