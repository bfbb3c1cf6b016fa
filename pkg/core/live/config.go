package live

// OrchestratorState represents the current state of the orchestrator.
type OrchestratorState int

const (
	// StateIdle is the initial state before initialization.
	StateIdle OrchestratorState = iota
	// StateInitializing is the transient state while wiring capture and VAD.
	StateInitializing
	// StateReady means the orchestrator is wired but not capturing.
	StateReady
	// StateListening means capture is live and VAD is watching for voice.
	StateListening
	// StateVoiceActive means voice was detected and audio is being buffered.
	StateVoiceActive
	// StateProcessing means a turn was submitted and capture is paused.
	StateProcessing
	// StateError is entered on unrecoverable failure. Requires explicit
	// re-initialization.
	StateError
)

// String returns a human-readable state name.
func (s OrchestratorState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateListening:
		return "LISTENING"
	case StateVoiceActive:
		return "VOICE_ACTIVE"
	case StateProcessing:
		return "PROCESSING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// VADConfig configures volume-based voice activity detection.
type VADConfig struct {
	// Threshold is the volume level (0-100) above which a frame counts as
	// voice. A frame exactly at the threshold counts as silence.
	Threshold float64 `json:"threshold"`

	// SilenceDurationMs is how long volume must stay at or below the
	// threshold before an active voice segment ends.
	SilenceDurationMs int `json:"silence_duration_ms"`
}

// DefaultVADConfig returns a VADConfig with sensible defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:         5,
		SilenceDurationMs: 800,
	}
}

// clamped returns the config with the threshold bounded to [0,100] and the
// silence duration non-negative.
func (c VADConfig) clamped() VADConfig {
	if c.Threshold < 0 {
		c.Threshold = 0
	}
	if c.Threshold > 100 {
		c.Threshold = 100
	}
	if c.SilenceDurationMs < 0 {
		c.SilenceDurationMs = 0
	}
	return c
}

// OrchestratorConfig holds all configuration for the service orchestrator.
type OrchestratorConfig struct {
	// VAD configures voice activity detection.
	VAD VADConfig `json:"vad"`

	// Audio specifies the capture audio format.
	Audio AudioConfig `json:"audio"`

	// StartupGraceMs suppresses voice-start events fired within this window
	// after listening begins, so capture-startup transients do not trigger
	// a turn. Default: 800.
	StartupGraceMs int `json:"startup_grace_ms"`

	// MinAudioChunks is the minimum number of buffered chunks required to
	// submit a turn. Shorter activations are discarded silently.
	// Default: 3.
	MinAudioChunks int `json:"min_audio_chunks"`

	// MaxBufferMs caps how much voice audio is retained per activation.
	// Older audio is dropped when exceeded. Default: 60000.
	MaxBufferMs int `json:"max_buffer_ms"`
}

// DefaultOrchestratorConfig returns an OrchestratorConfig with sensible
// defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		VAD:            DefaultVADConfig(),
		Audio:          DefaultAudioConfig(),
		StartupGraceMs: 800,
		MinAudioChunks: 3,
		MaxBufferMs:    60000,
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard audio configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in
// milliseconds.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}
