// Package live turns a continuous capture stream into discrete
// conversational turns. The voice activity detector classifies volume
// samples into voice segments, and the orchestrator packages each segment,
// together with the latest image snapshot, into one multimodal agent turn
// while keeping detection paused for the duration of the model's reply.
package live

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// TurnAgent submits one multimodal turn and streams the response.
// Satisfied by *agent.Agent.
type TurnAgent interface {
	SendMultiModal(ctx context.Context, text string, images []types.ImageBlock, audioData string) (<-chan types.GenerationChunk, error)
}

// Capture is the device-capture collaborator. The orchestrator only starts
// and stops the capture session and pulls snapshots; reading volume and
// audio frames happens through ProcessAudioChunk.
type Capture interface {
	StartCapture(ctx context.Context) error
	StopCapture() error

	// Snapshot returns the most recent captured image, if any.
	Snapshot() (types.ImageBlock, bool)
}

// Orchestrator is the top-level state machine coordinating capture, voice
// detection, and agent turns.
//
// States: IDLE -> INITIALIZING -> READY -> LISTENING <-> VOICE_ACTIVE ->
// PROCESSING -> LISTENING, with ERROR reachable from anywhere on
// unrecoverable failure. While PROCESSING, voice detection is fully paused
// so the model's own audio reply cannot re-trigger capture; on resume the
// detector is recreated from scratch so stale timing state cannot cause an
// immediate spurious trigger.
type Orchestrator struct {
	cfg     OrchestratorConfig
	agent   TurnAgent
	capture Capture
	logger  zerolog.Logger

	mu             sync.Mutex
	state          OrchestratorState
	vad            *Detector
	buffer         *AudioBuffer
	listeningSince time.Time
	ctx            context.Context
	cancel         context.CancelFunc

	emitMu sync.Mutex
	events chan Event
	closed bool

	// now is swappable for tests.
	now func() time.Time
}

// New creates an orchestrator in the IDLE state.
func New(turnAgent TurnAgent, capture Capture, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	if cfg.StartupGraceMs <= 0 {
		cfg.StartupGraceMs = DefaultOrchestratorConfig().StartupGraceMs
	}
	if cfg.MinAudioChunks <= 0 {
		cfg.MinAudioChunks = DefaultOrchestratorConfig().MinAudioChunks
	}
	if cfg.MaxBufferMs <= 0 {
		cfg.MaxBufferMs = DefaultOrchestratorConfig().MaxBufferMs
	}
	if cfg.Audio.BytesPerSecond() == 0 {
		cfg.Audio = DefaultAudioConfig()
	}
	return &Orchestrator{
		cfg:     cfg,
		agent:   turnAgent,
		capture: capture,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
		state:   StateIdle,
		events:  make(chan Event, 100),
		now:     time.Now,
	}
}

// Events returns the channel for receiving orchestrator events.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() OrchestratorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Initialize wires the detector and audio buffer and moves to READY.
// Valid from IDLE, READY, and ERROR; re-initialization after ERROR is the
// only way out of that state.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateIdle, StateReady, StateError:
	default:
		state := o.state
		o.mu.Unlock()
		return errors.Errorf("cannot initialize from %s", state)
	}
	o.setStateLocked(StateInitializing)

	if o.agent == nil || o.capture == nil {
		o.setStateLocked(StateError)
		o.mu.Unlock()
		err := errors.New("orchestrator requires an agent and a capture collaborator")
		o.emit(&ErrorEvent{Code: "init_failed", Message: err.Error()})
		return err
	}

	if o.cancel != nil {
		o.cancel()
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.vad = NewDetector(o.cfg.VAD, &vadSink{o})
	o.buffer = NewAudioBuffer(o.cfg.Audio, o.cfg.MaxBufferMs)
	o.setStateLocked(StateReady)
	o.mu.Unlock()

	o.emit(&InitializedEvent{Config: &o.cfg})
	return nil
}

// StartListening starts the capture session and voice detection. Valid
// only from READY; a no-op when already LISTENING.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	o.mu.Lock()
	switch o.state {
	case StateListening:
		o.mu.Unlock()
		return nil
	case StateReady:
	default:
		state := o.state
		o.mu.Unlock()
		return errors.Errorf("cannot start listening from %s", state)
	}
	o.mu.Unlock()

	if err := o.capture.StartCapture(ctx); err != nil {
		// Listening never began, so READY is still accurate.
		o.emit(&ErrorEvent{Code: "capture_failed", Message: err.Error()})
		return errors.Wrap(err, "start capture")
	}

	o.mu.Lock()
	o.listeningSince = o.now()
	o.buffer.Clear()
	o.vad.StartDetection()
	o.setStateLocked(StateListening)
	o.mu.Unlock()

	o.emit(&ListeningStartedEvent{})
	return nil
}

// StopListening tears down the capture session and returns to READY,
// discarding any buffered audio. Valid from any capture-active state. An
// in-flight model turn is not aborted; its response still streams out, but
// listening does not resume afterwards.
func (o *Orchestrator) StopListening() error {
	o.mu.Lock()
	switch o.state {
	case StateListening, StateVoiceActive, StateProcessing:
	default:
		o.mu.Unlock()
		return nil
	}
	vad := o.vad
	o.buffer.Clear()
	o.setStateLocked(StateReady)
	o.mu.Unlock()

	vad.Dispose()
	if err := o.capture.StopCapture(); err != nil {
		o.logger.Warn().Err(err).Msg("stop capture failed")
	}
	o.emit(&ListeningStoppedEvent{})
	return nil
}

// ProcessAudioChunk feeds one PCM frame from the capture path. The frame's
// volume drives voice detection, and while a voice segment is open the
// frame is buffered for the next turn. Ignored outside capture-active
// states.
func (o *Orchestrator) ProcessAudioChunk(pcm []byte) {
	o.mu.Lock()
	if o.state != StateListening && o.state != StateVoiceActive {
		o.mu.Unlock()
		return
	}
	vad := o.vad
	o.mu.Unlock()

	vad.ProcessVolume(VolumeFromPCM(pcm))

	o.mu.Lock()
	if o.state == StateVoiceActive {
		o.buffer.Write(pcm)
	}
	o.mu.Unlock()
}

// EndVoiceCapture force-finalizes the current voice segment, as if silence
// had been detected. Used by manual push-to-talk style callers. A no-op
// outside VOICE_ACTIVE.
func (o *Orchestrator) EndVoiceCapture() {
	o.mu.Lock()
	vad := o.vad
	o.mu.Unlock()
	if vad != nil {
		// StopDetection synthesizes the voice-stop which drives
		// finalization; detection restarts with the next segment's
		// fresh detector.
		vad.StopDetection()
	}
}

// UpdateVADConfig applies new detection parameters at runtime. The updated
// config also survives detector recreation after each turn.
func (o *Orchestrator) UpdateVADConfig(cfg VADConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.VAD = cfg.clamped()
	if o.vad != nil {
		o.vad.UpdateConfig(cfg)
	}
}

// Dispose stops listening, cancels the turn context, and closes the event
// channel. The orchestrator cannot be reused afterwards.
func (o *Orchestrator) Dispose() {
	_ = o.StopListening()

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.setStateLocked(StateIdle)
	o.mu.Unlock()

	o.emitMu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.emitMu.Unlock()
}

// vadSink adapts detector callbacks onto the orchestrator without exposing
// them as public API.
type vadSink struct {
	o *Orchestrator
}

func (s *vadSink) OnVoiceStart(volume float64) {
	o := s.o
	o.mu.Lock()
	if o.state != StateListening {
		o.mu.Unlock()
		return
	}

	grace := time.Duration(o.cfg.StartupGraceMs) * time.Millisecond
	if o.now().Sub(o.listeningSince) < grace {
		o.mu.Unlock()
		o.logger.Debug().Float64("volume", volume).Msg("suppressing voice start inside startup grace window")
		return
	}

	o.buffer.Clear()
	o.setStateLocked(StateVoiceActive)
	o.mu.Unlock()

	o.emit(&VoiceStartEvent{Volume: volume})
}

func (s *vadSink) OnVoiceStop(durationMs int) {
	o := s.o
	o.mu.Lock()
	if o.state != StateVoiceActive {
		o.mu.Unlock()
		return
	}

	chunks := o.buffer.Chunks()
	if chunks < o.cfg.MinAudioChunks {
		o.buffer.Clear()
		// Re-arm in case the stop came from a force-finalize, which
		// disables detection on the way in.
		o.vad.StartDetection()
		o.setStateLocked(StateListening)
		o.mu.Unlock()

		o.emit(&VoiceStopEvent{DurationMs: durationMs})
		o.emit(&TurnDiscardedEvent{Reason: "too_short", Chunks: chunks})
		return
	}

	audio := o.buffer.Read()
	o.buffer.Clear()
	o.vad.StopDetection()
	o.setStateLocked(StateProcessing)
	ctx := o.ctx
	o.mu.Unlock()

	snapshot, hasSnapshot := o.capture.Snapshot()

	o.emit(&VoiceStopEvent{DurationMs: durationMs})
	o.emit(&TurnSubmittedEvent{
		AudioBytes:  len(audio),
		AudioChunks: chunks,
		HasSnapshot: hasSnapshot,
	})

	go o.runTurn(ctx, audio, snapshot, hasSnapshot)
}

// runTurn submits one multimodal turn, forwards the response stream as
// events, and resumes listening when the turn completes or fails.
func (o *Orchestrator) runTurn(ctx context.Context, audio []byte, snapshot types.ImageBlock, hasSnapshot bool) {
	var images []types.ImageBlock
	if hasSnapshot {
		images = append(images, snapshot)
	}
	audioData := base64.StdEncoding.EncodeToString(audio)

	ch, err := o.agent.SendMultiModal(ctx, "", images, audioData)
	if err != nil {
		o.logger.Error().Err(err).Msg("turn submission failed")
		o.emit(&ErrorEvent{Code: "turn_failed", Message: err.Error()})
		o.resumeListening()
		return
	}

	var usage *types.Usage
	var turnErr string
	for chunk := range ch {
		if chunk.TextDelta != "" {
			o.emit(&TextDeltaEvent{Delta: chunk.TextDelta})
		}
		if chunk.AudioDelta != "" {
			o.emit(&AudioDeltaEvent{Data: chunk.AudioDelta})
		}
		if len(chunk.ToolCalls) > 0 {
			o.emit(&ToolUseEvent{Calls: chunk.ToolCalls})
		}
		if chunk.ToolResultsSummary != "" {
			o.emit(&ToolResultEvent{Summary: chunk.ToolResultsSummary})
		}
		if chunk.Error != "" {
			turnErr = chunk.Error
		}
		if chunk.Finished {
			usage = chunk.Usage
		}
	}

	if turnErr != "" {
		o.logger.Error().Str("error", turnErr).Msg("turn failed mid-stream")
		o.emit(&ErrorEvent{Code: "turn_failed", Message: turnErr})
		o.resumeListening()
		return
	}

	o.emit(&TurnFinishedEvent{Usage: usage})
	o.resumeListening()
}

// resumeListening rebuilds the detector and re-enters LISTENING after a
// turn. A fresh detector instance guarantees no residual timing state from
// before the pause. Skipped if listening was stopped during the turn.
func (o *Orchestrator) resumeListening() {
	o.mu.Lock()
	if o.state != StateProcessing {
		o.mu.Unlock()
		return
	}

	old := o.vad
	o.vad = NewDetector(o.cfg.VAD, &vadSink{o})
	o.vad.StartDetection()
	o.buffer.Clear()
	o.listeningSince = o.now()
	o.setStateLocked(StateListening)
	o.mu.Unlock()

	old.Dispose()
}

// setStateLocked transitions the state and emits the change. Caller holds
// o.mu.
func (o *Orchestrator) setStateLocked(next OrchestratorState) {
	if o.state == next {
		return
	}
	prev := o.state
	o.state = next
	o.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("state changed")
	o.emit(&StateChangedEvent{From: prev, To: next})
}

// emit delivers an event without blocking; events are dropped when the
// consumer falls more than the buffer behind.
func (o *Orchestrator) emit(e Event) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.events <- e:
	default:
		o.logger.Warn().Str("event", e.EventType()).Msg("event channel full, dropping event")
	}
}
