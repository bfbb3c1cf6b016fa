package live

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

type turnCall struct {
	text      string
	images    []types.ImageBlock
	audioData string
}

// fakeAgent records turn submissions and streams a scripted response when
// released.
type fakeAgent struct {
	mu      sync.Mutex
	calls   []turnCall
	chunks  []types.GenerationChunk
	release chan struct{}
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		chunks: []types.GenerationChunk{
			{TextDelta: "hello"},
			{Finished: true, Usage: &types.Usage{TotalTokens: 7}},
		},
		release: make(chan struct{}),
	}
}

func (a *fakeAgent) SendMultiModal(_ context.Context, text string, images []types.ImageBlock, audioData string) (<-chan types.GenerationChunk, error) {
	a.mu.Lock()
	a.calls = append(a.calls, turnCall{text: text, images: images, audioData: audioData})
	a.mu.Unlock()

	out := make(chan types.GenerationChunk, len(a.chunks))
	go func() {
		defer close(out)
		<-a.release
		for _, c := range a.chunks {
			out <- c
		}
	}()
	return out, nil
}

func (a *fakeAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakeCapture struct {
	mu       sync.Mutex
	started  int
	stopped  int
	snapshot types.ImageBlock
	hasSnap  bool
}

func (c *fakeCapture) StartCapture(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	return nil
}

func (c *fakeCapture) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
	return nil
}

func (c *fakeCapture) Snapshot() (types.ImageBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot, c.hasSnap
}

type orchFixture struct {
	o       *Orchestrator
	agent   *fakeAgent
	capture *fakeCapture
	clock   time.Time
}

func newFixture(t *testing.T, cfg OrchestratorConfig) *orchFixture {
	t.Helper()
	f := &orchFixture{
		agent:   newFakeAgent(),
		capture: &fakeCapture{snapshot: types.NewImageBlock("image/png", "c25hcA=="), hasSnap: true},
		clock:   time.Unix(0, 0),
	}
	f.o = New(f.agent, f.capture, cfg, zerolog.Nop())
	f.o.now = func() time.Time { return f.clock }
	require.NoError(t, f.o.Initialize(context.Background()))
	f.o.vad.now = f.o.now
	return f
}

func (f *orchFixture) startListening(t *testing.T) {
	t.Helper()
	require.NoError(t, f.o.StartListening(context.Background()))
	// Move past the startup grace window.
	f.clock = f.clock.Add(2 * time.Second)
}

func (f *orchFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func loudChunk() []byte  { return pcmChunk(100, 16384) }
func quietChunk() []byte { return pcmChunk(100, 0) }

func TestOrchestratorEndToEndVoiceTurn(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 3
	f := newFixture(t, cfg)
	f.startListening(t)
	assert.Equal(t, StateListening, f.o.State())

	for i := 0; i < 5; i++ {
		f.o.ProcessAudioChunk(loudChunk())
		f.advance(20 * time.Millisecond)
	}
	assert.Equal(t, StateVoiceActive, f.o.State())

	f.advance(900 * time.Millisecond)
	f.o.ProcessAudioChunk(quietChunk())
	assert.Equal(t, StateProcessing, f.o.State())

	oldVAD := f.o.vad

	// Audio arriving while PROCESSING must be ignored entirely.
	f.o.ProcessAudioChunk(loudChunk())
	assert.Equal(t, StateProcessing, f.o.State())

	close(f.agent.release)
	require.Eventually(t, func() bool { return f.o.State() == StateListening }, time.Second, time.Millisecond)

	// Exactly one turn, carrying 5 chunks of audio plus the snapshot.
	require.Equal(t, 1, f.agent.callCount())
	call := f.agent.calls[0]
	decoded, err := base64.StdEncoding.DecodeString(call.audioData)
	require.NoError(t, err)
	assert.Len(t, decoded, 5*len(loudChunk()))
	require.Len(t, call.images, 1)

	// The detector was rebuilt from scratch, with no residual timing state.
	assert.NotSame(t, oldVAD, f.o.vad)
	assert.False(t, f.o.vad.IsVoiceActive())
	assert.True(t, f.o.vad.lastVoiceAt.IsZero())
}

func TestVoiceStartInsideGraceWindowIgnored(t *testing.T) {
	f := newFixture(t, DefaultOrchestratorConfig())
	require.NoError(t, f.o.StartListening(context.Background()))

	// Still inside the 800ms grace window.
	f.advance(100 * time.Millisecond)
	f.o.ProcessAudioChunk(loudChunk())
	assert.Equal(t, StateListening, f.o.State())

	// Past the window, after the transient segment has closed, a fresh
	// rising edge triggers normally.
	f.advance(2 * time.Second)
	f.o.ProcessAudioChunk(quietChunk())
	f.o.ProcessAudioChunk(loudChunk())
	assert.Equal(t, StateVoiceActive, f.o.State())
}

func TestShortActivationDiscardedWithoutTurn(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 3
	f := newFixture(t, cfg)
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	assert.Equal(t, StateVoiceActive, f.o.State())

	f.advance(time.Second)
	f.o.ProcessAudioChunk(quietChunk())

	assert.Equal(t, StateListening, f.o.State())
	assert.Zero(t, f.agent.callCount(), "model must not be invoked for too-short activations")

	discarded := false
	for done := false; !done; {
		select {
		case ev := <-f.o.Events():
			if _, ok := ev.(*TurnDiscardedEvent); ok {
				discarded = true
			}
		default:
			done = true
		}
	}
	assert.True(t, discarded)
}

func TestStartListeningIdempotentAndGated(t *testing.T) {
	f := newFixture(t, DefaultOrchestratorConfig())

	require.NoError(t, f.o.StartListening(context.Background()))
	require.NoError(t, f.o.StartListening(context.Background()))
	assert.Equal(t, 1, f.capture.started)

	bare := New(newFakeAgent(), &fakeCapture{}, DefaultOrchestratorConfig(), zerolog.Nop())
	assert.Error(t, bare.StartListening(context.Background()), "listening requires initialization")
}

func TestStopListeningDiscardsAndReturnsReady(t *testing.T) {
	f := newFixture(t, DefaultOrchestratorConfig())
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	require.Equal(t, StateVoiceActive, f.o.State())

	require.NoError(t, f.o.StopListening())
	assert.Equal(t, StateReady, f.o.State())
	assert.Equal(t, 1, f.capture.stopped)
	assert.Zero(t, f.agent.callCount())

	// Audio after teardown is ignored.
	f.o.ProcessAudioChunk(loudChunk())
	assert.Equal(t, StateReady, f.o.State())
}

func TestStopListeningDuringProcessingSkipsResume(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 1
	f := newFixture(t, cfg)
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	f.advance(time.Second)
	f.o.ProcessAudioChunk(quietChunk())
	require.Equal(t, StateProcessing, f.o.State())

	require.NoError(t, f.o.StopListening())
	assert.Equal(t, StateReady, f.o.State())

	// The in-flight turn still completes, but listening does not resume.
	close(f.agent.release)
	assert.Never(t, func() bool { return f.o.State() == StateListening }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestEndVoiceCaptureForcesFinalization(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 1
	f := newFixture(t, cfg)
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	f.o.ProcessAudioChunk(loudChunk())
	require.Equal(t, StateVoiceActive, f.o.State())

	f.o.EndVoiceCapture()
	assert.Equal(t, StateProcessing, f.o.State())
	assert.Equal(t, 1, f.agent.callCount())
	close(f.agent.release)
}

func TestInitializeRequiresCollaborators(t *testing.T) {
	o := New(nil, nil, DefaultOrchestratorConfig(), zerolog.Nop())
	assert.Error(t, o.Initialize(context.Background()))
	assert.Equal(t, StateError, o.State())

	// ERROR requires explicit re-initialization; a valid retry recovers.
	o.agent = newFakeAgent()
	o.capture = &fakeCapture{}
	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StateReady, o.State())
}

func TestUpdateVADConfigSurvivesDetectorRecreation(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 1
	f := newFixture(t, cfg)
	f.startListening(t)

	f.o.UpdateVADConfig(VADConfig{Threshold: 40, SilenceDurationMs: 500})

	f.o.ProcessAudioChunk(loudChunk())
	f.advance(time.Second)
	f.o.ProcessAudioChunk(quietChunk())
	close(f.agent.release)
	require.Eventually(t, func() bool { return f.o.State() == StateListening }, time.Second, time.Millisecond)

	assert.Equal(t, float64(40), f.o.vad.Config().Threshold)
}

func TestTurnEventsForwarded(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 1
	f := newFixture(t, cfg)
	f.agent.chunks = []types.GenerationChunk{
		{TextDelta: "thinking"},
		{ToolCalls: []types.ToolCall{{ID: "1", Name: "draw"}}},
		{ToolResultsSummary: "[draw]: ok"},
		{AudioDelta: "YmVlcA=="},
		{Finished: true, Usage: &types.Usage{TotalTokens: 9}},
	}
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	f.advance(time.Second)
	f.o.ProcessAudioChunk(quietChunk())
	close(f.agent.release)
	require.Eventually(t, func() bool { return f.o.State() == StateListening }, time.Second, time.Millisecond)

	seen := map[string]bool{}
	for done := false; !done; {
		select {
		case ev := <-f.o.Events():
			seen[ev.EventType()] = true
			if fin, ok := ev.(*TurnFinishedEvent); ok {
				require.NotNil(t, fin.Usage)
				assert.Equal(t, 9, fin.Usage.TotalTokens)
			}
		default:
			done = true
		}
	}
	for _, want := range []string{"voice.start", "voice.stop", "turn.submitted", "text.delta", "tool.use", "tool.result", "audio.delta", "turn.finished"} {
		assert.True(t, seen[want], "missing event %s", want)
	}
}

func TestTurnStreamFailureEmitsErrorAndResumes(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.MinAudioChunks = 1
	f := newFixture(t, cfg)
	f.agent.chunks = []types.GenerationChunk{
		{TextDelta: "par"},
		{Error: "connection reset"},
	}
	f.startListening(t)

	f.o.ProcessAudioChunk(loudChunk())
	f.advance(time.Second)
	f.o.ProcessAudioChunk(quietChunk())
	close(f.agent.release)
	require.Eventually(t, func() bool { return f.o.State() == StateListening }, time.Second, time.Millisecond)

	var errEvent *ErrorEvent
	finished := false
	for done := false; !done; {
		select {
		case ev := <-f.o.Events():
			switch e := ev.(type) {
			case *ErrorEvent:
				errEvent = e
			case *TurnFinishedEvent:
				finished = true
			}
		default:
			done = true
		}
	}

	require.NotNil(t, errEvent, "a failed turn must surface an error event")
	assert.Equal(t, "turn_failed", errEvent.Code)
	assert.Contains(t, errEvent.Message, "connection reset")
	assert.False(t, finished, "a failed turn must not report turn.finished")
}
