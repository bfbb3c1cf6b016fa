package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	starts []float64
	stops  []int
}

func (l *recordingListener) OnVoiceStart(volume float64) { l.starts = append(l.starts, volume) }
func (l *recordingListener) OnVoiceStop(durationMs int)  { l.stops = append(l.stops, durationMs) }

func newTestDetector(cfg VADConfig) (*Detector, *recordingListener, *time.Time) {
	listener := &recordingListener{}
	d := NewDetector(cfg, listener)
	clock := time.Unix(0, 0)
	d.now = func() time.Time { return clock }
	d.StartDetection()
	return d, listener, &clock
}

func TestDetectorStartThenStopOnSilence(t *testing.T) {
	d, listener, clock := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	for i := 0; i < 3; i++ {
		d.ProcessVolume(10)
		*clock = clock.Add(20 * time.Millisecond)
	}
	require.Len(t, listener.starts, 1)
	assert.True(t, d.IsVoiceActive())

	d.ProcessVolume(2)
	assert.Empty(t, listener.stops, "silence shorter than the window must not stop")

	*clock = clock.Add(900 * time.Millisecond)
	d.ProcessVolume(2)

	require.Len(t, listener.starts, 1)
	require.Len(t, listener.stops, 1)
	assert.False(t, d.IsVoiceActive())
}

func TestDetectorNoDoubleStartWithoutStop(t *testing.T) {
	d, listener, clock := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	for i := 0; i < 50; i++ {
		d.ProcessVolume(50)
		*clock = clock.Add(20 * time.Millisecond)
	}
	assert.Len(t, listener.starts, 1)
	assert.Empty(t, listener.stops)
}

func TestDetectorThresholdTieIsSilence(t *testing.T) {
	d, listener, _ := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	d.ProcessVolume(5)
	assert.Empty(t, listener.starts)
	assert.False(t, d.IsVoiceActive())
}

func TestDetectorSustainedVoiceRefreshesTimestamp(t *testing.T) {
	d, listener, clock := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	d.ProcessVolume(10)
	// Alternate voice and sub-window silence; the segment must stay open.
	for i := 0; i < 10; i++ {
		*clock = clock.Add(500 * time.Millisecond)
		d.ProcessVolume(2)
		*clock = clock.Add(100 * time.Millisecond)
		d.ProcessVolume(10)
	}
	assert.Len(t, listener.starts, 1)
	assert.Empty(t, listener.stops)
}

func TestStopDetectionSynthesizesVoiceStop(t *testing.T) {
	d, listener, clock := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	d.ProcessVolume(10)
	*clock = clock.Add(100 * time.Millisecond)
	d.ProcessVolume(10)
	require.Len(t, listener.starts, 1)

	d.StopDetection()
	require.Len(t, listener.stops, 1)
	assert.Equal(t, 100, listener.stops[0])

	// Idempotent: no second synthesized stop.
	d.StopDetection()
	assert.Len(t, listener.stops, 1)
}

func TestStopDetectionWithoutVoiceIsSilent(t *testing.T) {
	d, listener, _ := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	d.ProcessVolume(2)
	d.StopDetection()
	assert.Empty(t, listener.stops)
}

func TestDetectorIgnoresVolumeWhileStopped(t *testing.T) {
	listener := &recordingListener{}
	d := NewDetector(DefaultVADConfig(), listener)

	d.ProcessVolume(50)
	assert.Empty(t, listener.starts)
	assert.Zero(t, d.CurrentVolume())
}

func TestUpdateConfigClampsThreshold(t *testing.T) {
	d := NewDetector(DefaultVADConfig(), nil)

	d.UpdateConfig(VADConfig{Threshold: 250, SilenceDurationMs: -5})
	cfg := d.Config()
	assert.Equal(t, float64(100), cfg.Threshold)
	assert.Equal(t, 0, cfg.SilenceDurationMs)

	d.UpdateConfig(VADConfig{Threshold: -1, SilenceDurationMs: 100})
	assert.Equal(t, float64(0), d.Config().Threshold)
}

func TestDisposeClearsStateAndListener(t *testing.T) {
	d, listener, _ := newTestDetector(VADConfig{Threshold: 5, SilenceDurationMs: 800})

	d.ProcessVolume(10)
	d.Dispose()
	require.Len(t, listener.stops, 1)

	d.StartDetection()
	d.ProcessVolume(50)
	assert.Len(t, listener.starts, 1, "disposed detector must not notify")
}
