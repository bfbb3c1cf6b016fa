package live

import (
	"sync"
	"time"
)

// VADListener receives discrete voice events from a Detector. Callbacks are
// invoked synchronously from ProcessVolume and StopDetection, without the
// detector's lock held.
type VADListener interface {
	// OnVoiceStart fires on the rising edge of voice activity.
	OnVoiceStart(volume float64)

	// OnVoiceStop fires when silence has lasted the configured duration,
	// or is synthesized when detection stops mid-segment.
	OnVoiceStop(durationMs int)
}

// Detector converts a stream of volume scalars (0-100, one per audio
// frame) into discrete voice start/stop events.
//
// A frame above the threshold starts or sustains a voice segment; a frame
// at or below it counts as silence, and the segment ends once silence has
// lasted SilenceDurationMs. A frame exactly at the threshold resolves to
// silence so a signal hovering on the boundary cannot flap.
type Detector struct {
	mu           sync.Mutex
	cfg          VADConfig
	listener     VADListener
	detecting    bool
	voiceActive  bool
	voiceStarted time.Time
	lastVoiceAt  time.Time
	volume       float64

	// now is swappable for tests.
	now func() time.Time
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg VADConfig, listener VADListener) *Detector {
	return &Detector{
		cfg:      cfg.clamped(),
		listener: listener,
		now:      time.Now,
	}
}

// StartDetection enables volume processing. Idempotent.
func (d *Detector) StartDetection() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detecting = true
}

// StopDetection disables volume processing. If a voice segment is active, a
// voice-stop event is synthesized first so consumers never observe capture
// ending while voice appears active. Idempotent.
func (d *Detector) StopDetection() {
	d.mu.Lock()
	if !d.detecting {
		d.mu.Unlock()
		return
	}
	d.detecting = false

	var stop func()
	if d.voiceActive {
		d.voiceActive = false
		durationMs := int(d.lastVoiceAt.Sub(d.voiceStarted) / time.Millisecond)
		if listener := d.listener; listener != nil {
			stop = func() { listener.OnVoiceStop(durationMs) }
		}
	}
	d.lastVoiceAt = time.Time{}
	d.voiceStarted = time.Time{}
	d.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// ProcessVolume feeds one volume sample in [0,100]. Ignored while detection
// is stopped.
func (d *Detector) ProcessVolume(v float64) {
	d.mu.Lock()
	if !d.detecting {
		d.mu.Unlock()
		return
	}
	d.volume = v
	now := d.now()

	var notify func()
	switch {
	case v > d.cfg.Threshold:
		if !d.voiceActive {
			d.voiceActive = true
			d.voiceStarted = now
			if listener := d.listener; listener != nil {
				notify = func() { listener.OnVoiceStart(v) }
			}
		}
		d.lastVoiceAt = now

	case d.voiceActive:
		silence := time.Duration(d.cfg.SilenceDurationMs) * time.Millisecond
		if now.Sub(d.lastVoiceAt) >= silence {
			d.voiceActive = false
			durationMs := int(d.lastVoiceAt.Sub(d.voiceStarted) / time.Millisecond)
			if listener := d.listener; listener != nil {
				notify = func() { listener.OnVoiceStop(durationMs) }
			}
		}
	}
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// UpdateConfig replaces the detector configuration at runtime. The
// threshold is clamped to [0,100].
func (d *Detector) UpdateConfig(cfg VADConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg.clamped()
}

// Config returns the effective configuration.
func (d *Detector) Config() VADConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// IsVoiceActive reports whether a voice segment is currently open.
func (d *Detector) IsVoiceActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voiceActive
}

// CurrentVolume returns the most recent volume sample.
func (d *Detector) CurrentVolume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

// Dispose stops detection, clears timing state, and detaches the listener.
func (d *Detector) Dispose() {
	d.StopDetection()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = nil
	d.volume = 0
}
