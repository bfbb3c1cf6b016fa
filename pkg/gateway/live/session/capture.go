package session

import (
	"context"
	"sync"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// ClientCapture satisfies live.Capture for websocket sessions. The client
// owns the microphone and camera, so starting and stopping capture are
// acknowledgements only; snapshots arrive as protocol frames and the latest
// one is attached to the next voice turn.
type ClientCapture struct {
	mu      sync.Mutex
	snap    types.ImageBlock
	hasSnap bool
}

func NewClientCapture() *ClientCapture {
	return &ClientCapture{}
}

func (c *ClientCapture) StartCapture(context.Context) error { return nil }

func (c *ClientCapture) StopCapture() error { return nil }

// SetSnapshot replaces the pending snapshot.
func (c *ClientCapture) SetSnapshot(img types.ImageBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = img
	c.hasSnap = true
}

// Snapshot returns the most recent client snapshot, if any.
func (c *ClientCapture) Snapshot() (types.ImageBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.hasSnap
}
