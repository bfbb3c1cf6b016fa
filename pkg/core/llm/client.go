package llm

import (
	"context"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// StreamChunk is one increment from the model transport.
type StreamChunk struct {
	// TextDelta is an incremental piece of generated text.
	TextDelta string

	// AudioDelta is an incremental base64 audio payload.
	AudioDelta string

	// Usage is a running token-usage snapshot, when the provider reports
	// one mid-stream or at the end.
	Usage *types.Usage

	// Done marks the transport's explicit end-of-stream marker.
	Done bool
}

// ChunkStream iterates over a single streaming generation. Next returns
// io.EOF (or a chunk with Done set) when the stream ends.
type ChunkStream interface {
	Next() (*StreamChunk, error)
	Close() error
}

// ModelClient is the model transport collaborator. The handler is the sole
// decoder of the returned stream.
type ModelClient interface {
	StreamGenerate(ctx context.Context, req *types.GenerateRequest) (ChunkStream, error)
}
