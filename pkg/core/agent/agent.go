// Package agent ties a conversation window to the generation handler. An
// agent owns its history exclusively and admits one in-flight generation at
// a time; concurrent sends are rejected rather than queued.
package agent

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/history"
	"github.com/voxloop-go/voxloop/pkg/core/llm"
	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// ErrBusy is returned when a send arrives while a generation is in flight.
var ErrBusy = errors.New("agent: generation already in flight")

// Config holds agent-level settings.
type Config struct {
	// SystemPrompt, when non-empty, is installed as the protected system
	// message at history index 0.
	SystemPrompt string

	// MaxHistory caps the conversation window. Zero means the history
	// package default.
	MaxHistory int

	// IncludeHistoryImages/IncludeHistoryAudio attach media from prior
	// turns to outgoing requests. The current turn's media always goes.
	IncludeHistoryImages bool
	IncludeHistoryAudio  bool

	// AudioModality requests audio deltas alongside text.
	AudioModality bool

	// ToolsEnabled turns on in-band tool calling.
	ToolsEnabled bool

	// Hooks receive tool lifecycle notifications.
	Hooks llm.Hooks
}

// DefaultConfig returns an agent configuration with tools enabled and
// history media excluded from outgoing requests.
func DefaultConfig() Config {
	return Config{
		MaxHistory:   history.DefaultMaxSize,
		ToolsEnabled: true,
	}
}

// Agent is a conversational agent: bounded history plus the streaming
// generation handler.
type Agent struct {
	handler *llm.Handler
	conv    *history.Conversation
	cfg     Config
	logger  zerolog.Logger
	busy    atomic.Bool
}

// New creates an agent. The system prompt, when set, is added immediately.
func New(handler *llm.Handler, cfg Config, logger zerolog.Logger) *Agent {
	a := &Agent{
		handler: handler,
		conv:    history.New(cfg.MaxHistory, logger),
		cfg:     cfg,
		logger:  logger.With().Str("component", "agent").Logger(),
	}
	if cfg.SystemPrompt != "" {
		a.conv.AddSystemMessage(cfg.SystemPrompt)
	}
	return a
}

// History exposes the underlying conversation window.
func (a *Agent) History() *history.Conversation {
	return a.conv
}

// Busy reports whether a generation is currently in flight.
func (a *Agent) Busy() bool {
	return a.busy.Load()
}

// SendMessage sends a text-only user turn and streams the response.
func (a *Agent) SendMessage(ctx context.Context, text string) (<-chan types.GenerationChunk, error) {
	return a.send(ctx, text, nil, "")
}

// SendMultiModal sends a user turn carrying text plus optional images and
// audio (data URI or raw base64) and streams the response.
func (a *Agent) SendMultiModal(ctx context.Context, text string, images []types.ImageBlock, audioData string) (<-chan types.GenerationChunk, error) {
	return a.send(ctx, text, images, audioData)
}

func (a *Agent) send(ctx context.Context, text string, images []types.ImageBlock, audioData string) (<-chan types.GenerationChunk, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	a.conv.AddUserMessage(text, images, audioData)
	// Partial assistant rounds persisted by earlier turns can sit adjacent
	// to their concluding message; merge them before they go on the wire.
	messages := llm.RepairRoleOrder(a.conv.MessagesForLLM(a.cfg.IncludeHistoryImages, a.cfg.IncludeHistoryAudio))

	opts := llm.Options{
		AudioModality: a.cfg.AudioModality,
		ToolsEnabled:  a.cfg.ToolsEnabled,
		Hooks:         a.roundPersistingHooks(),
	}

	out := make(chan types.GenerationChunk, 16)
	go func() {
		defer a.busy.Store(false)
		defer close(out)

		response, usage, err := a.handler.RunTurn(ctx, messages, opts, out)
		if err != nil {
			a.logger.Error().Err(err).Msg("turn failed")
			out <- types.GenerationChunk{Error: err.Error()}
			return
		}

		// The concluding text joins the per-round assistant text that the
		// OnAssistantRound hook persisted while the turn was running.
		a.conv.AddAssistantMessage(response, nil)
		a.logger.Debug().
			Int("history_len", a.conv.Len()).
			Int("total_tokens", usage.TotalTokens).
			Msg("turn complete")
	}()
	return out, nil
}

// roundPersistingHooks layers history persistence onto the configured
// hooks: assistant text produced before a tool round is part of the
// conversation and must survive the turn, not just the concluding text.
func (a *Agent) roundPersistingHooks() llm.Hooks {
	hooks := a.cfg.Hooks
	userRound := hooks.OnAssistantRound
	hooks.OnAssistantRound = func(text string, calls []types.ToolCall) {
		a.conv.AddAssistantMessage(text, calls)
		if userRound != nil {
			userRound(text, calls)
		}
	}
	return hooks
}

// Reset clears the history and reinstalls the system prompt.
func (a *Agent) Reset() error {
	if a.busy.Load() {
		return ErrBusy
	}
	a.conv.Clear()
	if a.cfg.SystemPrompt != "" {
		a.conv.AddSystemMessage(a.cfg.SystemPrompt)
	}
	return nil
}
