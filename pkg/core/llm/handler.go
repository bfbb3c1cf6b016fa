// Package llm implements the streaming generation protocol handler and the
// tool execution loop. One Generate call issues one streaming request,
// aggregates deltas, and detects in-band tool-call markup in the final
// text; ProcessToolCalls executes the calls and drives follow-up turns
// until the model concludes with plain text or the round cap is reached.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/toolcall"
	"github.com/voxloop-go/voxloop/pkg/core/tools"
	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// DefaultMaxToolRounds caps how many tool-call rounds one user turn may
// trigger before the accumulated text is treated as the conclusion.
const DefaultMaxToolRounds = 8

// followUpInstruction is appended to every aggregated tool-result message.
const followUpInstruction = "Use the tool results above to answer. " +
	"Conclude with a plain-text response, or emit another <tool_calls> block if more tool work is needed."

// Config holds per-handler generation parameters.
type Config struct {
	// Model is the provider-specific model identifier.
	Model string

	// MaxTokens caps response length. Zero means provider default.
	MaxTokens int

	// Temperature controls response randomness.
	Temperature *float64

	// MaxToolRounds bounds the tool loop. Zero means DefaultMaxToolRounds.
	MaxToolRounds int
}

// Hooks receives lifecycle notifications from the tool loop.
// Nil funcs are skipped.
type Hooks struct {
	// OnAssistantRound fires once per generation round that proceeds into
	// tool execution, with the round's cleaned text and parsed calls. The
	// concluding round does not fire it; its text is the turn's result.
	OnAssistantRound func(text string, calls []types.ToolCall)

	OnToolStart   func(call types.ToolCall)
	OnToolSuccess func(call types.ToolCall, result string)
	OnToolError   func(call types.ToolCall, err error)
}

// Options configures one Generate invocation.
type Options struct {
	// AudioModality requests base64 audio deltas alongside text.
	AudioModality bool

	// ToolsEnabled advertises the handler's tool set and turns on call
	// detection in the aggregated response text.
	ToolsEnabled bool

	// Hooks receive tool lifecycle notifications during ProcessToolCalls.
	Hooks Hooks
}

// Handler issues streaming generation requests and runs the tool loop.
// A handler may be reused across turns but supports only one stream per
// Generate call; it holds no per-turn state.
type Handler struct {
	client ModelClient
	tools  *tools.Set
	cfg    Config
	logger zerolog.Logger
}

// NewHandler creates a protocol handler over the given transport.
func NewHandler(client ModelClient, toolSet *tools.Set, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if toolSet == nil {
		toolSet = tools.NewSet()
	}
	return &Handler{
		client: client,
		tools:  toolSet,
		cfg:    cfg,
		logger: logger.With().Str("component", "llm").Logger(),
	}
}

// Generate issues one streaming request and returns a lazy chunk sequence.
// Zero or more non-final chunks carry text/audio deltas; when tools are
// enabled and the aggregated text contains call markup, one intermediate
// chunk carries the parsed calls; the single terminal chunk has Finished
// set and carries final usage. When the terminal chunk was preceded by a
// tool-call chunk, the caller is responsible for invoking ProcessToolCalls.
//
// The returned error covers request construction only; a mid-stream failure
// is logged and surfaced as a terminal chunk with Error set instead of a
// Finished chunk, so the channel is always drained to completion and the
// caller can tell a failed turn from a successful one.
func (h *Handler) Generate(ctx context.Context, messages []types.Message, opts Options) (<-chan types.GenerationChunk, error) {
	out := make(chan types.GenerationChunk, 16)
	go func() {
		defer close(out)
		_, _, err := h.streamOnce(ctx, messages, opts, out)
		if err != nil {
			h.logger.Error().Err(err).Msg("generation stream failed")
			out <- types.GenerationChunk{Error: err.Error()}
		}
	}()
	return out, nil
}

// GenerateSync runs Generate and ProcessToolCalls to completion, returning
// the final response text. Convenience for callers that do not stream.
func (h *Handler) GenerateSync(ctx context.Context, messages []types.Message, opts Options) (string, types.Usage, error) {
	out := make(chan types.GenerationChunk, 16)
	var (
		text  string
		usage types.Usage
		err   error
	)
	go func() {
		defer close(out)
		text, usage, err = h.RunTurn(ctx, messages, opts, out)
	}()
	for range out {
	}
	return text, usage, err
}

// RunTurn streams one full turn into out: the initial generation round plus
// any tool rounds it triggers, up to the round cap. It returns the
// concluding response text. On success exactly one terminal chunk is
// emitted; on error none is, and the caller decides how to close the
// stream.
func (h *Handler) RunTurn(ctx context.Context, messages []types.Message, opts Options, out chan<- types.GenerationChunk) (string, types.Usage, error) {
	return h.runTurn(ctx, messages, opts, out, 1)
}

// runTurn executes one generation round and, when calls are detected, the
// follow-up tool rounds. All chunks go to out; the terminal chunk is
// emitted exactly once, by the deepest round.
func (h *Handler) runTurn(ctx context.Context, messages []types.Message, opts Options, out chan<- types.GenerationChunk, round int) (string, types.Usage, error) {
	text, usage, err := h.streamRound(ctx, messages, opts, out)
	if err != nil {
		return "", usage, err
	}

	calls, cleaned := h.detectCalls(text, opts.ToolsEnabled)
	if len(calls) == 0 {
		out <- types.GenerationChunk{Finished: true, Usage: &usage}
		return cleaned, usage, nil
	}

	out <- types.GenerationChunk{ToolCalls: calls}

	if round >= h.cfg.MaxToolRounds {
		h.logger.Warn().Int("round", round).Msg("tool round cap reached, concluding with accumulated text")
		out <- types.GenerationChunk{Finished: true, Usage: &usage}
		return cleaned, usage, nil
	}

	if opts.Hooks.OnAssistantRound != nil {
		opts.Hooks.OnAssistantRound(cleaned, calls)
	}

	finalText, nestedUsage, err := h.processToolCalls(ctx, calls, messages, opts, text, out, round)
	usage = usage.Add(nestedUsage)
	return finalText, usage, err
}

// Generate's public single-round body: stream one request, emit deltas,
// detect calls, and emit the terminal chunk. Used by Generate, where the
// caller drives the tool loop.
func (h *Handler) streamOnce(ctx context.Context, messages []types.Message, opts Options, out chan<- types.GenerationChunk) (string, types.Usage, error) {
	text, usage, err := h.streamRound(ctx, messages, opts, out)
	if err != nil {
		return "", usage, err
	}

	if calls, _ := h.detectCalls(text, opts.ToolsEnabled); len(calls) > 0 {
		out <- types.GenerationChunk{ToolCalls: calls}
	}
	out <- types.GenerationChunk{Finished: true, Usage: &usage}
	return text, usage, nil
}

// streamRound performs the raw transport exchange for one round.
func (h *Handler) streamRound(ctx context.Context, messages []types.Message, opts Options, out chan<- types.GenerationChunk) (string, types.Usage, error) {
	req := &types.GenerateRequest{
		Model:         h.cfg.Model,
		Messages:      messages,
		AudioModality: opts.AudioModality,
		MaxTokens:     h.cfg.MaxTokens,
		Temperature:   h.cfg.Temperature,
	}
	if opts.ToolsEnabled {
		req.Tools = h.tools.Definitions()
	}

	stream, err := h.client.StreamGenerate(ctx, req)
	if err != nil {
		return "", types.Usage{}, errors.Wrap(err, "start generation stream")
	}
	defer stream.Close()

	var aggregated strings.Builder
	var usage types.Usage
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", usage, errors.Wrap(err, "read generation stream")
		}
		if chunk == nil {
			continue
		}

		if chunk.Usage != nil {
			usage.Merge(*chunk.Usage)
		}
		if chunk.TextDelta != "" || chunk.AudioDelta != "" {
			aggregated.WriteString(chunk.TextDelta)
			out <- types.GenerationChunk{
				TextDelta:  chunk.TextDelta,
				AudioDelta: chunk.AudioDelta,
			}
		}
		if chunk.Done {
			break
		}
	}
	return aggregated.String(), usage, nil
}

func (h *Handler) detectCalls(text string, toolsEnabled bool) ([]types.ToolCall, string) {
	if !toolsEnabled || !toolcall.HasToolCallTags(text) {
		return nil, text
	}
	res := toolcall.ParseToolCalls(text)
	if !res.HasToolCalls {
		return nil, res.CleanedText
	}
	return res.ToolCalls, res.CleanedText
}

// ProcessToolCalls executes the given calls and streams the follow-up
// turn(s). Handlers run sequentially in the order the model listed them; a
// failing handler yields an {"error": …} payload and never blocks its
// siblings. Exactly one assistant message (original text plus the call
// list) and exactly one aggregated user message (all results) are appended
// before the follow-up request — per-result user messages are forbidden
// because they can produce back-to-back same-role messages.
func (h *Handler) ProcessToolCalls(ctx context.Context, calls []types.ToolCall, priorMessages []types.Message, opts Options, originalText string) (<-chan types.GenerationChunk, error) {
	if len(calls) == 0 {
		return nil, errors.New("no tool calls to process")
	}

	out := make(chan types.GenerationChunk, 16)
	go func() {
		defer close(out)
		if _, _, err := h.processToolCalls(ctx, calls, priorMessages, opts, originalText, out, 1); err != nil {
			h.logger.Error().Err(err).Msg("tool round failed")
			out <- types.GenerationChunk{Error: err.Error()}
		}
	}()
	return out, nil
}

func (h *Handler) processToolCalls(ctx context.Context, calls []types.ToolCall, priorMessages []types.Message, opts Options, originalText string, out chan<- types.GenerationChunk, round int) (string, types.Usage, error) {
	summary := h.executeCalls(ctx, calls, opts.Hooks)
	out <- types.GenerationChunk{ToolResultsSummary: summary}

	assistant := types.NewTextMessage(types.RoleAssistant, originalText)
	assistant.ToolCalls = calls

	results := types.NewTextMessage(types.RoleUser, summary+"\n\n"+followUpInstruction)

	next := make([]types.Message, 0, len(priorMessages)+2)
	next = append(next, priorMessages...)
	next = append(next, assistant, results)
	next = RepairRoleOrder(next)

	return h.runTurn(ctx, next, opts, out, round+1)
}

// executeCalls runs every call in order and returns the aggregated
// "[name]: content" summary.
func (h *Handler) executeCalls(ctx context.Context, calls []types.ToolCall, hooks Hooks) string {
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		lines = append(lines, fmt.Sprintf("[%s]: %s", call.Name, h.executeCall(ctx, call, hooks)))
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) executeCall(ctx context.Context, call types.ToolCall, hooks Hooks) string {
	if hooks.OnToolStart != nil {
		hooks.OnToolStart(call)
	}

	handler, ok := h.tools.Handler(call.Name)
	if !ok {
		err := errors.Errorf("unknown tool %q", call.Name)
		return h.failCall(call, err, hooks)
	}

	result, err := handler(ctx, call.Arguments)
	if err != nil {
		return h.failCall(call, err, hooks)
	}

	rendered := renderResult(result)
	h.logger.Debug().Str("tool", call.Name).Msg("tool call succeeded")
	if hooks.OnToolSuccess != nil {
		hooks.OnToolSuccess(call, rendered)
	}
	return rendered
}

func (h *Handler) failCall(call types.ToolCall, err error, hooks Hooks) string {
	h.logger.Warn().Err(err).Str("tool", call.Name).Msg("tool call failed")
	if hooks.OnToolError != nil {
		hooks.OnToolError(call, err)
	}
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(payload)
}

// renderResult turns a handler's return value into the textual form stored
// in the aggregated result message.
func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
