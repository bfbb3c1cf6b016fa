// Package gemini adapts the Gemini SDK to the model transport interface.
// Tool calling stays in-band: tools are advertised through the system
// instruction and calls come back as tagged JSON inside the generated
// text, so the transport needs no function-calling wiring.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/voxloop-go/voxloop/pkg/core/llm"
	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// Config holds Gemini client settings. With Project and Location set the
// client talks to Vertex AI; otherwise APIKey selects the Gemini API.
type Config struct {
	// APIKey authenticates against the Gemini API backend.
	APIKey string

	// Project and Location select the Vertex AI backend.
	Project  string
	Location string

	// Model is the default model when a request does not name one.
	Model string
}

// DefaultModel is used when neither the config nor the request names one.
const DefaultModel = "gemini-2.5-flash"

// Client is a llm.ModelClient backed by Gemini.
type Client struct {
	client *genai.Client
	cfg    Config
	logger zerolog.Logger
}

// NewClient creates a Gemini-backed model client.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.Project != "" && cfg.Location != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	default:
		return nil, errors.New("gemini: either APIKey or Project+Location must be set")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "gemini").Logger(),
	}, nil
}

// StreamGenerate implements llm.ModelClient.
func (c *Client) StreamGenerate(ctx context.Context, req *types.GenerateRequest) (llm.ChunkStream, error) {
	contents, system := convertMessages(req.Messages)
	if len(contents) == 0 {
		return nil, errors.New("gemini: request has no sendable messages")
	}

	instruction := system
	if len(req.Tools) > 0 {
		instruction = strings.TrimSpace(instruction + "\n\n" + toolInstruction(req.Tools))
	}

	cfg := &genai.GenerateContentConfig{}
	if instruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instruction, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		cfg.Temperature = &temp
	}
	if req.AudioModality {
		cfg.ResponseModalities = []string{"TEXT", "AUDIO"}
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	c.logger.Debug().
		Str("model", model).
		Int("contents", len(contents)).
		Bool("audio", req.AudioModality).
		Msg("starting generation stream")

	next, stop := iter.Pull2(c.client.Models.GenerateContentStream(ctx, model, contents, cfg))
	return &chunkStream{next: next, stop: stop}, nil
}

// chunkStream adapts the SDK's push iterator to the pull-based ChunkStream.
type chunkStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s *chunkStream) Next() (*llm.StreamChunk, error) {
	resp, err, ok := s.next()
	if !ok {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "gemini stream")
	}
	return toChunk(resp), nil
}

func (s *chunkStream) Close() error {
	s.stop()
	return nil
}

func toChunk(resp *genai.GenerateContentResponse) *llm.StreamChunk {
	chunk := &llm.StreamChunk{}
	if resp == nil {
		return chunk
	}

	var audio []byte
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				chunk.TextDelta += part.Text
			}
			if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
				audio = append(audio, part.InlineData.Data...)
			}
		}
	}
	if len(audio) > 0 {
		chunk.AudioDelta = base64.StdEncoding.EncodeToString(audio)
	}

	if um := resp.UsageMetadata; um != nil {
		chunk.Usage = &types.Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
	}
	return chunk
}

// convertMessages maps the normalized conversation into SDK contents.
// System messages are lifted into the returned instruction text; tool
// messages travel as user-role text.
func convertMessages(messages []types.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			if text := msg.Text(); text != "" {
				system = append(system, text)
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == types.RoleAssistant {
			role = genai.RoleModel
		}

		parts := convertParts(msg.Content)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return contents, strings.Join(system, "\n\n")
}

func convertParts(blocks []types.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, block := range blocks {
		switch b := block.(type) {
		case types.TextBlock:
			if b.Text != "" {
				parts = append(parts, genai.NewPartFromText(b.Text))
			}
		case types.ImageBlock:
			if b.Source.URL != "" {
				parts = append(parts, genai.NewPartFromURI(b.Source.URL, b.Source.MediaType))
				continue
			}
			data, err := base64.StdEncoding.DecodeString(b.Source.Data)
			if err != nil {
				continue
			}
			mediaType := b.Source.MediaType
			if mediaType == "" {
				mediaType = "image/png"
			}
			parts = append(parts, genai.NewPartFromBytes(data, mediaType))
		case types.AudioBlock:
			data, err := base64.StdEncoding.DecodeString(b.Data)
			if err != nil {
				continue
			}
			parts = append(parts, genai.NewPartFromBytes(data, "audio/"+string(b.Format)))
		case types.VideoBlock:
			data, err := base64.StdEncoding.DecodeString(b.Source.Data)
			if err != nil {
				continue
			}
			parts = append(parts, genai.NewPartFromBytes(data, b.Source.MediaType))
		}
	}
	return parts
}

// toolInstruction renders the in-band tool-calling contract for the system
// instruction.
func toolInstruction(tools []types.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You can call the following tools. To call one or more tools, emit a block of this exact form inside your response:\n")
	b.WriteString("<tool_calls>[{\"name\": \"tool_name\", \"arguments\": {...}}]</tool_calls>\n\n")
	b.WriteString("Available tools:\n")
	for _, tool := range tools {
		b.WriteString("- ")
		b.WriteString(tool.Name)
		if tool.Description != "" {
			b.WriteString(": ")
			b.WriteString(tool.Description)
		}
		if tool.InputSchema != nil {
			if schema, err := json.Marshal(tool.InputSchema); err == nil {
				b.WriteString(" Arguments schema: ")
				b.Write(schema)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAfter tool results arrive, either conclude with a plain-text answer or emit another tool_calls block.")
	return b.String()
}
