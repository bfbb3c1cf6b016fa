// Package history holds the bounded sliding window of conversation messages
// that backs an agent. The window evicts oldest messages past its cap but
// never the system message, which always stays at index 0.
package history

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// DefaultMaxSize is the default message cap for a conversation window.
const DefaultMaxSize = 50

var dataURIRe = regexp.MustCompile(`^data:([a-zA-Z0-9.+/-]*);base64,`)

// Conversation is a bounded, ordered message store. It owns no I/O and is
// owned exclusively by one agent.
type Conversation struct {
	mu       sync.Mutex
	messages []types.Message
	maxSize  int
	logger   zerolog.Logger
}

// New creates a conversation window with the given maximum size.
// Sizes below 1 fall back to DefaultMaxSize.
func New(maxSize int, logger zerolog.Logger) *Conversation {
	if maxSize < 1 {
		maxSize = DefaultMaxSize
	}
	return &Conversation{
		maxSize: maxSize,
		logger:  logger.With().Str("component", "history").Logger(),
	}
}

// Add appends a message and applies the eviction policy.
func (c *Conversation) Add(msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.trimLocked()
}

// AddSystemMessage appends a system message.
func (c *Conversation) AddSystemMessage(text string) types.Message {
	msg := types.NewTextMessage(types.RoleSystem, text)
	c.Add(msg)
	return msg
}

// AddUserMessage appends a user message built from text plus optional image
// and audio payloads. Audio arrives as a data URI or raw base64 and is
// normalized before storage.
func (c *Conversation) AddUserMessage(text string, images []types.ImageBlock, audioData string) types.Message {
	var content []types.ContentBlock
	if text != "" {
		content = append(content, types.NewTextBlock(text))
	}
	for _, img := range images {
		content = append(content, img)
	}
	if audioData != "" {
		if block, ok := c.normalizeAudio(audioData); ok {
			content = append(content, block)
		}
	}

	msg := types.NewMessage(types.RoleUser, content)
	c.Add(msg)
	return msg
}

// AddAssistantMessage appends an assistant message carrying text and any
// tool calls it requested.
func (c *Conversation) AddAssistantMessage(text string, toolCalls []types.ToolCall) types.Message {
	msg := types.NewTextMessage(types.RoleAssistant, text)
	msg.ToolCalls = toolCalls
	c.Add(msg)
	return msg
}

// AddToolMessage appends a tool-result message linked to a prior call.
func (c *Conversation) AddToolMessage(text, toolCallID string) types.Message {
	msg := types.NewTextMessage(types.RoleTool, text)
	msg.ToolCallID = toolCallID
	c.Add(msg)
	return msg
}

// Messages returns a defensive copy of the window.
func (c *Conversation) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Remove deletes the message with the given id. Returns false if absent.
func (c *Conversation) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// SetMaxSize updates the window cap and re-applies eviction.
func (c *Conversation) SetMaxSize(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = n
	c.trimLocked()
}

// MessagesForLLM projects the window into the wire shape. Image and audio
// payloads from prior turns are attached only when the corresponding flag
// is set; they are excluded by default to bound request size. The final
// message always keeps its media so the current turn reaches the model
// intact.
func (c *Conversation) MessagesForLLM(includeHistoryImages, includeHistoryAudio bool) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.Message, 0, len(c.messages))
	for i, msg := range c.messages {
		isLast := i == len(c.messages)-1
		projected := msg
		projected.Content = projectContent(msg.Content, isLast || includeHistoryImages, isLast || includeHistoryAudio)
		out = append(out, projected)
	}
	return out
}

func projectContent(blocks []types.ContentBlock, keepImages, keepAudio bool) []types.ContentBlock {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.(type) {
		case types.ImageBlock:
			if keepImages {
				out = append(out, b)
			}
		case types.AudioBlock:
			if keepAudio {
				out = append(out, b)
			}
		default:
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		out = append(out, types.NewTextBlock(""))
	}
	return out
}

// trimLocked enforces the window cap. If a system message is present, it is
// lifted out before truncation and re-inserted at index 0, so it survives
// eviction regardless of age.
func (c *Conversation) trimLocked() {
	if len(c.messages) <= c.maxSize {
		return
	}

	systemIdx := -1
	for i, msg := range c.messages {
		if msg.Role == types.RoleSystem {
			systemIdx = i
			break
		}
	}

	if systemIdx < 0 {
		c.messages = c.messages[len(c.messages)-c.maxSize:]
		return
	}

	system := c.messages[systemIdx]
	rest := make([]types.Message, 0, len(c.messages)-1)
	rest = append(rest, c.messages[:systemIdx]...)
	rest = append(rest, c.messages[systemIdx+1:]...)

	keep := c.maxSize - 1
	if keep < 0 {
		keep = 0
	}
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}

	c.messages = append([]types.Message{system}, rest...)
}

// normalizeAudio converts a data-URI or raw base64 audio payload into an
// audio block. Supported inputs:
//
//	data:audio/<subtype>;base64,<payload>
//	data:;base64,<payload>
//	<raw base64>
//
// The format is mp3 when the subtype mentions mp3/mpeg, wav otherwise.
// Unrecognized payloads are dropped with a warning, not an error.
func (c *Conversation) normalizeAudio(data string) (types.AudioBlock, bool) {
	format := types.AudioFormatWAV
	payload := data

	if strings.HasPrefix(data, "data:") {
		m := dataURIRe.FindStringSubmatch(data)
		if m == nil {
			c.logger.Warn().Msg("dropping audio payload with unrecognized data URI")
			return types.AudioBlock{}, false
		}
		payload = data[len(m[0]):]
		mediaType := strings.ToLower(m[1])
		if strings.Contains(mediaType, "mp3") || strings.Contains(mediaType, "mpeg") {
			format = types.AudioFormatMP3
		}
	}

	if payload == "" {
		c.logger.Warn().Msg("dropping empty audio payload")
		return types.AudioBlock{}, false
	}
	return types.NewAudioBlock(payload, format), true
}

// exportEnvelope is the persisted shape of a conversation.
type exportEnvelope struct {
	ID       string          `json:"id"`
	Messages []types.Message `json:"messages"`
}

// Export serializes the window as a JSON envelope of message records.
func (c *Conversation) Export(id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(exportEnvelope{ID: id, Messages: c.messages})
}

// Import replaces the window contents with a previously exported envelope.
// Invalid input is rejected at the boundary without mutating state.
func (c *Conversation) Import(data []byte) error {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.Wrap(err, "invalid history payload")
	}
	if env.ID == "" {
		return errors.New("history payload missing id")
	}
	if env.Messages == nil {
		return errors.New("history payload missing messages")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = env.Messages
	c.trimLocked()
	return nil
}
