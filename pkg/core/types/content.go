package types

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ContentBlock is the interface for all message content parts.
// A message body is an ordered sequence of blocks: text, image, audio, video.
type ContentBlock interface {
	BlockType() string
}

// TextBlock represents text content.
type TextBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

func (t TextBlock) BlockType() string { return "text" }

// NewTextBlock creates a text block.
func NewTextBlock(text string) TextBlock {
	return TextBlock{Type: "text", Text: text}
}

// ImageBlock represents image content.
type ImageBlock struct {
	Type   string      `json:"type"` // "image"
	Source ImageSource `json:"source"`
}

func (t ImageBlock) BlockType() string { return "image" }

// ImageSource contains the image data or reference.
type ImageSource struct {
	Type      string `json:"type"`                 // "base64" or "url"
	MediaType string `json:"media_type,omitempty"` // "image/png", etc.
	Data      string `json:"data,omitempty"`       // base64 data
	URL       string `json:"url,omitempty"`        // URL reference
}

// NewImageBlock creates an image block from base64 data.
func NewImageBlock(mediaType, data string) ImageBlock {
	return ImageBlock{
		Type:   "image",
		Source: ImageSource{Type: "base64", MediaType: mediaType, Data: data},
	}
}

// AudioFormat identifies the encoding of an audio payload.
type AudioFormat string

const (
	AudioFormatWAV AudioFormat = "wav"
	AudioFormatMP3 AudioFormat = "mp3"
)

// AudioBlock represents audio content.
type AudioBlock struct {
	Type       string      `json:"type"` // "audio"
	Data       string      `json:"data"` // base64 payload, no data-URI prefix
	Format     AudioFormat `json:"format"`
	Transcript string      `json:"transcript,omitempty"`
}

func (t AudioBlock) BlockType() string { return "audio" }

// NewAudioBlock creates an audio block from base64 data.
func NewAudioBlock(data string, format AudioFormat) AudioBlock {
	return AudioBlock{Type: "audio", Data: data, Format: format}
}

// VideoBlock represents video content.
type VideoBlock struct {
	Type   string      `json:"type"` // "video"
	Source VideoSource `json:"source"`
}

func (t VideoBlock) BlockType() string { return "video" }

// VideoSource contains the video data.
type VideoSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "video/mp4"
	Data      string `json:"data"`
}

// UnmarshalContentBlocks decodes a JSON array of content blocks into the
// concrete block types. Unknown block types are rejected so malformed
// payloads fail at the decode boundary instead of deep inside a turn.
func UnmarshalContentBlocks(data []byte) ([]ContentBlock, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, errors.Wrap(err, "content is not an array")
	}

	blocks := make([]ContentBlock, 0, len(raws))
	for i, raw := range raws {
		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, errors.Wrapf(err, "content block %d", i)
		}

		switch probe.Type {
		case "text":
			var b TextBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, errors.Wrapf(err, "text block %d", i)
			}
			blocks = append(blocks, b)
		case "image":
			var b ImageBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, errors.Wrapf(err, "image block %d", i)
			}
			blocks = append(blocks, b)
		case "audio":
			var b AudioBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, errors.Wrapf(err, "audio block %d", i)
			}
			blocks = append(blocks, b)
		case "video":
			var b VideoBlock
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, errors.Wrapf(err, "video block %d", i)
			}
			blocks = append(blocks, b)
		default:
			return nil, errors.Errorf("content block %d: unknown type %q", i, probe.Type)
		}
	}
	return blocks, nil
}

// TextOf concatenates the text of all text blocks in the sequence.
func TextOf(blocks []ContentBlock) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}
