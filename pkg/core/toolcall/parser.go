// Package toolcall extracts structured tool calls from free-form model text.
//
// Models emit calls in-band as <tool_calls> tagged JSON, fenced code blocks,
// or bare JSON lines. Parsing is total: malformed input yields zero calls,
// never an error, so a bad model response can never break the generation
// loop.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

var (
	tagBlockRe      = regexp.MustCompile(`(?s)<tool_calls>(.*?)</tool_calls>`)
	fencedBlockRe   = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
)

// Result holds the outcome of parsing one model response.
type Result struct {
	ToolCalls    []types.ToolCall
	CleanedText  string
	HasToolCalls bool
}

// HasToolCallTags reports whether text plausibly contains call markup.
// Cheap pre-check used to skip full parsing on plain responses.
func HasToolCallTags(text string) bool {
	return strings.Contains(text, "<tool_calls>") ||
		strings.Contains(text, "```") ||
		strings.Contains(text, `"name"`)
}

// ParseToolCalls extracts tool calls from text under a fallback ladder of
// grammars, first match wins for the whole text:
//
//  1. <tool_calls>…</tool_calls> tagged blocks. Every block's tags are
//     stripped from the cleaned text even when its JSON does not parse, so
//     markup never leaks to the user.
//  2. Fenced code blocks containing call-shaped JSON, stripped on success.
//  3. Bare lines that are a complete JSON object with a string "name"
//     field; non-matching lines are preserved verbatim.
func ParseToolCalls(text string) Result {
	if calls, cleaned, matched := parseTaggedBlocks(text); matched {
		return finish(calls, cleaned)
	}
	if calls, cleaned, matched := parseFencedBlocks(text); matched {
		return finish(calls, cleaned)
	}
	if calls, cleaned, matched := parseBareLines(text); matched {
		return finish(calls, cleaned)
	}
	return finish(nil, text)
}

func finish(calls []types.ToolCall, cleaned string) Result {
	return Result{
		ToolCalls:    calls,
		CleanedText:  cleanText(cleaned),
		HasToolCalls: len(calls) > 0,
	}
}

// cleanText collapses runs of blank lines to one and trims the result.
func cleanText(s string) string {
	return strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
}

func parseTaggedBlocks(text string) ([]types.ToolCall, string, bool) {
	matches := tagBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, "", false
	}

	var calls []types.ToolCall
	for _, m := range matches {
		// A failed block still counts as matched: the tag is stripped
		// below regardless, and parsing yields zero calls for it.
		calls = append(calls, decodeCalls(m[1])...)
	}
	cleaned := tagBlockRe.ReplaceAllString(text, "")
	return calls, cleaned, true
}

func parseFencedBlocks(text string) ([]types.ToolCall, string, bool) {
	matches := fencedBlockRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, "", false
	}

	var calls []types.ToolCall
	var cleaned strings.Builder
	last := 0
	stripped := false
	for _, idx := range matches {
		body := text[idx[2]:idx[3]]
		if blockCalls := decodeCalls(body); len(blockCalls) > 0 {
			calls = append(calls, blockCalls...)
			cleaned.WriteString(text[last:idx[0]])
			last = idx[1]
			stripped = true
		}
	}
	if !stripped {
		return nil, "", false
	}
	cleaned.WriteString(text[last:])
	return calls, cleaned.String(), true
}

func parseBareLines(text string) ([]types.ToolCall, string, bool) {
	lines := strings.Split(text, "\n")

	var calls []types.ToolCall
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			if call, ok := decodeCallObject(trimmed); ok {
				calls = append(calls, call)
				continue
			}
		}
		kept = append(kept, line)
	}
	if len(calls) == 0 {
		return nil, "", false
	}
	return calls, strings.Join(kept, "\n"), true
}

// rawCall is the decode target for one call object.
type rawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// decodeCalls parses a JSON payload holding a single call object, an array
// of call objects, or newline-delimited objects. Before giving up on the
// whole-payload forms it retries once with trailing commas stripped.
// Unrecoverable payloads yield zero calls.
func decodeCalls(payload string) []types.ToolCall {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}

	for _, candidate := range []string{payload, repairJSON(payload)} {
		if strings.HasPrefix(candidate, "[") {
			var raws []rawCall
			if err := json.Unmarshal([]byte(candidate), &raws); err == nil {
				return buildCalls(raws)
			}
			continue
		}
		var raw rawCall
		if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
			return buildCalls([]rawCall{raw})
		}
	}

	// Newline-delimited objects, one call per line.
	var calls []types.ToolCall
	for _, line := range strings.Split(payload, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		if call, ok := decodeCallObject(trimmed); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func decodeCallObject(line string) (types.ToolCall, bool) {
	for _, candidate := range []string{line, repairJSON(line)} {
		var raw rawCall
		if err := json.Unmarshal([]byte(candidate), &raw); err == nil && raw.Name != "" {
			return newCall(raw), true
		}
	}
	return types.ToolCall{}, false
}

func buildCalls(raws []rawCall) []types.ToolCall {
	calls := make([]types.ToolCall, 0, len(raws))
	for _, raw := range raws {
		if raw.Name == "" {
			continue
		}
		calls = append(calls, newCall(raw))
	}
	return calls
}

func newCall(raw rawCall) types.ToolCall {
	args := raw.Arguments
	if len(args) == 0 || !json.Valid(args) {
		args = json.RawMessage(`{}`)
	}
	return types.ToolCall{
		ID:        uuid.New().String(),
		Name:      raw.Name,
		Arguments: args,
	}
}

// repairJSON applies the one repair heuristic we trust: stripping trailing
// commas before closing braces and brackets.
func repairJSON(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}
