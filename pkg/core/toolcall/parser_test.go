package toolcall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCalls_TaggedArray(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>[{"name":"x","arguments":{"a":1}}]</tool_calls>`)

	require.True(t, res.HasToolCalls)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "x", res.ToolCalls[0].Name)
	assert.NotEmpty(t, res.ToolCalls[0].ID)
	assert.JSONEq(t, `{"a":1}`, string(res.ToolCalls[0].Arguments))
	assert.Equal(t, "", res.CleanedText)
}

func TestParseToolCalls_TaggedSingleObject(t *testing.T) {
	res := ParseToolCalls(`before <tool_calls>{"name":"draw","arguments":{"shape":"circle"}}</tool_calls> after`)

	require.True(t, res.HasToolCalls)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "draw", res.ToolCalls[0].Name)
	assert.Equal(t, "before  after", res.CleanedText)
}

func TestParseToolCalls_PlainText(t *testing.T) {
	res := ParseToolCalls("hello world")

	assert.False(t, res.HasToolCalls)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, "hello world", res.CleanedText)
}

func TestParseToolCalls_MalformedTaggedBlockStillStripped(t *testing.T) {
	res := ParseToolCalls(`sure <tool_calls>{not json at all</tool_calls> done`)

	assert.False(t, res.HasToolCalls)
	assert.NotContains(t, res.CleanedText, "<tool_calls>")
	assert.NotContains(t, res.CleanedText, "not json")
}

func TestParseToolCalls_MultipleTaggedBlocks(t *testing.T) {
	text := `<tool_calls>{"name":"a"}</tool_calls> mid <tool_calls>[{"name":"b"},{"name":"c"}]</tool_calls>`
	res := ParseToolCalls(text)

	require.Len(t, res.ToolCalls, 3)
	assert.Equal(t, "a", res.ToolCalls[0].Name)
	assert.Equal(t, "b", res.ToolCalls[1].Name)
	assert.Equal(t, "c", res.ToolCalls[2].Name)
	assert.Equal(t, "mid", res.CleanedText)
}

func TestParseToolCalls_NewlineDelimitedObjectsInTaggedBlock(t *testing.T) {
	text := "<tool_calls>\n{\"name\":\"a\",\"arguments\":{}}\n{\"name\":\"b\",\"arguments\":{}}\n</tool_calls>"
	res := ParseToolCalls(text)

	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "a", res.ToolCalls[0].Name)
	assert.Equal(t, "b", res.ToolCalls[1].Name)
}

func TestParseToolCalls_FencedBlock(t *testing.T) {
	text := "I'll look that up.\n```json\n{\"name\":\"search\",\"arguments\":{\"q\":\"weather\"}}\n```"
	res := ParseToolCalls(text)

	require.True(t, res.HasToolCalls)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "search", res.ToolCalls[0].Name)
	assert.Equal(t, "I'll look that up.", res.CleanedText)
}

func TestParseToolCalls_FencedBlockWithoutCallPreserved(t *testing.T) {
	text := "example:\n```go\nfunc main() {}\n```"
	res := ParseToolCalls(text)

	assert.False(t, res.HasToolCalls)
	assert.Contains(t, res.CleanedText, "func main()")
}

func TestParseToolCalls_BareJSONLine(t *testing.T) {
	text := "working on it\n{\"name\":\"ping\",\"arguments\":{}}\nall done"
	res := ParseToolCalls(text)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "ping", res.ToolCalls[0].Name)
	assert.Equal(t, "working on it\nall done", res.CleanedText)
}

func TestParseToolCalls_BareLineWithoutNamePreserved(t *testing.T) {
	text := `{"foo":"bar"}`
	res := ParseToolCalls(text)

	assert.False(t, res.HasToolCalls)
	assert.Equal(t, `{"foo":"bar"}`, res.CleanedText)
}

func TestParseToolCalls_TrailingCommaRepair(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>[{"name":"x","arguments":{"a":1,},}]</tool_calls>`)

	require.True(t, res.HasToolCalls)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "x", res.ToolCalls[0].Name)
}

func TestParseToolCalls_MissingArgumentsDefaultsToEmptyObject(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>{"name":"clear"}</tool_calls>`)

	require.Len(t, res.ToolCalls, 1)
	assert.JSONEq(t, `{}`, string(res.ToolCalls[0].Arguments))
}

func TestParseToolCalls_EmptyNameRejected(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>{"name":"","arguments":{}}</tool_calls>`)

	assert.False(t, res.HasToolCalls)
}

func TestParseToolCalls_UniqueIDs(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>[{"name":"a"},{"name":"a"}]</tool_calls>`)

	require.Len(t, res.ToolCalls, 2)
	assert.NotEqual(t, res.ToolCalls[0].ID, res.ToolCalls[1].ID)
}

func TestParseToolCalls_BlankLineRunsCollapsed(t *testing.T) {
	res := ParseToolCalls("a\n\n\n\n<tool_calls>{\"name\":\"x\"}</tool_calls>\n\n\n\nb")

	assert.Equal(t, "a\n\nb", res.CleanedText)
}

func TestParseToolCalls_ArgumentsRoundTrip(t *testing.T) {
	res := ParseToolCalls(`<tool_calls>{"name":"move","arguments":{"x":3,"y":[1,2]}}</tool_calls>`)

	require.Len(t, res.ToolCalls, 1)
	var args struct {
		X int   `json:"x"`
		Y []int `json:"y"`
	}
	require.NoError(t, json.Unmarshal(res.ToolCalls[0].Arguments, &args))
	assert.Equal(t, 3, args.X)
	assert.Equal(t, []int{1, 2}, args.Y)
}

func TestHasToolCallTags(t *testing.T) {
	assert.True(t, HasToolCallTags("<tool_calls>[]</tool_calls>"))
	assert.True(t, HasToolCallTags("```json\n{}\n```"))
	assert.True(t, HasToolCallTags(`{"name":"x"}`))
	assert.False(t, HasToolCallTags("just a plain sentence"))
}
