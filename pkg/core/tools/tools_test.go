package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeToolGeneratesSchema(t *testing.T) {
	tool := MakeTool("draw_shape", "Draw a shape",
		func(ctx context.Context, input struct {
			Shape string `json:"shape" desc:"Shape kind" enum:"circle,square"`
			Size  int    `json:"size,omitempty"`
		}) (string, error) {
			return input.Shape, nil
		},
	)

	assert.Equal(t, "draw_shape", tool.Name)
	require.NotNil(t, tool.InputSchema)
	assert.Equal(t, "object", tool.InputSchema.Type)

	shape, ok := tool.InputSchema.Properties["shape"]
	require.True(t, ok)
	assert.Equal(t, "string", shape.Type)
	assert.Equal(t, "Shape kind", shape.Description)
	assert.Equal(t, []string{"circle", "square"}, shape.Enum)

	assert.Contains(t, tool.InputSchema.Required, "shape")
	assert.NotContains(t, tool.InputSchema.Required, "size")
}

func TestMakeToolHandlerParsesInput(t *testing.T) {
	tool := MakeTool("echo", "Echo the message",
		func(ctx context.Context, input struct {
			Message string `json:"message"`
		}) (string, error) {
			return input.Message, nil
		},
	)

	out, err := tool.Handler(context.Background(), json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestMakeToolHandlerToleratesMalformedInput(t *testing.T) {
	tool := MakeTool("echo", "Echo the message",
		func(ctx context.Context, input struct {
			Message string `json:"message"`
		}) (string, error) {
			return input.Message, nil
		},
	)

	out, err := tool.Handler(context.Background(), json.RawMessage(`{broken`))
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestSetRegistration(t *testing.T) {
	set := NewSet()
	set.Add(MakeTool("a", "first", func(ctx context.Context, _ struct{}) (string, error) {
		return "a", nil
	}))
	set.Add(MakeTool("b", "second", func(ctx context.Context, _ struct{}) (string, error) {
		return "b", nil
	}))

	assert.Equal(t, 2, set.Len())
	assert.Len(t, set.Definitions(), 2)

	h, ok := set.Handler("b")
	require.True(t, ok)
	out, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "b", out)

	_, ok = set.Handler("missing")
	assert.False(t, ok)
}

func TestSchemaForNestedTypes(t *testing.T) {
	type point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	type input struct {
		Points []point `json:"points"`
		Label  *string `json:"label"`
	}

	schema := SchemaForType(nil)
	assert.NotNil(t, schema)

	tool := MakeTool("plot", "Plot points", func(ctx context.Context, in input) (int, error) {
		return len(in.Points), nil
	})

	points := tool.InputSchema.Properties["points"]
	assert.Equal(t, "array", points.Type)
	require.NotNil(t, points.Items)
	assert.Equal(t, "object", points.Items.Type)
	assert.Equal(t, "number", points.Items.Properties["x"].Type)

	// Pointer fields are optional.
	assert.NotContains(t, tool.InputSchema.Required, "label")
}
