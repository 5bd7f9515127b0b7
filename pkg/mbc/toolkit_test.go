package mbc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedTool struct {
	name   string
	schema map[string]any
}

func (t namedTool) Definition() ToolDefinition {
	return ToolDefinition{Name: t.name, InputSchema: t.schema}
}

func (t namedTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return t.name, nil
}

func TestToolkit_RegisterAndResolve(t *testing.T) {
	tk := NewToolkit()
	require.NoError(t, tk.Register(namedTool{name: "a"}, namedTool{name: "b"}))

	assert.Equal(t, 2, tk.Count())
	assert.True(t, tk.Has("a"))
	assert.False(t, tk.Has("c"))

	tool, err := tk.Resolve("b")
	require.NoError(t, err)
	assert.Equal(t, "b", tool.Definition().Name)

	_, err = tk.Resolve("c")
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "c", unknown.Name)
}

func TestToolkit_DefinitionsKeepRegistrationOrder(t *testing.T) {
	tk := NewToolkit()
	require.NoError(t, tk.Register(namedTool{name: "z"}, namedTool{name: "a"}, namedTool{name: "m"}))

	assert.Equal(t, []string{"z", "a", "m"}, tk.Names())

	defs := tk.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "z", defs[0].Name)
	assert.Equal(t, "m", defs[2].Name)
}

func TestToolkit_DuplicateOverwrites(t *testing.T) {
	tk := NewToolkit()
	require.NoError(t, tk.Register(namedTool{name: "a"}))
	require.NoError(t, tk.Register(namedTool{name: "a"}))

	assert.Equal(t, 1, tk.Count())
	assert.Equal(t, []string{"a"}, tk.Names())
}

func TestToolkit_EmptyNameRejected(t *testing.T) {
	tk := NewToolkit()
	assert.Error(t, tk.Register(namedTool{}))
}

func TestToolkit_InvalidSchemaRejected(t *testing.T) {
	tk := NewToolkit()
	err := tk.Register(namedTool{
		name:   "bad",
		schema: map[string]any{"type": "object", "properties": "not-a-map"},
	})
	assert.Error(t, err)
}

func TestToolkit_ValidateInput(t *testing.T) {
	tk := NewToolkit()
	require.NoError(t, tk.Register(namedTool{
		name: "strict",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"count": map[string]any{"type": "integer"}},
			"required":   []string{"count"},
		},
	}))

	assert.NoError(t, tk.ValidateInput("strict", map[string]any{"count": 3}))
	assert.Error(t, tk.ValidateInput("strict", map[string]any{}))
	assert.Error(t, tk.ValidateInput("strict", map[string]any{"count": "three"}))

	// No schema registered means any input passes.
	require.NoError(t, tk.Register(namedTool{name: "loose"}))
	assert.NoError(t, tk.ValidateInput("loose", map[string]any{"anything": true}))
	assert.NoError(t, tk.ValidateInput("loose", nil))
}
