package mbc

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Tool is a named, schema-described capability the model may invoke.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, input map[string]any) (any, error)
}

// Toolkit is the registry mapping tool name to capability. Registration
// order is preserved for Definitions; a duplicate name overwrites the
// earlier registration.
type Toolkit struct {
	tools   map[string]Tool
	order   []string
	schemas map[string]*gojsonschema.Schema
}

// NewToolkit creates an empty toolkit.
func NewToolkit() *Toolkit {
	return &Toolkit{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds tools to the registry. Input schemas are compiled eagerly
// so malformed schemas surface at registration, not mid-session.
func (tk *Toolkit) Register(tools ...Tool) error {
	for _, tool := range tools {
		def := tool.Definition()
		if def.Name == "" {
			return fmt.Errorf("tool definition has empty name")
		}

		if def.InputSchema != nil {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
			if err != nil {
				return fmt.Errorf("tool %q: invalid input schema: %w", def.Name, err)
			}
			tk.schemas[def.Name] = schema
		}

		if _, exists := tk.tools[def.Name]; !exists {
			tk.order = append(tk.order, def.Name)
		}
		tk.tools[def.Name] = tool
	}
	return nil
}

// Resolve returns the tool registered under name.
func (tk *Toolkit) Resolve(name string) (Tool, error) {
	tool, ok := tk.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return tool, nil
}

// Has reports whether a tool is registered.
func (tk *Toolkit) Has(name string) bool {
	_, ok := tk.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (tk *Toolkit) Count() int {
	return len(tk.tools)
}

// Names returns the registered tool names in registration order.
func (tk *Toolkit) Names() []string {
	names := make([]string, len(tk.order))
	copy(names, tk.order)
	return names
}

// Definitions returns all tool definitions in registration order, for the
// provider request.
func (tk *Toolkit) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tk.order))
	for _, name := range tk.order {
		defs = append(defs, tk.tools[name].Definition())
	}
	return defs
}

// ValidateInput checks a call's input against the tool's registered schema.
// Tools without a schema accept any input.
func (tk *Toolkit) ValidateInput(name string, input map[string]any) error {
	schema, ok := tk.schemas[name]
	if !ok {
		return nil
	}

	doc := input
	if doc == nil {
		doc = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("tool %q: input validation: %w", name, err)
	}
	if !result.Valid() {
		return fmt.Errorf("tool %q: invalid input: %s", name, result.Errors()[0].String())
	}
	return nil
}
