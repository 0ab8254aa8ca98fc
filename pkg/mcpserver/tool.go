package mcpserver

import (
	"context"
	"fmt"
	"strconv"
)

// Handler executes a validated invocation and returns the normalized result.
type Handler func(ctx context.Context, args Args) (string, error)

// Tool is an operation descriptor: a unique name, an ordered parameter
// schema and the handler bound to it. Tools are immutable once registered.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// ParamType is the JSON Schema type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Pattern     string
}

// String declares a string parameter.
func String(name, description string) Param {
	return Param{Name: name, Type: TypeString, Description: description}
}

// Integer declares an integer parameter.
func Integer(name, description string) Param {
	return Param{Name: name, Type: TypeInteger, Description: description}
}

// Boolean declares a boolean parameter.
func Boolean(name, description string) Param {
	return Param{Name: name, Type: TypeBoolean, Description: description}
}

// Require marks the parameter as required.
func (p Param) Require() Param {
	p.Required = true
	return p
}

// WithDefault sets the value used when the parameter is omitted.
func (p Param) WithDefault(v any) Param {
	p.Default = v
	return p
}

// Range bounds a numeric parameter (inclusive).
func (p Param) Range(lo, hi float64) Param {
	p.Minimum, p.Maximum = &lo, &hi
	return p
}

// OneOf restricts a string parameter to the given choices.
func (p Param) OneOf(choices ...string) Param {
	p.Enum = choices
	return p
}

// Matching constrains a string parameter to a regular expression.
func (p Param) Matching(pattern string) Param {
	p.Pattern = pattern
	return p
}

func (p Param) schema() map[string]any {
	prop := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		prop["enum"] = p.Enum
	}
	if p.Minimum != nil {
		prop["minimum"] = *p.Minimum
	}
	if p.Maximum != nil {
		prop["maximum"] = *p.Maximum
	}
	if p.Pattern != "" {
		prop["pattern"] = p.Pattern
	}
	if p.Type == TypeString && p.Required {
		prop["minLength"] = 1
	}
	return prop
}

// InputSchema returns the JSON Schema advertised to the host.
func (t Tool) InputSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	var required []string
	for _, p := range t.Params {
		props[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Def returns the listing form of the tool.
func (t Tool) Def() ToolDef {
	return ToolDef{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema()}
}

// Args are validated invocation arguments. Defaults have been applied and
// values coerced to their declared types.
type Args map[string]any

// String returns a string argument or "".
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer argument or 0.
func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// Bool returns a boolean argument or false.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Middleware is a function that wraps a request handler.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is a function that handles a JSON-RPC request.
type HandlerFunc func(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse
