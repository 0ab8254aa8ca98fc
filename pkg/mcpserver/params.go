package mcpserver

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
)

// compileSchema builds the validator for a tool's parameter schema.
func compileSchema(t Tool) (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.InputSchema()))
	if err != nil {
		return nil, toolerr.Wrap(toolerr.Internal, err, "tool %s: invalid parameter schema", t.Name)
	}
	return schema, nil
}

// prepareArgs applies defaults, coerces loosely typed values (hosts often send
// numbers as strings) and validates the result against the tool schema.
func prepareArgs(t Tool, schema *gojsonschema.Schema, raw map[string]any) (Args, error) {
	declared := make(map[string]Param, len(t.Params))
	for _, p := range t.Params {
		declared[p.Name] = p
	}

	var unknown []string
	for name := range raw {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, toolerr.New(toolerr.Validation, "%s: unknown parameter(s): %s", t.Name, strings.Join(unknown, ", "))
	}

	args := make(Args, len(t.Params))
	for _, p := range t.Params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}
		args[p.Name] = coerce(p.Type, v)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(args)))
	if err != nil {
		return nil, toolerr.Wrap(toolerr.Validation, err, "%s: arguments could not be validated", t.Name)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, describe(desc))
		}
		return nil, toolerr.New(toolerr.Validation, "%s: %s", t.Name, strings.Join(details, "; "))
	}
	return args, nil
}

func describe(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if field == "(root)" || field == "" {
		return desc.Description()
	}
	return field + ": " + desc.Description()
}

func coerce(typ ParamType, v any) any {
	switch typ {
	case TypeString:
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s)
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case json.Number:
			return s.String()
		}
	case TypeInteger:
		switch n := v.(type) {
		case float64:
			if n == math.Trunc(n) {
				return int(n)
			}
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i
			}
		}
	case TypeNumber:
		switch n := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		case int:
			return float64(n)
		}
	case TypeBoolean:
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return b
			}
		}
	}
	return v
}
