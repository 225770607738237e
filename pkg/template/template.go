// Package template substitutes {{variable}} placeholders in flow content.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Interpolate replaces every {{identifier}} in input with the matching variable.
// Dotted identifiers walk into nested maps. Placeholders without a value are
// left verbatim so partially configured flows still render.
func Interpolate(input string, variables map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	container := gabs.Wrap(variables)

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := Lookup(container, name)
		if !ok {
			return match
		}

		return Stringify(value)
	})
}

// InterpolateValue walks maps and slices and interpolates every string leaf.
func InterpolateValue(value any, variables map[string]any) any {
	switch v := value.(type) {
	case string:
		return Interpolate(v, variables)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = InterpolateValue(item, variables)
		}

		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			out[key] = Interpolate(item, variables)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = InterpolateValue(item, variables)
		}

		return out
	default:
		return value
	}
}

// Lookup resolves a plain or dotted name inside a variables container. A flat
// key containing dots wins over a nested path.
func Lookup(container *gabs.Container, name string) (any, bool) {
	if flat, ok := container.Data().(map[string]any); ok {
		if value, exists := flat[name]; exists && value != nil {
			return value, true
		}
	}

	if !strings.Contains(name, ".") || !container.ExistsP(name) {
		return nil, false
	}

	value := container.Path(name).Data()
	if value == nil {
		return nil, false
	}

	return value, true
}

// Stringify renders a variable value for display.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
