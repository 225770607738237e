package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate_NoPlaceholders(t *testing.T) {
	inputs := []string{"", "Hello there", "braces { } alone", "{single}"}

	for _, input := range inputs {
		assert.Equal(t, input, Interpolate(input, map[string]any{"x": "1"}))
	}
}

func TestInterpolate_MissingVariableIsVerbatim(t *testing.T) {
	assert.Equal(t, "{{x}}", Interpolate("{{x}}", map[string]any{}))
	assert.Equal(t, "{{x}}", Interpolate("{{x}}", nil))
	assert.Equal(t, "Hi Ana, your code is {{ code }}",
		Interpolate("Hi {{name}}, your code is {{ code }}", map[string]any{"name": "Ana"}))
}

func TestInterpolate_Values(t *testing.T) {
	vars := map[string]any{
		"name":     "Ana",
		"score":    9.0,
		"ratio":    0.75,
		"active":   true,
		"count":    3,
		"tags":     []any{"a", "b"},
		"order.id": "flat-wins",
		"order": map[string]any{
			"id":    "nested",
			"total": 120.5,
			"items": []any{map[string]any{"sku": "X1"}},
		},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"Hi {{name}}", "Hi Ana"},
		{"{{ name }}!", "Ana!"},
		{"score={{score}}", "score=9"},
		{"ratio={{ratio}}", "ratio=0.75"},
		{"{{active}}", "true"},
		{"{{count}}", "3"},
		{"{{tags}}", `["a","b"]`},
		{"{{order.total}}", "120.5"},
		{"{{order.id}}", "flat-wins"},
		{"{{order.items.0.sku}}", "X1"},
		{"{{order.missing}}", "{{order.missing}}"},
		{"{{name}} and {{name}}", "Ana and Ana"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.input, vars))
		})
	}
}

func TestInterpolate_Idempotent(t *testing.T) {
	vars := map[string]any{"name": "Ana"}

	once := Interpolate("Hello {{name}} {{unknown}}", vars)
	twice := Interpolate(once, vars)

	assert.Equal(t, once, twice)
}

func TestInterpolateValue(t *testing.T) {
	vars := map[string]any{"email": "ana@example.com", "plan": "pro"}

	got := InterpolateValue(map[string]any{
		"to":      "{{email}}",
		"retries": 3,
		"nested":  map[string]any{"plan": "{{plan}}"},
		"list":    []any{"{{plan}}", 1},
		"headers": map[string]string{"X-Plan": "{{plan}}"},
	}, vars)

	assert.Equal(t, map[string]any{
		"to":      "ana@example.com",
		"retries": 3,
		"nested":  map[string]any{"plan": "pro"},
		"list":    []any{"pro", 1},
		"headers": map[string]string{"X-Plan": "pro"},
	}, got)
}
