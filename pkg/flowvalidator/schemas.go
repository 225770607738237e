package flowvalidator

import (
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var inputTypes = []any{"text", "number", "boolean", "date", "email", "phone", "url"}

var nonEmptyString = map[string]any{"type": "string", "minLength": 1}

var durationValue = map[string]any{"type": []any{"string", "number"}}

// nodeDataSchemas holds the JSON schema of each node type's data payload.
var nodeDataSchemas = map[models.NodeType]map[string]any{
	models.NodeTypeText: {
		"type":     "object",
		"required": []any{"content"},
		"properties": map[string]any{
			"content": map[string]any{"type": "string"},
		},
	},
	models.NodeTypeInput: {
		"type":     "object",
		"required": []any{"variable"},
		"properties": map[string]any{
			"content":        map[string]any{"type": "string"},
			"variable":       nonEmptyString,
			"inputType":      map[string]any{"enum": inputTypes},
			"invalidMessage": map[string]any{"type": "string"},
		},
	},
	models.NodeTypeButtons: {
		"type":     "object",
		"required": []any{"buttons"},
		"properties": map[string]any{
			"content":  map[string]any{"type": "string"},
			"variable": map[string]any{"type": "string"},
			"buttons": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []any{"id", "label"},
					"properties": map[string]any{
						"id":    nonEmptyString,
						"label": nonEmptyString,
						"value": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
	models.NodeTypeCondition: {
		"type": "object",
		"anyOf": []any{
			map[string]any{"required": []any{"conditions"}},
			map[string]any{"required": []any{"expression"}},
		},
		"properties": map[string]any{
			"logic":      map[string]any{"enum": []any{models.ConditionLogicAny, models.ConditionLogicAll}},
			"expression": nonEmptyString,
			"conditions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []any{"variable", "operator"},
					"properties": map[string]any{
						"variable": nonEmptyString,
						"operator": map[string]any{"type": "string"},
					},
				},
			},
		},
	},
	models.NodeTypeImage: mediaSchema(),
	models.NodeTypeVideo: mediaSchema(),
	models.NodeTypeWebhook: {
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":     nonEmptyString,
			"method":  map[string]any{"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"headers": map[string]any{"type": "object"},
			"timeout": durationValue,
		},
	},
	models.NodeTypeIntegration: {
		"type":     "object",
		"required": []any{"capability"},
		"properties": map[string]any{
			"capability":    nonEmptyString,
			"config":        map[string]any{"type": "object"},
			"saveAs":        map[string]any{"type": "string"},
			"outputMapping": map[string]any{"type": "object"},
			"timeout":       durationValue,
			"routing": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"field", "target"},
					"properties": map[string]any{
						"field":         nonEmptyString,
						"target":        nonEmptyString,
						"minConfidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
				},
			},
		},
	},
}

func mediaSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":      nonEmptyString,
			"caption":  map[string]any{"type": "string"},
			"mimeType": map[string]any{"type": "string"},
		},
	}
}

var compiledSchemas = sync.OnceValue(func() map[models.NodeType]*gojsonschema.Schema {
	out := make(map[models.NodeType]*gojsonschema.Schema, len(nodeDataSchemas))

	for nodeType, def := range nodeDataSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
		if err != nil {
			panic("invalid node data schema for " + string(nodeType) + ": " + err.Error())
		}

		out[nodeType] = schema
	}

	return out
})

// validateNodeData checks node.Data against the schema of its type and returns
// one message per violation.
func validateNodeData(node *models.Node) []string {
	schema, ok := compiledSchemas()[node.Type]
	if !ok {
		return nil
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return []string{err.Error()}
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return msgs
}
