package models

import (
	"fmt"
	"reflect"
	"time"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
)

// TextData is the payload of a text node.
type TextData struct {
	Content string `json:"content"`
}

// InputData is the payload of an input node.
type InputData struct {
	Content        string       `json:"content"`
	InputType      VariableType `json:"inputType"      default:"text"`
	Variable       string       `json:"variable"`
	InvalidMessage string       `json:"invalidMessage" default:"That doesn't look right. Please try again."`
}

// Button is one fixed choice of a buttons node.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// ButtonsData is the payload of a buttons node. The selected button id is
// always stored as selected_button and, when Variable is set, under that name too.
type ButtonsData struct {
	Content  string   `json:"content"`
	Buttons  []Button `json:"buttons"`
	Variable string   `json:"variable,omitempty"`
}

// Button returns the button matching id, label or value (case-sensitive id first).
func (d ButtonsData) Button(answer string) (Button, bool) {
	for _, b := range d.Buttons {
		if b.ID == answer {
			return b, true
		}
	}

	for _, b := range d.Buttons {
		if b.Label == answer || (b.Value != "" && b.Value == answer) {
			return b, true
		}
	}

	return Button{}, false
}

// ConditionOperator is a comparison used by condition clauses.
type ConditionOperator string

const (
	OperatorEquals   ConditionOperator = "equals"
	OperatorContains ConditionOperator = "contains"
	OperatorGreater  ConditionOperator = "greater"
	OperatorLess     ConditionOperator = "less"
)

// ConditionClause compares a stored variable with a literal value.
type ConditionClause struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// Condition logic modes.
const (
	ConditionLogicAny = "any"
	ConditionLogicAll = "all"
)

// ConditionData is the payload of a condition node. With logic "any" the first
// matching clause selects the true branch; with "all" every clause must match.
// Expression, when set, is evaluated after the clauses and must also hold.
type ConditionData struct {
	Conditions []ConditionClause `json:"conditions"`
	Logic      string            `json:"logic"      default:"any"`
	Expression string            `json:"expression"`
}

// MediaData is the payload of image and video nodes.
type MediaData struct {
	URL      string `json:"url"`
	Caption  string `json:"caption"`
	MimeType string `json:"mimeType"`
}

// WebhookData is the payload of a webhook node.
type WebhookData struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"  default:"POST"`
	Headers map[string]string `json:"headers"`
	Timeout time.Duration     `json:"timeout" default:"10s"`
}

// RoutingRule maps an integration result to a target node. Only AI
// integrations route; the rule matches when Field compares true against Value
// and the confidence found at ConfidenceField is at least MinConfidence.
type RoutingRule struct {
	Field           string            `json:"field"`
	Operator        ConditionOperator `json:"operator"        default:"equals"`
	Value           any               `json:"value"`
	MinConfidence   float64           `json:"minConfidence"`
	ConfidenceField string            `json:"confidenceField" default:"confidence"`
	Target          string            `json:"target"`
}

// IntegrationData is the payload of an integration node.
type IntegrationData struct {
	Capability    string            `json:"capability"`
	Config        map[string]any    `json:"config"`
	SaveAs        string            `json:"saveAs"`
	OutputMapping map[string]string `json:"outputMapping"`
	Routing       []RoutingRule     `json:"routing"`
	Response      string            `json:"response"`
	Timeout       time.Duration     `json:"timeout"       default:"15s"`
}

// DecodeData decodes the node payload into target, applying struct defaults
// first so that absent keys keep their default values.
func DecodeData(node *Node, target any) error {
	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("failed to apply defaults for node %s: %w", node.ID, err)
	}

	if len(node.Data) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			secondsToDurationHook,
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(node.Data); err != nil {
		return fmt.Errorf("failed to decode %s data for node %s: %w", node.Type, node.ID, err)
	}

	return nil
}

// secondsToDurationHook lets JSON numbers express timeouts in seconds.
func secondsToDurationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	switch v := data.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	default:
		return data, nil
	}
}
