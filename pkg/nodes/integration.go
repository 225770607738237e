package nodes

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/Jeffail/gabs/v2"
	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/conditions"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
)

func (e *Executor) executeIntegration(ctx context.Context, flow *models.Flow, node *models.Node, vars map[string]any) (Result, error) {
	var data models.IntegrationData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	if e.bridge == nil {
		return Result{}, nodeError(node, fmt.Errorf("%w: no bridge configured", ErrIntegrationFailed))
	}

	capability := bridge.Normalize(data.Capability)

	config, _ := template.InterpolateValue(data.Config, vars).(map[string]any)

	ctx, cancel := withTimeout(ctx, data.Timeout)
	defer cancel()

	out, err := e.bridge.Invoke(ctx, capability, config, vars)
	if err != nil {
		return Result{}, nodeError(node, fmt.Errorf("%w: %w", ErrIntegrationFailed, err))
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "capability reported failure"
		}

		return Result{}, nodeError(node, fmt.Errorf("%w: %s: %s", ErrIntegrationFailed, capability, msg))
	}

	result := Result{Success: true, VariablesSet: mapOutput(data, out.Data)}

	next := DefaultNext(flow, node.ID)

	if capability.IsAI() {
		target, routed := route(data.Routing, out.Data)
		if routed {
			if flow.NodeByID(target) == nil {
				return Result{}, nodeError(node, fmt.Errorf("%w: %s", ErrRouteNotFound, target))
			}

			e.logger.DebugContext(ctx, "Integration routed", "node_id", node.ID, "target", target)
			next = target
		}
	}

	result.NextNodeID = next

	if data.Response != "" {
		scope := maps.Clone(vars)
		for _, a := range result.VariablesSet {
			scope[a.Name] = a.Value
		}

		scope["result"] = out.Data

		result.Responses = append(result.Responses, models.Response{
			Type:    models.ResponseTypeText,
			Content: template.Interpolate(data.Response, scope),
			NodeID:  node.ID,
		})
	}

	return result, nil
}

// mapOutput turns bridge data into variable assignments. outputMapping maps
// variable names to dotted paths inside data; saveAs stores the whole payload.
func mapOutput(data models.IntegrationData, payload map[string]any) []Assignment {
	var out []Assignment

	if len(data.OutputMapping) > 0 && payload != nil {
		container := gabs.Wrap(payload)

		names := make([]string, 0, len(data.OutputMapping))
		for name := range data.OutputMapping {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			value, ok := template.Lookup(container, data.OutputMapping[name])
			if !ok {
				continue
			}

			out = append(out, Assignment{Name: name, Value: value, Type: inferType(value)})
		}
	}

	if data.SaveAs != "" {
		out = append(out, Assignment{Name: data.SaveAs, Value: payload, Type: models.VariableTypeText})
	}

	return out
}

// route returns the target of the first rule that matches the payload.
func route(rules []models.RoutingRule, payload map[string]any) (string, bool) {
	if len(rules) == 0 || payload == nil {
		return "", false
	}

	container := gabs.Wrap(payload)

	for _, rule := range rules {
		value, ok := template.Lookup(container, rule.Field)
		if !ok {
			continue
		}

		operator := rule.Operator
		if operator == "" {
			operator = models.OperatorEquals
		}

		if !conditions.Compare(value, operator, rule.Value) {
			continue
		}

		if rule.MinConfidence > 0 {
			field := rule.ConfidenceField
			if field == "" {
				field = "confidence"
			}

			raw, ok := template.Lookup(container, field)
			if !ok {
				continue
			}

			confidence, err := toFloat(raw)
			if err != nil || confidence < rule.MinConfidence {
				continue
			}
		}

		return rule.Target, true
	}

	return "", false
}

var errNotNumeric = errors.New("not numeric")

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, errNotNumeric
	}
}
