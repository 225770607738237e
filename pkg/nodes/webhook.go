package nodes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
)

// WebhookRequest is the body posted by webhook nodes.
type WebhookRequest struct {
	SessionID string         `json:"sessionId"`
	TenantID  string         `json:"tenantId"`
	Variables map[string]any `json:"variables"`
	NodeID    string         `json:"nodeId"`
}

// WebhookResponse is the body a webhook may answer with.
type WebhookResponse struct {
	Variables map[string]any `json:"variables,omitempty"`
	Response  any            `json:"response,omitempty"`
}

func (e *Executor) executeWebhook(
	ctx context.Context,
	session models.Session,
	flow *models.Flow,
	node *models.Node,
	vars map[string]any,
) (Result, error) {
	var data models.WebhookData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	ctx, cancel := withTimeout(ctx, data.Timeout)
	defer cancel()

	url := template.Interpolate(data.URL, vars)
	headers := make(map[string]string, len(data.Headers))

	for k, v := range data.Headers {
		headers[k] = template.Interpolate(v, vars)
	}

	var body WebhookResponse

	req := e.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&body)

	if method := strings.ToUpper(data.Method); method != http.MethodGet {
		req.SetBody(WebhookRequest{
			SessionID: session.ID,
			TenantID:  session.TenantID,
			Variables: vars,
			NodeID:    node.ID,
		})
	}

	resp, err := req.Execute(strings.ToUpper(data.Method), url)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, nodeError(node, fmt.Errorf("%w: timed out after %s", ErrWebhookFailed, data.Timeout))
		}

		return Result{}, nodeError(node, fmt.Errorf("%w: %w", ErrWebhookFailed, err))
	}

	if resp.IsError() {
		return Result{}, nodeError(node, fmt.Errorf("%w: %s returned %s", ErrWebhookFailed, url, resp.Status()))
	}

	e.logger.DebugContext(ctx, "Webhook called", "node_id", node.ID, "status", resp.StatusCode())

	result := Result{Success: true, NextNodeID: DefaultNext(flow, node.ID)}

	names := make([]string, 0, len(body.Variables))
	for name := range body.Variables {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		result.VariablesSet = append(result.VariablesSet, Assignment{
			Name:  name,
			Value: body.Variables[name],
			Type:  inferType(body.Variables[name]),
		})
	}

	if body.Response != nil {
		if content := template.Stringify(body.Response); content != "" {
			result.Responses = append(result.Responses, models.Response{
				Type:    models.ResponseTypeText,
				Content: content,
				NodeID:  node.ID,
			})
		}
	}

	return result, nil
}

func inferType(value any) models.VariableType {
	switch value.(type) {
	case float64, float32, int, int64, int32:
		return models.VariableTypeNumber
	case bool:
		return models.VariableTypeBoolean
	default:
		return models.VariableTypeText
	}
}
