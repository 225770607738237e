// Package nodes executes the individual node types of a conversation flow.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/go-resty/resty/v2"
)

// Assignment is a variable written by a node.
type Assignment struct {
	Name  string
	Value any
	Type  models.VariableType
}

// InputRequest suspends the session for a free-text answer.
type InputRequest struct {
	InputType models.VariableType
	Variable  string
}

// ChoiceRequest suspends the session for a button choice.
type ChoiceRequest struct {
	Variable string
	Choices  []models.Button
}

// Result is the outcome of executing one node. When neither wait field is set
// the engine moves to NextNodeID; an empty NextNodeID ends the branch.
type Result struct {
	Success       bool
	Responses     []models.Response
	NextNodeID    string
	WaitForInput  *InputRequest
	WaitForChoice *ChoiceRequest
	VariablesSet  []Assignment
}

// Suspends reports whether the node asked the session to wait for the user.
func (r Result) Suspends() bool {
	return r.WaitForInput != nil || r.WaitForChoice != nil
}

// Executor runs nodes. It holds no per-session state and is safe for
// concurrent use by many sessions.
type Executor struct {
	bridge bridge.Bridge
	client *resty.Client
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient sets the client used by webhook nodes.
func WithHTTPClient(client *resty.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// NewExecutor creates an executor that reaches external capabilities through b.
func NewExecutor(b bridge.Bridge, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		bridge: b,
		client: resty.New().SetHeader("Content-Type", "application/json"),
		logger: logger.With("module", "nodes"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs node for the session. Node failures are returned as *NodeError.
func (e *Executor) Execute(ctx context.Context, session models.Session, flow *models.Flow, node *models.Node) (Result, error) {
	vars := variableMap(session)

	switch node.Type {
	case models.NodeTypeText:
		return e.executeText(flow, node, vars)
	case models.NodeTypeInput:
		return e.executeInput(node, vars)
	case models.NodeTypeButtons:
		return e.executeButtons(node, vars)
	case models.NodeTypeCondition:
		return e.executeCondition(flow, node, vars)
	case models.NodeTypeImage, models.NodeTypeVideo:
		return e.executeMedia(flow, node, vars)
	case models.NodeTypeWebhook:
		return e.executeWebhook(ctx, session, flow, node, vars)
	case models.NodeTypeIntegration:
		return e.executeIntegration(ctx, flow, node, vars)
	default:
		return Result{}, nodeError(node, fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type))
	}
}

func decode(node *models.Node, target any) error {
	if err := models.DecodeData(node, target); err != nil {
		return nodeError(node, fmt.Errorf("%w: %w", ErrInvalidNodeData, err))
	}

	return nil
}

func variableMap(session models.Session) map[string]any {
	out := make(map[string]any, len(session.Variables))
	for _, v := range session.Variables {
		out[v.Name] = v.Value
	}

	return out
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
