// Package engine is the facade that creates sessions and advances them one
// user turn at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/log"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/session"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FallbackMessage is shown to the user when a node fails.
const FallbackMessage = "Sorry, something went wrong. Let's try again."

// InvalidChoiceMessage is shown when an answer matches no pending button.
const InvalidChoiceMessage = "Please choose one of the options."

// DefaultMaxStepsPerTurn bounds node executions in a single turn.
const DefaultMaxStepsPerTurn = 100

// CreateSessionRequest describes a new session.
type CreateSessionRequest struct {
	FlowID            string
	TenantID          string
	ChannelInstanceID string
	Trigger           models.Trigger
	Contact           models.Contact
	InitialVariables  map[string]any
}

// TurnResult is the session snapshot after a turn plus every bot output
// produced during it, in order.
type TurnResult struct {
	Session   models.Session    `json:"session"`
	Responses []models.Response `json:"responses"`
}

// Engine interprets flows. It keeps no session state between calls; callers
// persist the returned snapshot and serialize turns per session.
type Engine struct {
	flows    FlowSource
	executor *nodes.Executor
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
	maxSteps int
	client   *resty.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer used for turn and node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how session and step ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithMaxStepsPerTurn overrides DefaultMaxStepsPerTurn.
func WithMaxStepsPerTurn(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithHTTPClient sets the client webhook nodes use.
func WithHTTPClient(client *resty.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// NewEngine creates an engine reading flows from flows and reaching external
// capabilities through b.
func NewEngine(flows FlowSource, b bridge.Bridge, opts ...Option) *Engine {
	e := &Engine{
		flows:    flows,
		logger:   slog.Default(),
		tracer:   otel.Tracer("chatflow/engine"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		maxSteps: DefaultMaxStepsPerTurn,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "engine")

	var execOpts []nodes.Option
	if e.client != nil {
		execOpts = append(execOpts, nodes.WithHTTPClient(e.client))
	}

	e.executor = nodes.NewExecutor(b, e.logger, execOpts...)

	return e
}

// turn accumulates the state of one call.
type turn struct {
	flow      *models.Flow
	session   models.Session
	responses []models.Response
	logger    *slog.Logger
}

func (t *turn) apply(events ...session.Event) error {
	next, err := session.Apply(t.session, events...)
	if err != nil {
		return err
	}

	t.session = next

	return nil
}

func (t *turn) result() TurnResult {
	responses := t.responses
	if responses == nil {
		responses = []models.Response{}
	}

	return TurnResult{Session: t.session, Responses: responses}
}

// CreateSession starts a new session on a published flow and runs it until
// it first waits for the user or completes.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (TurnResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.create_session",
		attribute.String(otelhelper.FlowIDKey, req.FlowID),
		attribute.String(otelhelper.TriggerTypeKey, req.Trigger.Type),
	)
	defer span.End()

	flow, err := e.flows.Flow(ctx, req.FlowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return TurnResult{}, fmt.Errorf("failed to load flow %s: %w", req.FlowID, err)
	}

	if !flow.IsPublished() {
		return TurnResult{}, fmt.Errorf("%w: %s is %s", ErrFlowNotPublished, flow.ID, flow.Status)
	}

	entry, ok := flow.EntryNode()
	if !ok {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrNoEntryNode, flow.ID)
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = flow.TenantID
	}

	now := e.now()

	t := &turn{
		flow: flow,
		session: models.Session{
			ID:                e.newID(),
			FlowID:            flow.ID,
			TenantID:          tenantID,
			ChannelInstanceID: req.ChannelInstanceID,
			Trigger:           req.Trigger,
			Contact:           req.Contact,
			Variables:         []models.CapturedVariable{},
			ConversationSteps: []models.ConversationStep{},
			CreatedAt:         now,
			LastActivityAt:    now,
		},
	}
	t.logger = log.WithSession(e.logger, t.session.ID, flow.ID)
	span.SetAttributes(otelhelper.SessionAttributes(t.session)...)

	if err := t.apply(seedEvents(flow, req.InitialVariables, now)...); err != nil {
		return TurnResult{}, err
	}

	if err := t.apply(session.Start{EntryNodeID: entry.ID, At: now}); err != nil {
		return TurnResult{}, err
	}

	t.logger.InfoContext(ctx, "Session started", "entry_node", entry.ID)

	if err := e.traverse(ctx, t, entry.ID); err != nil {
		otelhelper.SetError(span, err)

		return TurnResult{}, err
	}

	return t.result(), nil
}

// seedEvents stores declared defaults, then the caller's initial variables.
func seedEvents(flow *models.Flow, initial map[string]any, at time.Time) []session.Event {
	var events []session.Event

	for _, decl := range flow.Variables {
		if decl.DefaultValue == nil || decl.Name == "" {
			continue
		}

		events = append(events, session.SetVariable{Name: decl.Name, Value: decl.DefaultValue, Type: decl.Type, At: at})
	}

	names := make([]string, 0, len(initial))
	for name := range initial {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		varType := models.VariableTypeText
		if decl, ok := flow.Variable(name); ok && decl.Type != "" {
			varType = decl.Type
		}

		events = append(events, session.SetVariable{Name: name, Value: initial[name], Type: varType, At: at})
	}

	return events
}

// ContinueSession feeds one user message to the session and runs it until it
// waits again or completes.
func (e *Engine) ContinueSession(ctx context.Context, s models.Session, userInput string) (TurnResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.continue_session", otelhelper.SessionAttributes(s)...)
	defer span.End()

	if !s.IsActive() {
		return TurnResult{}, fmt.Errorf("%w: %s is %s", ErrSessionNotActive, s.ID, s.Status)
	}

	flow, err := e.flows.Flow(ctx, s.FlowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return TurnResult{}, fmt.Errorf("failed to load flow %s: %w", s.FlowID, err)
	}

	t := &turn{
		flow:    flow,
		session: s,
		logger:  log.WithSession(e.logger, s.ID, flow.ID),
	}

	current := flow.NodeByID(s.Context.CurrentNodeID)
	if current == nil {
		return TurnResult{}, fmt.Errorf("%w: %s", ErrNodeNotFound, s.Context.CurrentNodeID)
	}

	now := e.now()

	if err := t.apply(session.AddStep{Step: models.ConversationStep{
		ID:        e.newID(),
		Role:      models.StepRoleUser,
		NodeID:    current.ID,
		Content:   userInput,
		Timestamp: now,
	}}); err != nil {
		return TurnResult{}, err
	}

	var next string

	switch s.Context.Pending {
	case models.PendingInput:
		accepted, err := e.acceptInput(ctx, t, current, userInput)
		if err != nil || !accepted {
			return t.result(), err
		}

		next = nodes.DefaultNext(flow, current.ID)
	case models.PendingChoice:
		button, accepted, err := e.acceptChoice(t, current, userInput)
		if err != nil || !accepted {
			return t.result(), err
		}

		next = nodes.ChoiceNext(flow, current.ID, button.ID)
	case models.PendingNone:
		if failedAt(s) == current.ID {
			// The previous turn failed on this node; the user's message retries it.
			next = current.ID
		} else {
			t.logger.DebugContext(ctx, "Input received while not waiting; not stored", "node_id", current.ID)
			next = nodes.DefaultNext(flow, current.ID)
		}
	}

	if err := e.traverse(ctx, t, next); err != nil {
		otelhelper.SetError(span, err)

		return TurnResult{}, err
	}

	return t.result(), nil
}

// failedAt returns the node the last turn failed on, or "" when the session
// is not parked on a failure.
func failedAt(s models.Session) string {
	if s.Context.IsWaitingForInput || len(s.Context.Errors) == 0 {
		return ""
	}

	last := s.Context.Errors[len(s.Context.Errors)-1]
	if last.NodeID != s.Context.CurrentNodeID {
		return ""
	}

	return last.NodeID
}

// traverse executes nodes starting at nodeID until one suspends, a branch
// ends, or a node fails. A node that is already current is not re-entered.
func (e *Engine) traverse(ctx context.Context, t *turn, nodeID string) error {
	for steps := 0; ; steps++ {
		if nodeID == "" {
			t.logger.InfoContext(ctx, "Session completed")

			return t.apply(session.Complete{At: e.now()})
		}

		if steps >= e.maxSteps {
			return e.fail(ctx, t, t.session.Context.CurrentNodeID, fmt.Errorf("%w: limit is %d", ErrTooManySteps, e.maxSteps))
		}

		node := t.flow.NodeByID(nodeID)
		if node == nil {
			return e.fail(ctx, t, t.session.Context.CurrentNodeID, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID))
		}

		if t.session.Context.CurrentNodeID != node.ID {
			if err := t.apply(session.MoveToNode{NodeID: node.ID, At: e.now()}); err != nil {
				return err
			}
		}

		result, err := e.execute(ctx, t, node)
		if err != nil {
			return e.fail(ctx, t, node.ID, err)
		}

		if err := e.record(t, node, result); err != nil {
			return err
		}

		switch {
		case result.WaitForInput != nil:
			return t.apply(session.WaitForInput{
				InputType: result.WaitForInput.InputType,
				Variable:  result.WaitForInput.Variable,
				At:        e.now(),
			})
		case result.WaitForChoice != nil:
			return t.apply(session.WaitForChoice{
				Variable: result.WaitForChoice.Variable,
				Choices:  result.WaitForChoice.Choices,
				At:       e.now(),
			})
		}

		nodeID = result.NextNodeID
	}
}

func (e *Engine) execute(ctx context.Context, t *turn, node *models.Node) (nodes.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	result, err := e.executor.Execute(ctx, t.session, t.flow, node)
	if err != nil {
		otelhelper.SetNodeError(span, err, node)
	}

	return result, err
}

// record applies the variables and bot steps a node produced.
func (e *Engine) record(t *turn, node *models.Node, result nodes.Result) error {
	now := e.now()

	events := make([]session.Event, 0, len(result.VariablesSet)+len(result.Responses))

	for _, a := range result.VariablesSet {
		events = append(events, session.SetVariable{Name: a.Name, Value: a.Value, Type: a.Type, SourceNodeID: node.ID, At: now})
	}

	for _, r := range result.Responses {
		response := r
		events = append(events, session.AddStep{Step: models.ConversationStep{
			ID:        e.newID(),
			Role:      models.StepRoleBot,
			NodeID:    node.ID,
			Content:   response.Content,
			Response:  &response,
			Timestamp: now,
		}})
	}

	if err := t.apply(events...); err != nil {
		return err
	}

	t.responses = append(t.responses, result.Responses...)

	return nil
}

// fail records a node failure: the fallback message is shown, the error is
// counted and the turn stops on the failed node.
func (e *Engine) fail(ctx context.Context, t *turn, nodeID string, cause error) error {
	t.logger.WarnContext(ctx, "Node execution failed", "node_id", nodeID, "error", cause)

	now := e.now()
	fallback := models.Response{Type: models.ResponseTypeText, Content: FallbackMessage, NodeID: nodeID}

	if err := t.apply(
		session.AddStep{Step: models.ConversationStep{
			ID:        e.newID(),
			Role:      models.StepRoleBot,
			NodeID:    nodeID,
			Content:   FallbackMessage,
			Response:  &fallback,
			Metadata:  map[string]any{"error": cause.Error()},
			Timestamp: now,
		}},
		session.AddError{Message: cause.Error(), NodeID: nodeID, At: now},
	); err != nil {
		return err
	}

	t.responses = append(t.responses, fallback)

	if t.session.Status == models.SessionStatusError {
		t.logger.ErrorContext(ctx, "Session reached error threshold", "errors", len(t.session.Context.Errors))
	}

	return nil
}

// Abandon marks an idle session abandoned.
func (e *Engine) Abandon(s models.Session, at time.Time) (models.Session, error) {
	return session.Reduce(s, session.Abandon{At: at})
}

// Transfer hands a session off to target.
func (e *Engine) Transfer(s models.Session, target string) (models.Session, error) {
	return session.Reduce(s, session.Transfer{Target: target, At: e.now()})
}

// IsNodeFailure reports whether err came from a node rather than the engine.
func IsNodeFailure(err error) bool {
	return nodes.IsNodeError(err) || errors.Is(err, ErrTooManySteps)
}
