// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestFlow creates a published flow with no nodes that can be overridden.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	now := time.Now().UTC()

	flow := &models.Flow{
		ID:        uuid.New().String(),
		TenantID:  "tenant-1",
		Name:      "Test Flow",
		Type:      "chatbot",
		Status:    models.FlowStatusPublished,
		Nodes:     []*models.Node{},
		Edges:     []*models.Edge{},
		Variables: []models.VariableDeclaration{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithNodes appends nodes to the flow.
func WithNodes(nodes ...*models.Node) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Nodes = append(f.Nodes, nodes...)
	}
}

// WithEdges appends edges to the flow.
func WithEdges(edges ...*models.Edge) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Edges = append(f.Edges, edges...)
	}
}

// WithChain links the given node ids with unlabeled edges in order.
func WithChain(ids ...string) func(*models.Flow) {
	return func(f *models.Flow) {
		for i := 1; i < len(ids); i++ {
			f.Edges = append(f.Edges, Edge(ids[i-1], ids[i]))
		}
	}
}

// WithVariables appends variable declarations to the flow.
func WithVariables(vars ...models.VariableDeclaration) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Variables = append(f.Variables, vars...)
	}
}

// WithStatus sets the flow status.
func WithStatus(status models.FlowStatus) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Status = status
	}
}

// WithFlowID sets the flow id.
func WithFlowID(id string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ID = id
	}
}

// Node creates a node of the given type and data.
func Node(id string, nodeType models.NodeType, data map[string]any) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Data: data}
}

// TextNode creates a text node.
func TextNode(id, content string) *models.Node {
	return Node(id, models.NodeTypeText, map[string]any{"content": content})
}

// InputNode creates an input node that stores into variable.
func InputNode(id, prompt string, inputType models.VariableType, variable string) *models.Node {
	return Node(id, models.NodeTypeInput, map[string]any{
		"content":   prompt,
		"inputType": string(inputType),
		"variable":  variable,
	})
}

// ButtonsNode creates a buttons node with one button per id, labelled with the id.
func ButtonsNode(id, content string, buttonIDs ...string) *models.Node {
	buttons := make([]any, 0, len(buttonIDs))
	for _, b := range buttonIDs {
		buttons = append(buttons, map[string]any{"id": b, "label": b})
	}

	return Node(id, models.NodeTypeButtons, map[string]any{"content": content, "buttons": buttons})
}

// ConditionNode creates a condition node with a single clause.
func ConditionNode(id, variable string, operator models.ConditionOperator, value any) *models.Node {
	return Node(id, models.NodeTypeCondition, map[string]any{
		"conditions": []any{
			map[string]any{"variable": variable, "operator": string(operator), "value": value},
		},
	})
}

// WebhookNode creates a webhook node posting to url.
func WebhookNode(id, url string, timeout time.Duration) *models.Node {
	return Node(id, models.NodeTypeWebhook, map[string]any{"url": url, "timeout": timeout.String()})
}

// Entry flags the node as the flow entry.
func Entry(node *models.Node) *models.Node {
	node.IsEntry = true

	return node
}

// Edge creates an unlabeled edge.
func Edge(source, target string) *models.Edge {
	return &models.Edge{ID: source + "->" + target, Source: source, Target: target}
}

// LabeledEdge creates an edge with a branch label.
func LabeledEdge(source, target, label string) *models.Edge {
	e := Edge(source, target)
	e.Label = label

	return e
}

// HandleEdge creates an edge leaving a specific source handle.
func HandleEdge(source, handle, target string) *models.Edge {
	e := Edge(source, target)
	e.ID = source + ":" + handle + "->" + target
	e.SourceHandle = handle

	return e
}

// CreateTestSession creates an active session for the flow that can be overridden.
func CreateTestSession(flowID string, overrides ...func(*models.Session)) models.Session {
	now := time.Now().UTC()

	session := models.Session{
		ID:             uuid.New().String(),
		FlowID:         flowID,
		TenantID:       "tenant-1",
		Status:         models.SessionStatusActive,
		Trigger:        models.Trigger{Type: "api"},
		CreatedAt:      now,
		StartedAt:      &now,
		LastActivityAt: now,
	}

	for _, override := range overrides {
		override(&session)
	}

	return session
}

// WithVariable sets a captured variable on the session.
func WithVariable(name string, value any) func(*models.Session) {
	return func(s *models.Session) {
		s.Variables = append(s.Variables, models.CapturedVariable{
			Name:        name,
			Value:       value,
			Type:        models.VariableTypeText,
			CollectedAt: time.Now().UTC(),
		})
	}
}

// WithCurrentNode points the session at a node.
func WithCurrentNode(nodeID string) func(*models.Session) {
	return func(s *models.Session) {
		s.Context.CurrentNodeID = nodeID
	}
}

// WithLastActivity sets the last activity timestamp.
func WithLastActivity(t time.Time) func(*models.Session) {
	return func(s *models.Session) {
		s.LastActivityAt = t
	}
}

// WithSessionStatus sets the session status.
func WithSessionStatus(status models.SessionStatus) func(*models.Session) {
	return func(s *models.Session) {
		s.Status = status
	}
}

// WithTenant sets the flow tenant.
func WithTenant(tenantID string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.TenantID = tenantID
	}
}

// WithCreatedAt sets the flow creation timestamp.
func WithCreatedAt(t time.Time) func(*models.Flow) {
	return func(f *models.Flow) {
		f.CreatedAt = t
	}
}
