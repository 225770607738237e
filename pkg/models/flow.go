// Package models defines the core domain models for conversational flow execution.
package models

import (
	"time"
)

// FlowStatus represents the lifecycle state of a flow.
type FlowStatus string

const (
	FlowStatusDraft       FlowStatus = "draft"       // Editable, not executable
	FlowStatusPublished   FlowStatus = "published"   // Read-only, executable
	FlowStatusUnpublished FlowStatus = "unpublished" // Historical, not executable
	FlowStatusArchived    FlowStatus = "archived"    // Retired, not executable
)

// Flow is a declarative graph of conversation nodes. Once published it is
// shared read-only by every session that references it.
type Flow struct {
	ID          string                `json:"id"`
	TenantID    string                `json:"tenantId,omitempty"`
	Name        string                `json:"name"                  validate:"required,min=3"`
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Status      FlowStatus            `json:"status"`
	Nodes       []*Node               `json:"nodes"`
	Edges       []*Edge               `json:"edges"`
	Variables   []VariableDeclaration `json:"variables"`
	Settings    map[string]any        `json:"settings,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
	PublishedAt *time.Time            `json:"publishedAt,omitempty"`
	ArchivedAt  *time.Time            `json:"archivedAt,omitempty"`
}

// IsPublished reports whether the flow can back new sessions.
func (f *Flow) IsPublished() bool {
	return f.Status == FlowStatusPublished
}

// IsEditable reports whether nodes, edges and variables may still change.
func (f *Flow) IsEditable() bool {
	return f.Status == FlowStatusDraft
}

// NodeByID returns the node with the given id, or nil.
func (f *Flow) NodeByID(id string) *Node {
	for _, node := range f.Nodes {
		if node != nil && node.ID == id {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node, in declaration order.
func (f *Flow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range f.Edges {
		if edge != nil && edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// HasIncomingEdge reports whether any edge targets the given node.
func (f *Flow) HasIncomingEdge(nodeID string) bool {
	for _, edge := range f.Edges {
		if edge != nil && edge.Target == nodeID {
			return true
		}
	}

	return false
}

// Variable returns the declaration with the given name.
func (f *Flow) Variable(name string) (VariableDeclaration, bool) {
	for _, v := range f.Variables {
		if v.Name == name {
			return v, true
		}
	}

	return VariableDeclaration{}, false
}

// EntryCandidates returns the nodes explicitly flagged as entry nodes.
func (f *Flow) EntryCandidates() []*Node {
	var flagged []*Node

	for _, node := range f.Nodes {
		if node != nil && node.IsEntry {
			flagged = append(flagged, node)
		}
	}

	return flagged
}

// EntryNode resolves the node where every session starts.
//
// An explicit isEntry flag wins and must be unique. Without a flag the first
// text or input node with no incoming edge is used, then the first node with no
// incoming edge at all.
func (f *Flow) EntryNode() (*Node, bool) {
	flagged := f.EntryCandidates()
	if len(flagged) == 1 {
		return flagged[0], true
	}

	if len(flagged) > 1 {
		return nil, false
	}

	for _, node := range f.Nodes {
		if node != nil && (node.Type == NodeTypeText || node.Type == NodeTypeInput) && !f.HasIncomingEdge(node.ID) {
			return node, true
		}
	}

	for _, node := range f.Nodes {
		if node != nil && !f.HasIncomingEdge(node.ID) {
			return node, true
		}
	}

	return nil, false
}
