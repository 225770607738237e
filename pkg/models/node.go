// Package models defines core node-based flow models for graph execution
package models

// NodeType is the closed set of node kinds the engine knows how to execute.
type NodeType string

const (
	NodeTypeText        NodeType = "text"
	NodeTypeInput       NodeType = "input"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeButtons     NodeType = "buttons"
	NodeTypeImage       NodeType = "image"
	NodeTypeVideo       NodeType = "video"
	NodeTypeWebhook     NodeType = "webhook"
	NodeTypeIntegration NodeType = "integration"
)

// NodeTypes lists every supported node type.
var NodeTypes = []NodeType{
	NodeTypeText,
	NodeTypeInput,
	NodeTypeCondition,
	NodeTypeButtons,
	NodeTypeImage,
	NodeTypeVideo,
	NodeTypeWebhook,
	NodeTypeIntegration,
}

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Edge labels used by condition nodes.
const (
	EdgeLabelTrue  = "true"
	EdgeLabelFalse = "false"
)

// Position is the editor placement of a node. The engine never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex of a flow. Its Data payload shape depends on Type and is
// decoded into one of the typed payloads in node_data.go.
type Node struct {
	ID       string         `json:"id"                 validate:"required"`
	Type     NodeType       `json:"type"               validate:"required"`
	Data     map[string]any `json:"data"`
	Position Position       `json:"position"`
	IsEntry  bool           `json:"isEntry,omitempty"`
}

// Edge connects two nodes. Label selects condition branches and SourceHandle
// selects button outputs.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	Label        string `json:"label,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}
