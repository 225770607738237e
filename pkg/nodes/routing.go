package nodes

import "github.com/dukex/chatflow/pkg/models"

// DefaultNext returns the target of the node's default outgoing edge: the
// first edge without a label or source handle, else the first edge at all.
func DefaultNext(flow *models.Flow, nodeID string) string {
	edges := flow.OutgoingEdges(nodeID)

	for _, edge := range edges {
		if edge.Label == "" && edge.SourceHandle == "" {
			return edge.Target
		}
	}

	if len(edges) > 0 {
		return edges[0].Target
	}

	return ""
}

// LabeledNext returns the target of the edge carrying label, or "".
func LabeledNext(flow *models.Flow, nodeID, label string) string {
	for _, edge := range flow.OutgoingEdges(nodeID) {
		if edge.Label == label {
			return edge.Target
		}
	}

	return ""
}

// ChoiceNext returns the target for a button choice: the edge whose source
// handle equals the button id, falling back to the default edge.
func ChoiceNext(flow *models.Flow, nodeID, buttonID string) string {
	for _, edge := range flow.OutgoingEdges(nodeID) {
		if edge.SourceHandle == buttonID {
			return edge.Target
		}
	}

	for _, edge := range flow.OutgoingEdges(nodeID) {
		if edge.SourceHandle == "" {
			return edge.Target
		}
	}

	return ""
}
