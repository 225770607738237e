package nodes

import (
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
)

var (
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrInvalidNodeData   = errors.New("invalid node data")
	ErrWebhookFailed     = errors.New("webhook call failed")
	ErrIntegrationFailed = errors.New("integration failed")
	ErrRouteNotFound     = errors.New("routing target not found")
)

// NodeError is a failure while executing a single node. It is recoverable:
// the engine records it on the session and shows a fallback message.
type NodeError struct {
	NodeID   string
	NodeType models.NodeType
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func (e *NodeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func nodeError(node *models.Node, err error) *NodeError {
	return &NodeError{NodeID: node.ID, NodeType: node.Type, Err: err}
}

// IsNodeError reports whether err is a NodeError.
func IsNodeError(err error) bool {
	var nodeErr *NodeError

	return errors.As(err, &nodeErr)
}
