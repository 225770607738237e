package engine

import (
	"errors"

	"github.com/dukex/chatflow/pkg/session"
)

var (
	ErrFlowNotFound     = errors.New("flow not found")
	ErrFlowNotPublished = errors.New("flow is not published")
	ErrNoEntryNode      = errors.New("flow has no entry node")
	ErrSessionNotActive = session.ErrSessionNotActive
	ErrTooManySteps     = errors.New("too many node executions in one turn")
	ErrNodeNotFound     = errors.New("node not found in flow")
)
