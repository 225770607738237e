package session

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// Event is a transition of the session state machine. The set is closed;
// Reduce switches over every implementation.
type Event interface {
	eventName() string
}

// Start activates a new session at its entry node.
type Start struct {
	EntryNodeID string
	At          time.Time
}

// MoveToNode points the session at another node and clears any wait.
type MoveToNode struct {
	NodeID string
	At     time.Time
}

// WaitForInput suspends the session until a free-text answer arrives.
type WaitForInput struct {
	InputType models.VariableType
	Variable  string
	At        time.Time
}

// WaitForChoice suspends the session until one of Choices is picked.
type WaitForChoice struct {
	Variable string
	Choices  []models.Button
	At       time.Time
}

// AddStep appends a conversation step.
type AddStep struct {
	Step models.ConversationStep
}

// SetVariable upserts a captured variable.
type SetVariable struct {
	Name         string
	Value        any
	Type         models.VariableType
	SourceNodeID string
	At           time.Time
}

// AddError records a node failure.
type AddError struct {
	Message string
	NodeID  string
	At      time.Time
}

// Complete ends the session successfully.
type Complete struct {
	At time.Time
}

// Abandon ends an idle session. Issued by the idle sweep, never by the engine.
type Abandon struct {
	At time.Time
}

// Transfer hands the session off to a human or another system.
type Transfer struct {
	Target string
	At     time.Time
}

// Touch refreshes lastActivityAt.
type Touch struct {
	At time.Time
}

func (Start) eventName() string         { return "start" }
func (MoveToNode) eventName() string    { return "move_to_node" }
func (WaitForInput) eventName() string  { return "wait_for_input" }
func (WaitForChoice) eventName() string { return "wait_for_choice" }
func (AddStep) eventName() string       { return "add_step" }
func (SetVariable) eventName() string   { return "set_variable" }
func (AddError) eventName() string      { return "add_error" }
func (Complete) eventName() string      { return "complete" }
func (Abandon) eventName() string       { return "abandon" }
func (Transfer) eventName() string      { return "transfer" }
func (Touch) eventName() string         { return "touch" }
