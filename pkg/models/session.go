package models

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusAbandoned   SessionStatus = "abandoned"
	SessionStatusTransferred SessionStatus = "transferred"
	SessionStatusError       SessionStatus = "error"
)

// IsTerminal reports whether no further turns can run in this status.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusAbandoned, SessionStatusTransferred, SessionStatusError:
		return true
	default:
		return false
	}
}

// PendingKind tells what kind of answer a suspended session expects.
type PendingKind string

const (
	PendingNone   PendingKind = ""
	PendingInput  PendingKind = "input"
	PendingChoice PendingKind = "choice"
)

// MaxSessionErrors is the number of node errors that ends a session.
const MaxSessionErrors = 3

// Trigger describes where a session came from.
type Trigger struct {
	Type      string         `json:"type"` // e.g. whatsapp, api, webchat
	Source    string         `json:"source,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Contact identifies the person on the other side of the conversation.
type Contact struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CapturedVariable is one variable value collected during a session.
type CapturedVariable struct {
	Name         string       `json:"name"`
	Value        any          `json:"value"`
	Type         VariableType `json:"type"`
	CollectedAt  time.Time    `json:"collectedAt"`
	SourceNodeID string       `json:"sourceNodeId,omitempty"`
}

// SessionError is a node failure recorded in the session context.
type SessionError struct {
	Message    string    `json:"message"`
	NodeID     string    `json:"nodeId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SessionContext is the execution pointer of a session.
type SessionContext struct {
	CurrentNodeID     string         `json:"currentNodeId"`
	PreviousNodeID    string         `json:"previousNodeId,omitempty"`
	IsWaitingForInput bool           `json:"isWaitingForInput"`
	Pending           PendingKind    `json:"pending,omitempty"`
	ExpectedVariable  string         `json:"expectedVariable,omitempty"`
	ExpectedInputType VariableType   `json:"expectedInputType,omitempty"`
	PendingChoices    []Button       `json:"pendingChoices,omitempty"`
	RetryCount        int            `json:"retryCount"`
	Errors            []SessionError `json:"errors"`
}

// StepRole is the author of a conversation step.
type StepRole string

const (
	StepRoleBot    StepRole = "bot"
	StepRoleUser   StepRole = "user"
	StepRoleSystem StepRole = "system"
)

// ConversationStep is one entry of the append-only conversation log.
type ConversationStep struct {
	ID        string         `json:"id"`
	Role      StepRole       `json:"role"`
	NodeID    string         `json:"nodeId,omitempty"`
	Content   string         `json:"content"`
	Response  *Response      `json:"response,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionMetrics holds turn counters used by the completion heuristic.
type SessionMetrics struct {
	TotalInteractions int `json:"totalInteractions"`
	BotMessages       int `json:"botMessages"`
	UserMessages      int `json:"userMessages"`
}

// Session is the runtime instance of a walk through a flow. It owns its
// variables and conversation log and references its flow by id only.
type Session struct {
	ID                   string             `json:"id"`
	FlowID               string             `json:"flowId"`
	TenantID             string             `json:"tenantId,omitempty"`
	ChannelInstanceID    string             `json:"channelInstanceId,omitempty"`
	Status               SessionStatus      `json:"status"`
	Trigger              Trigger            `json:"trigger"`
	Contact              Contact            `json:"contact"`
	Variables            []CapturedVariable `json:"variables"`
	Context              SessionContext     `json:"context"`
	ConversationSteps    []ConversationStep `json:"conversationSteps"`
	Metrics              SessionMetrics     `json:"metrics"`
	CompletionPercentage int                `json:"completionPercentage"`
	IsCompleted          bool               `json:"isCompleted"`
	TransferTarget       string             `json:"transferTarget,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	StartedAt            *time.Time         `json:"startedAt,omitempty"`
	LastActivityAt       time.Time          `json:"lastActivityAt"`
	CompletedAt          *time.Time         `json:"completedAt,omitempty"`
	AbandonedAt          *time.Time         `json:"abandonedAt,omitempty"`
	DurationSeconds      int64              `json:"durationSeconds,omitempty"`
}

// IsActive reports whether the session accepts turns.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Variable returns the captured value of name.
func (s *Session) Variable(name string) (any, bool) {
	for _, v := range s.Variables {
		if v.Name == name {
			return v.Value, true
		}
	}

	return nil, false
}

// Clone returns a deep copy of the session so transitions never share memory
// with a previous snapshot.
func (s Session) Clone() Session {
	out := s

	out.Variables = append([]CapturedVariable(nil), s.Variables...)
	out.ConversationSteps = append([]ConversationStep(nil), s.ConversationSteps...)
	out.Context.Errors = append([]SessionError(nil), s.Context.Errors...)
	out.Context.PendingChoices = append([]Button(nil), s.Context.PendingChoices...)
	out.Trigger.Metadata = cloneMap(s.Trigger.Metadata)

	out.StartedAt = cloneTime(s.StartedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.AbandonedAt = cloneTime(s.AbandonedAt)

	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
