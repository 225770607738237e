package web

import (
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
)

// CreateFlowRequest represents the request body for creating a new flow.
// The flow is always stored as a draft.
type CreateFlowRequest struct {
	Name        string                       `json:"name"                  validate:"required,min=3"`
	TenantID    string                       `json:"tenantId,omitempty"`
	Type        string                       `json:"type,omitempty"`
	Description string                       `json:"description,omitempty"`
	Nodes       []*models.Node               `json:"nodes"                 validate:"dive,required"`
	Edges       []*models.Edge               `json:"edges"                 validate:"dive,required"`
	Variables   []models.VariableDeclaration `json:"variables"`
	Settings    map[string]any               `json:"settings,omitempty"`
}

// Flow converts the request into a draft flow.
func (r CreateFlowRequest) Flow() *models.Flow {
	return &models.Flow{
		Name:        r.Name,
		TenantID:    r.TenantID,
		Type:        r.Type,
		Description: r.Description,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Variables:   r.Variables,
		Settings:    r.Settings,
	}
}

// UpdateFlowRequest represents the request body for updating a draft flow.
// All fields are optional to support partial updates.
type UpdateFlowRequest struct {
	Name        *string                      `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                      `json:"description,omitempty"`
	Nodes       []*models.Node               `json:"nodes,omitempty"       validate:"omitempty,dive"`
	Edges       []*models.Edge               `json:"edges,omitempty"       validate:"omitempty,dive"`
	Variables   []models.VariableDeclaration `json:"variables,omitempty"`
	Settings    map[string]any               `json:"settings,omitempty"`
}

func (r UpdateFlowRequest) service() services.UpdateFlowRequest {
	return services.UpdateFlowRequest{
		Name:        r.Name,
		Description: r.Description,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Variables:   r.Variables,
		Settings:    r.Settings,
	}
}

// TriggerRequest describes where a session came from.
type TriggerRequest struct {
	Type      string         `json:"type"                validate:"required"`
	Source    string         `json:"source,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ContactRequest identifies the person on the other side of the conversation.
type ContactRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// StartSessionRequest represents the request body for starting a session on a published flow.
type StartSessionRequest struct {
	FlowID            string         `json:"flowId"                      validate:"required"`
	TenantID          string         `json:"tenantId,omitempty"`
	ChannelInstanceID string         `json:"channelInstanceId,omitempty"`
	Trigger           TriggerRequest `json:"trigger"`
	Contact           ContactRequest `json:"contact"`
	Variables         map[string]any `json:"variables,omitempty"`
}

func (r StartSessionRequest) engine() engine.CreateSessionRequest {
	return engine.CreateSessionRequest{
		FlowID:            r.FlowID,
		TenantID:          r.TenantID,
		ChannelInstanceID: r.ChannelInstanceID,
		Trigger: models.Trigger{
			Type:      r.Trigger.Type,
			Source:    r.Trigger.Source,
			MessageID: r.Trigger.MessageID,
			Metadata:  r.Trigger.Metadata,
		},
		Contact: models.Contact{
			ID:    r.Contact.ID,
			Name:  r.Contact.Name,
			Phone: r.Contact.Phone,
			Email: r.Contact.Email,
		},
		InitialVariables: r.Variables,
	}
}

// ContinueSessionRequest carries one user message. An empty message is allowed.
type ContinueSessionRequest struct {
	Message string `json:"message" validate:"max=4096"`
}

// TransferSessionRequest hands a session off to a human or another system.
type TransferSessionRequest struct {
	Target string `json:"target" validate:"required"`
}
