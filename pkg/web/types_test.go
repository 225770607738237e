package web_test

import (
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedFields(t *testing.T, err error) []string {
	t.Helper()

	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, fe.Field())
	}

	return fields
}

func TestCreateFlowRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name      string
		request   web.CreateFlowRequest
		errFields []string
	}{
		{
			name:    "valid request",
			request: web.CreateFlowRequest{Name: "Onboarding", Nodes: []*models.Node{{ID: "a", Type: models.NodeTypeText}}},
		},
		{
			name:      "missing name",
			request:   web.CreateFlowRequest{},
			errFields: []string{"Name"},
		},
		{
			name: "edge without target",
			request: web.CreateFlowRequest{
				Name:  "Onboarding",
				Edges: []*models.Edge{{Source: "a"}},
			},
			errFields: []string{"Target"},
		},
		{
			name: "null node and edge entries",
			request: web.CreateFlowRequest{
				Name:  "Onboarding",
				Nodes: []*models.Node{nil},
				Edges: []*models.Edge{nil},
			},
			errFields: []string{"Nodes[0]", "Edges[0]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tt.request)
			if len(tt.errFields) == 0 {
				assert.NoError(t, err)

				return
			}

			assert.Equal(t, tt.errFields, failedFields(t, err))
		})
	}
}

func TestCreateFlowRequest_Flow(t *testing.T) {
	t.Parallel()

	flow := web.CreateFlowRequest{
		Name:        "Onboarding",
		TenantID:    "tenant-1",
		Description: "Welcome",
		Settings:    map[string]any{"locale": "pt-BR"},
	}.Flow()

	assert.Equal(t, "Onboarding", flow.Name)
	assert.Equal(t, "tenant-1", flow.TenantID)
	assert.Equal(t, "pt-BR", flow.Settings["locale"])
	assert.Empty(t, flow.Status)
}

func TestStartSessionRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	valid := web.StartSessionRequest{
		FlowID:  "flow-1",
		Trigger: web.TriggerRequest{Type: "api"},
		Contact: web.ContactRequest{Email: "ana@example.com"},
	}
	require.NoError(t, v.Struct(valid))

	missingTrigger := valid
	missingTrigger.Trigger = web.TriggerRequest{}
	assert.Equal(t, []string{"Type"}, failedFields(t, v.Struct(missingTrigger)))

	badEmail := valid
	badEmail.Contact.Email = "not-an-email"
	assert.Equal(t, []string{"Email"}, failedFields(t, v.Struct(badEmail)))

	missingFlow := valid
	missingFlow.FlowID = ""
	assert.Equal(t, []string{"FlowID"}, failedFields(t, v.Struct(missingFlow)))
}

func TestTransferSessionRequest_Validation(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.WithRequiredStructEnabled())

	require.NoError(t, v.Struct(web.TransferSessionRequest{Target: "support"}))
	assert.Equal(t, []string{"Target"}, failedFields(t, v.Struct(web.TransferSessionRequest{})))
}
