package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes"
	"github.com/dukex/chatflow/pkg/session"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/dukex/chatflow/pkg/variables"
)

// acceptInput validates a free-text answer and stores it. Invalid answers
// re-prompt without moving or counting an error.
func (e *Engine) acceptInput(ctx context.Context, t *turn, current *models.Node, input string) (bool, error) {
	inputType := t.session.Context.ExpectedInputType
	variable := t.session.Context.ExpectedVariable

	decl, declared := t.flow.Variable(variable)
	if inputType == "" && declared {
		inputType = decl.Type
	}

	value, err := variables.Coerce(input, inputType, decl.Validation)
	if err != nil {
		if !errors.Is(err, variables.ErrInvalidValue) {
			return false, e.fail(ctx, t, current.ID, err)
		}

		t.logger.DebugContext(ctx, "Input rejected", "node_id", current.ID, "reason", err)

		var data models.InputData
		if decodeErr := models.DecodeData(current, &data); decodeErr != nil {
			return false, e.fail(ctx, t, current.ID, decodeErr)
		}

		return false, e.reply(t, current, models.Response{
			Type:      models.ResponseTypeInput,
			Content:   template.Interpolate(data.InvalidMessage, variables.NewStore(t.session.Variables).Map()),
			NodeID:    current.ID,
			InputType: inputType,
			Variable:  variable,
		})
	}

	if variable == "" {
		return true, nil
	}

	if inputType == "" {
		inputType = models.VariableTypeText
	}

	return true, t.apply(session.SetVariable{
		Name:         variable,
		Value:        value,
		Type:         inputType,
		SourceNodeID: current.ID,
		At:           e.now(),
	})
}

// acceptChoice resolves the answer against the pending buttons and stores the
// chosen id as selected_button and, when configured, the node variable.
func (e *Engine) acceptChoice(t *turn, current *models.Node, input string) (models.Button, bool, error) {
	pending := models.ButtonsData{Buttons: t.session.Context.PendingChoices}

	button, ok := pending.Button(strings.TrimSpace(input))
	if !ok {
		return models.Button{}, false, e.reply(t, current, models.Response{
			Type:    models.ResponseTypeButtons,
			Content: InvalidChoiceMessage,
			NodeID:  current.ID,
			Buttons: pending.Buttons,
		})
	}

	now := e.now()
	events := []session.Event{session.SetVariable{
		Name:         nodes.SelectedButtonVariable,
		Value:        button.ID,
		Type:         models.VariableTypeText,
		SourceNodeID: current.ID,
		At:           now,
	}}

	if v := t.session.Context.ExpectedVariable; v != "" && v != nodes.SelectedButtonVariable {
		events = append(events, session.SetVariable{
			Name:         v,
			Value:        button.ID,
			Type:         models.VariableTypeText,
			SourceNodeID: current.ID,
			At:           now,
		})
	}

	return button, true, t.apply(events...)
}

// reply emits a bot response without moving the session.
func (e *Engine) reply(t *turn, node *models.Node, response models.Response) error {
	if err := t.apply(session.AddStep{Step: models.ConversationStep{
		ID:        e.newID(),
		Role:      models.StepRoleBot,
		NodeID:    node.ID,
		Content:   response.Content,
		Response:  &response,
		Timestamp: e.now(),
	}}); err != nil {
		return err
	}

	t.responses = append(t.responses, response)

	return nil
}
