package nodes

import (
	"github.com/dukex/chatflow/pkg/conditions"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
)

// SelectedButtonVariable always holds the id of the last chosen button.
const SelectedButtonVariable = "selected_button"

func (e *Executor) executeText(flow *models.Flow, node *models.Node, vars map[string]any) (Result, error) {
	var data models.TextData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	return Result{
		Success: true,
		Responses: []models.Response{{
			Type:    models.ResponseTypeText,
			Content: template.Interpolate(data.Content, vars),
			NodeID:  node.ID,
		}},
		NextNodeID: DefaultNext(flow, node.ID),
	}, nil
}

func (e *Executor) executeInput(node *models.Node, vars map[string]any) (Result, error) {
	var data models.InputData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	return Result{
		Success: true,
		Responses: []models.Response{{
			Type:      models.ResponseTypeInput,
			Content:   template.Interpolate(data.Content, vars),
			NodeID:    node.ID,
			InputType: data.InputType,
			Variable:  data.Variable,
		}},
		WaitForInput: &InputRequest{InputType: data.InputType, Variable: data.Variable},
	}, nil
}

func (e *Executor) executeButtons(node *models.Node, vars map[string]any) (Result, error) {
	var data models.ButtonsData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	choices := make([]models.Button, 0, len(data.Buttons))
	for _, b := range data.Buttons {
		b.Label = template.Interpolate(b.Label, vars)
		choices = append(choices, b)
	}

	variable := data.Variable
	if variable == "" {
		variable = SelectedButtonVariable
	}

	return Result{
		Success: true,
		Responses: []models.Response{{
			Type:    models.ResponseTypeButtons,
			Content: template.Interpolate(data.Content, vars),
			NodeID:  node.ID,
			Buttons: choices,
		}},
		WaitForChoice: &ChoiceRequest{Variable: variable, Choices: choices},
	}, nil
}

func (e *Executor) executeCondition(flow *models.Flow, node *models.Node, vars map[string]any) (Result, error) {
	var data models.ConditionData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	matched, err := conditions.Evaluate(data, vars)
	if err != nil {
		return Result{}, nodeError(node, err)
	}

	label := models.EdgeLabelFalse
	if matched {
		label = models.EdgeLabelTrue
	}

	e.logger.Debug("Condition evaluated", "node_id", node.ID, "branch", label)

	return Result{Success: true, NextNodeID: LabeledNext(flow, node.ID, label)}, nil
}

func (e *Executor) executeMedia(flow *models.Flow, node *models.Node, vars map[string]any) (Result, error) {
	var data models.MediaData
	if err := decode(node, &data); err != nil {
		return Result{}, err
	}

	responseType := models.ResponseTypeImage
	if node.Type == models.NodeTypeVideo {
		responseType = models.ResponseTypeVideo
	}

	return Result{
		Success: true,
		Responses: []models.Response{{
			Type:     responseType,
			Content:  template.Interpolate(data.Caption, vars),
			NodeID:   node.ID,
			MediaURL: template.Interpolate(data.URL, vars),
		}},
		NextNodeID: DefaultNext(flow, node.ID),
	}, nil
}
