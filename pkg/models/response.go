package models

// ResponseType is the kind of output a node emits to the user.
type ResponseType string

const (
	ResponseTypeText    ResponseType = "text"
	ResponseTypeImage   ResponseType = "image"
	ResponseTypeVideo   ResponseType = "video"
	ResponseTypeButtons ResponseType = "buttons"
	ResponseTypeInput   ResponseType = "input"
)

// Response is one bot output produced during a turn.
type Response struct {
	Type      ResponseType `json:"type"`
	Content   string       `json:"content"`
	NodeID    string       `json:"nodeId,omitempty"`
	MediaURL  string       `json:"mediaUrl,omitempty"`
	Buttons   []Button     `json:"buttons,omitempty"`
	InputType VariableType `json:"inputType,omitempty"`
	Variable  string       `json:"variable,omitempty"`
}
