package models

// VariableType is the declared type of a flow variable.
type VariableType string

const (
	VariableTypeText    VariableType = "text"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeDate    VariableType = "date"
	VariableTypeEmail   VariableType = "email"
	VariableTypePhone   VariableType = "phone"
	VariableTypeURL     VariableType = "url"
)

// VariableTypes lists every supported variable type.
var VariableTypes = []VariableType{
	VariableTypeText,
	VariableTypeNumber,
	VariableTypeBoolean,
	VariableTypeDate,
	VariableTypeEmail,
	VariableTypePhone,
	VariableTypeURL,
}

// IsValid reports whether t is a known variable type. The empty type is
// treated as text.
func (t VariableType) IsValid() bool {
	if t == "" {
		return true
	}

	for _, known := range VariableTypes {
		if t == known {
			return true
		}
	}

	return false
}

// VariableValidation holds optional per-variable constraints applied after
// type coercion.
type VariableValidation struct {
	Regex   string   `json:"regex,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

// VariableDeclaration declares a variable a flow may capture.
type VariableDeclaration struct {
	Name         string              `json:"name"`
	Type         VariableType        `json:"type"`
	Required     bool                `json:"required,omitempty"`
	DefaultValue any                 `json:"defaultValue,omitempty"`
	Validation   *VariableValidation `json:"validation,omitempty"`
	IsPII        bool                `json:"isPII,omitempty"`
}
