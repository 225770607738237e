package variables

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidValue is returned when user input does not match the expected type.
	ErrInvalidValue = errors.New("invalid value")

	phonePattern  = regexp.MustCompile(`^\+?[0-9\s\-\(\)]{7,20}$`)
	numberPattern = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)

	dateLayouts = []string{time.RFC3339, "2006-01-02", "02/01/2006", "2006/01/02"}

	trueWords  = []string{"true", "yes", "y", "sim", "s", "1", "ok"}
	falseWords = []string{"false", "no", "n", "nao", "não", "0"}

	validate = validator.New()
)

// InvalidValueError describes why a raw input was rejected.
type InvalidValueError struct {
	Type   models.VariableType
	Input  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %s", e.Type, e.Input, e.Reason)
}

func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

// Coerce validates raw user input against a variable type and optional
// declaration rules and returns the typed value to store.
func Coerce(raw string, varType models.VariableType, rules *models.VariableValidation) (any, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return nil, &InvalidValueError{Type: varType, Input: raw, Reason: "value is empty"}
	}

	value, err := coerceType(input, varType)
	if err != nil {
		return nil, err
	}

	if rules != nil {
		if err := applyRules(input, value, varType, rules); err != nil {
			return nil, err
		}
	}

	return value, nil
}

func coerceType(input string, varType models.VariableType) (any, error) {
	switch varType {
	case models.VariableTypeNumber:
		return parseNumber(input)
	case models.VariableTypeBoolean:
		lower := strings.ToLower(input)
		if slices.Contains(trueWords, lower) {
			return true, nil
		}

		if slices.Contains(falseWords, lower) {
			return false, nil
		}

		return nil, &InvalidValueError{Type: varType, Input: input, Reason: "not a yes/no answer"}
	case models.VariableTypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, input); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}

		return nil, &InvalidValueError{Type: varType, Input: input, Reason: "not a date"}
	case models.VariableTypeEmail:
		if err := validate.Var(input, "required,email"); err != nil {
			return nil, &InvalidValueError{Type: varType, Input: input, Reason: "not an email address"}
		}

		return strings.ToLower(input), nil
	case models.VariableTypePhone:
		if !phonePattern.MatchString(input) {
			return nil, &InvalidValueError{Type: varType, Input: input, Reason: "not a phone number"}
		}

		return input, nil
	case models.VariableTypeURL:
		if err := validate.Var(input, "required,url"); err != nil {
			return nil, &InvalidValueError{Type: varType, Input: input, Reason: "not a URL"}
		}

		return input, nil
	default:
		return input, nil
	}
}

// parseNumber accepts plain decimal notation. A single comma is read as the
// decimal separator unless it looks like a thousands group ("1,000"), which
// is rejected as ambiguous.
func parseNumber(input string) (any, error) {
	normalized := input

	if whole, fraction, ok := strings.Cut(input, ","); ok {
		if strings.Contains(input, ".") || strings.Contains(fraction, ",") || len(fraction) == 3 {
			return nil, &InvalidValueError{Type: models.VariableTypeNumber, Input: input, Reason: "ambiguous digit grouping"}
		}

		normalized = whole + "." + fraction
	}

	if !numberPattern.MatchString(normalized) {
		return nil, &InvalidValueError{Type: models.VariableTypeNumber, Input: input, Reason: "not a number"}
	}

	n, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, &InvalidValueError{Type: models.VariableTypeNumber, Input: input, Reason: "not a finite number"}
	}

	return n, nil
}

func applyRules(input string, value any, varType models.VariableType, rules *models.VariableValidation) error {
	if rules.Regex != "" {
		re, err := regexp.Compile(rules.Regex)
		if err != nil {
			return fmt.Errorf("invalid validation regex %q: %w", rules.Regex, err)
		}

		if !re.MatchString(input) {
			return &InvalidValueError{Type: varType, Input: input, Reason: "does not match the expected format"}
		}
	}

	if len(rules.Options) > 0 && !slices.ContainsFunc(rules.Options, func(o string) bool {
		return strings.EqualFold(o, input)
	}) {
		return &InvalidValueError{Type: varType, Input: input, Reason: "not one of " + strings.Join(rules.Options, ", ")}
	}

	// min/max bound numbers by value and everything else by length.
	measure := float64(len([]rune(input)))
	if n, ok := value.(float64); ok {
		measure = n
	}

	if rules.Min != nil && measure < *rules.Min {
		return &InvalidValueError{Type: varType, Input: input, Reason: fmt.Sprintf("must be at least %v", *rules.Min)}
	}

	if rules.Max != nil && measure > *rules.Max {
		return &InvalidValueError{Type: varType, Input: input, Reason: fmt.Sprintf("must be at most %v", *rules.Max)}
	}

	return nil
}
