// Package conditions evaluates condition clauses and expressions against
// session variables.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/expr-lang/expr"
)

// Evaluate returns whether the condition data holds for the variables. It is a
// pure function: the same data and variables always select the same branch.
func Evaluate(data models.ConditionData, variables map[string]any) (bool, error) {
	container := gabs.Wrap(variables)

	matched := len(data.Conditions) == 0 && data.Expression != ""

	switch data.Logic {
	case models.ConditionLogicAll:
		matched = len(data.Conditions) > 0 || data.Expression != ""

		for _, clause := range data.Conditions {
			if !Match(clause, container) {
				matched = false

				break
			}
		}
	default:
		for _, clause := range data.Conditions {
			if Match(clause, container) {
				matched = true

				break
			}
		}
	}

	if !matched || data.Expression == "" {
		return matched, nil
	}

	return EvaluateExpression(data.Expression, variables)
}

// Match evaluates a single clause. A clause on an unset variable never matches.
func Match(clause models.ConditionClause, container *gabs.Container) bool {
	actual, ok := template.Lookup(container, clause.Variable)
	if !ok {
		return false
	}

	return Compare(actual, clause.Operator, clause.Value)
}

// Compare applies operator to actual and expected.
//
// equals compares numerically when both sides are numbers and otherwise as
// trimmed, case-insensitive strings. contains tests substrings, or membership
// for list values. greater and less require both sides to be numeric.
func Compare(actual any, operator models.ConditionOperator, expected any) bool {
	switch operator {
	case models.OperatorEquals:
		if a, ok := toNumber(actual); ok {
			if e, ok := toNumber(expected); ok {
				return a == e
			}
		}

		return strings.EqualFold(normalize(actual), normalize(expected))
	case models.OperatorContains:
		if list, ok := actual.([]any); ok {
			for _, item := range list {
				if Compare(item, models.OperatorEquals, expected) {
					return true
				}
			}

			return false
		}

		return strings.Contains(strings.ToLower(normalize(actual)), strings.ToLower(normalize(expected)))
	case models.OperatorGreater, models.OperatorLess:
		a, okA := toNumber(actual)
		e, okE := toNumber(expected)

		if !okA || !okE {
			return false
		}

		if operator == models.OperatorGreater {
			return a > e
		}

		return a < e
	default:
		return false
	}
}

// IsKnownOperator reports whether operator is supported.
func IsKnownOperator(operator models.ConditionOperator) bool {
	switch operator {
	case models.OperatorEquals, models.OperatorContains, models.OperatorGreater, models.OperatorLess:
		return true
	default:
		return false
	}
}

// EvaluateExpression evaluates a boolean expr-lang expression with the
// variables as environment. Unknown identifiers evaluate to nil.
func EvaluateExpression(expression string, variables map[string]any) (bool, error) {
	env := make(map[string]any, len(variables))
	for k, v := range variables {
		env[k] = v
	}

	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to compile condition expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition expression %q: %w", expression, err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition expression %q did not evaluate to a boolean", expression)
	}

	return matched, nil
}

// CompileExpression checks that expression parses. Used by the flow validator.
func CompileExpression(expression string) error {
	_, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())

	return err
}

func normalize(value any) string {
	return strings.TrimSpace(template.Stringify(value))
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}
