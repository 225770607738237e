package variables

import (
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestCoerce_Types(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		varType models.VariableType
		want    any
		wantErr bool
	}{
		{name: "text passes through", input: "  hello ", varType: models.VariableTypeText, want: "hello"},
		{name: "empty is rejected", input: "   ", varType: models.VariableTypeText, wantErr: true},
		{name: "number", input: "42", varType: models.VariableTypeNumber, want: 42.0},
		{name: "number with comma decimal", input: "7,5", varType: models.VariableTypeNumber, want: 7.5},
		{name: "not a number", input: "seven", varType: models.VariableTypeNumber, wantErr: true},
		{name: "negative exponent", input: "-1.5e2", varType: models.VariableTypeNumber, want: -150.0},
		{name: "NaN is rejected", input: "NaN", varType: models.VariableTypeNumber, wantErr: true},
		{name: "Inf is rejected", input: "Inf", varType: models.VariableTypeNumber, wantErr: true},
		{name: "Infinity is rejected", input: "-Infinity", varType: models.VariableTypeNumber, wantErr: true},
		{name: "overflow is rejected", input: "1e400", varType: models.VariableTypeNumber, wantErr: true},
		{name: "hex float is rejected", input: "0x1p4", varType: models.VariableTypeNumber, wantErr: true},
		{name: "thousands group is rejected", input: "1,000", varType: models.VariableTypeNumber, wantErr: true},
		{name: "comma and dot is rejected", input: "1.000,5", varType: models.VariableTypeNumber, wantErr: true},
		{name: "two commas is rejected", input: "1,5,0", varType: models.VariableTypeNumber, wantErr: true},
		{name: "boolean yes", input: "Yes", varType: models.VariableTypeBoolean, want: true},
		{name: "boolean no", input: "no", varType: models.VariableTypeBoolean, want: false},
		{name: "boolean garbage", input: "maybe", varType: models.VariableTypeBoolean, wantErr: true},
		{name: "iso date", input: "2026-03-01", varType: models.VariableTypeDate, want: "2026-03-01"},
		{name: "day first date", input: "01/03/2026", varType: models.VariableTypeDate, want: "2026-03-01"},
		{name: "bad date", input: "tomorrow", varType: models.VariableTypeDate, wantErr: true},
		{name: "email lowercased", input: "Ana@Example.com", varType: models.VariableTypeEmail, want: "ana@example.com"},
		{name: "bad email", input: "ana@", varType: models.VariableTypeEmail, wantErr: true},
		{name: "phone", input: "+55 (11) 99999-0000", varType: models.VariableTypePhone, want: "+55 (11) 99999-0000"},
		{name: "bad phone", input: "call me", varType: models.VariableTypePhone, wantErr: true},
		{name: "url", input: "https://example.com/a", varType: models.VariableTypeURL, want: "https://example.com/a"},
		{name: "bad url", input: "example", varType: models.VariableTypeURL, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.input, tt.varType, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidValue))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Rules(t *testing.T) {
	t.Run("regex", func(t *testing.T) {
		rules := &models.VariableValidation{Regex: `^[A-Z]{3}$`}

		_, err := Coerce("ABC", models.VariableTypeText, rules)
		require.NoError(t, err)

		_, err = Coerce("abcd", models.VariableTypeText, rules)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("options are case insensitive", func(t *testing.T) {
		rules := &models.VariableValidation{Options: []string{"Basic", "Pro"}}

		got, err := Coerce("pro", models.VariableTypeText, rules)
		require.NoError(t, err)
		assert.Equal(t, "pro", got)

		_, err = Coerce("enterprise", models.VariableTypeText, rules)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("numeric bounds", func(t *testing.T) {
		rules := &models.VariableValidation{Min: floatPtr(0), Max: floatPtr(10)}

		_, err := Coerce("10", models.VariableTypeNumber, rules)
		require.NoError(t, err)

		_, err = Coerce("11", models.VariableTypeNumber, rules)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("text length bounds", func(t *testing.T) {
		rules := &models.VariableValidation{Min: floatPtr(2)}

		_, err := Coerce("a", models.VariableTypeText, rules)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("broken regex is not an input error", func(t *testing.T) {
		_, err := Coerce("a", models.VariableTypeText, &models.VariableValidation{Regex: "("})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidValue))
	})
}
