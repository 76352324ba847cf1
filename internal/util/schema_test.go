package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"ordinal": map[string]any{"type": "integer"},
		},
		"required": []any{"name"},
	}
}

func TestValidateParameters_OK(t *testing.T) {
	err := ValidateParameters(map[string]any{
		"name":    "ana",
		"ordinal": float64(2),
	}, objectSchema())
	assert.NoError(t, err)
}

func TestValidateParameters_MissingRequired(t *testing.T) {
	err := ValidateParameters(map[string]any{"ordinal": float64(2)}, objectSchema())
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}

func TestValidateParameters_WrongType(t *testing.T) {
	err := ValidateParameters(map[string]any{"name": "ana", "ordinal": "two"}, objectSchema())
	assert.Error(t, err)
}

func TestValidateParameters_FractionalInteger(t *testing.T) {
	err := ValidateParameters(map[string]any{"name": "ana", "ordinal": 1.5}, objectSchema())
	assert.Error(t, err)
}

func TestValidateParameters_RequiredAsStringSlice(t *testing.T) {
	schema := objectSchema()
	schema["required"] = []string{"name"}

	err := ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	err := ValidateParameters(map[string]any{"name": "ana", "unknown": true}, objectSchema())
	assert.NoError(t, err)
}
