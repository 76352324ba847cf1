// Package util holds small shared helpers, currently the JSON-schema
// argument validation used by the tool layer.
package util

import (
	"fmt"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateParameters validates parameters against a minimal JSON schema
// (type, properties, required). Extra fields are allowed; the tool decides
// whether to use them.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, req := range requiredFields(schema) {
		if _, exists := params[req]; !exists {
			return &ValidationError{
				Field:   req,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue
		}
		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}
		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// requiredFields tolerates both []string and []any spellings of the
// required list, since schemas come from hand-written maps and from JSON.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// isValidType checks a value against the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
