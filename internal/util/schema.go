package util

import (
	"fmt"
	"strings"
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

// ApplyDefaults returns a copy of params with every schema property carrying
// a "default" filled in where the caller omitted the field. The input map is
// never mutated so a failed validation leaves the caller's view untouched.
func ApplyDefaults(params map[string]any, schema map[string]any) map[string]any {
	properties, _ := schema["properties"].(map[string]any)

	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for fieldName, propSchema := range properties {
		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}
		def, hasDefault := propMap["default"]
		if !hasDefault {
			continue
		}
		if _, exists := out[fieldName]; !exists {
			out[fieldName] = def
		}
	}
	return out
}

// ValidateParameters validates parameters against a JSON schema. It checks
// required presence, JSON type, enum membership and numeric minimum/maximum
// bounds. It returns the first failure as a *ValidationError naming the
// offending field.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	// Extract required fields
	required := requiredFields(schema)
	for _, fieldName := range required {
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	// Validate field types and constraints
	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // Allow extra fields
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

		if err := checkEnum(fieldName, value, propMap); err != nil {
			return err
		}

		if err := checkBounds(fieldName, value, propMap); err != nil {
			return err
		}
	}

	return nil
}

// requiredFields tolerates both []string (hand-written schemas) and []any
// (schemas round-tripped through JSON).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		fields := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	}
	return nil
}

// checkEnum validates membership in an "enum" constraint if one is declared.
func checkEnum(fieldName string, value any, propMap map[string]any) error {
	var allowed []string
	switch enum := propMap["enum"].(type) {
	case []string:
		allowed = enum
	case []any:
		for _, e := range enum {
			if s, ok := e.(string); ok {
				allowed = append(allowed, s)
			}
		}
	default:
		return nil
	}

	str, ok := value.(string)
	if !ok {
		return nil // type mismatch already reported by isValidType
	}
	for _, a := range allowed {
		if str == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   fieldName,
		Value:   value,
		Message: fmt.Sprintf("value %q is not one of [%s]", str, strings.Join(allowed, ", ")),
	}
}

// checkBounds validates numeric "minimum" / "maximum" constraints.
func checkBounds(fieldName string, value any, propMap map[string]any) error {
	num, ok := asFloat(value)
	if !ok {
		return nil
	}
	if minVal, ok := asFloat(propMap["minimum"]); ok && num < minVal {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("value %v is below minimum %v", num, minVal),
		}
	}
	if maxVal, ok := asFloat(propMap["maximum"]); ok && num > maxVal {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: fmt.Sprintf("value %v is above maximum %v", num, maxVal),
		}
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// StringSlice coerces a schema "array" argument (which arrives as []any from
// JSON, or []string from direct Go callers) into []string, discarding
// non-string elements.
func StringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v)) // Check if it's actually an integer
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
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
