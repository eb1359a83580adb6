package registry

import (
	"fmt"
	"reflect"
)

func validateArguments(schema map[string]any, arguments map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	required, err := requiredFields(schema["required"])
	if err != nil {
		return err
	}
	for _, field := range required {
		if _, ok := arguments[field]; !ok {
			return fmt.Errorf("missing required argument %q", field)
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, value := range arguments {
		propertySchema, ok := properties[key]
		if !ok {
			continue
		}
		propertyMap, ok := propertySchema.(map[string]any)
		if !ok {
			return fmt.Errorf("property schema for %q must be an object", key)
		}
		expected, ok := propertyMap["type"].(string)
		if !ok {
			continue
		}
		if !matchesType(expected, value) {
			return fmt.Errorf("argument %q must be of type %q", key, expected)
		}
	}

	return nil
}

func requiredFields(raw any) ([]string, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return value, nil
	case []any:
		out := make([]string, 0, len(value))
		for _, entry := range value {
			field, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("required entries must be strings")
			}
			out = append(out, field)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("required must be an array")
	}
}

func matchesType(expected string, value any) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		switch typed := value.(type) {
		case float64:
			return typed == float64(int64(typed))
		default:
			return isNumber(value)
		}
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		if value == nil {
			return false
		}
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	default:
		return true
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
