package toolreg

// helpers for reading schema-validated map[string]any args into typed values

// String returns args[key] when it is a string.
func String(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// StringOr returns args[key] or def when absent or empty.
func StringOr(args map[string]any, key, def string) string {
	if s := String(args, key); s != "" {
		return s
	}
	return def
}

// StringParam is a JSON Schema string property with minLength 1.
func StringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"minLength":   1,
		"description": description,
	}
}

// Object builds a closed JSON Schema object from properties and required keys.
func Object(props map[string]any, required ...string) map[string]any {
	obj := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	return obj
}
