package scrape

import (
	"encoding/json"
	"fmt"
)

// Schema is an optional structural contract for the final answer,
// expressed in JSON Schema style:
//
//	scrape.Schema{
//	    "type": "object",
//	    "properties": map[string]any{
//	        "title":  map[string]any{"type": "string"},
//	        "year":   map[string]any{"type": "number"},
//	    },
//	    "required": []any{"title"},
//	}
//
// The schema is rendered into prompts as output instructions and the
// model's reply is checked against it afterwards. Validation covers
// the top-level shape (required keys, primitive property types);
// anything deeper is the model's responsibility, matching how the
// schema is actually enforced: by instruction, not by parser.
type Schema map[string]any

// Clone deep-copies the schema so callers can't mutate a pipeline's
// copy after construction.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// Instructions renders the schema as prompt output instructions.
func (s Schema) Instructions() string {
	if s == nil {
		return "Return a JSON object."
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "Return a JSON object."
	}
	return "Return a JSON object that conforms to this JSON schema, with no extra fields:\n" + string(data)
}

// Validate checks a model reply against the schema's top level.
func (s Schema) Validate(answer string) error {
	if s == nil {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(answer), &obj); err != nil {
		return fmt.Errorf("answer is not a JSON object: %w", err)
	}

	if required, ok := s["required"].([]any); ok {
		for _, r := range required {
			key, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[key]; !present {
				return fmt.Errorf("answer missing required field %q", key)
			}
		}
	}

	props, ok := s["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for key, raw := range props {
		val, present := obj[key]
		if !present || val == nil {
			continue
		}
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		want, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if err := checkType(key, want, val); err != nil {
			return err
		}
	}
	return nil
}

func checkType(key, want string, val any) error {
	var ok bool
	switch want {
	case "string":
		_, ok = val.(string)
	case "number", "integer":
		_, ok = val.(float64)
	case "boolean":
		_, ok = val.(bool)
	case "array":
		_, ok = val.([]any)
	case "object":
		_, ok = val.(map[string]any)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("answer field %q is not a %s", key, want)
	}
	return nil
}
