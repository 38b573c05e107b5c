package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawPatchMarker is the apply_patch convention: the model may emit the
// patch as bare text starting with this marker instead of JSON-encoding it
// inside the "patch" argument. CoerceArguments detects this and reshapes
// it into {"__raw_patch": "<text>"} without attempting JSON parsing.
const rawPatchMarker = "*** Begin Patch"

// CoerceArguments turns the raw JSON string a provider sent for a tool
// call into a validated argument map. The coercion runs as a small state
// machine:
//
//  1. If the string is empty or whitespace, treat it as {}.
//  2. If the string begins with the apply_patch raw-patch marker, wrap it
//     as {"__raw_patch": <string>} and skip JSON parsing entirely.
//  3. Otherwise parse it as JSON. A string-typed top-level value is
//     re-parsed once more (some providers double-encode); a parse failure
//     after that is a final coercion error naming the offending tool.
//  4. Validate the result against the tool's JSON Schema, collecting every
//     field error rather than stopping at the first.
func CoerceArguments(def *ToolDef, raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)

	if def.Name == "apply_patch" && strings.HasPrefix(trimmed, rawPatchMarker) {
		return map[string]any{"__raw_patch": trimmed}, nil
	}

	args, err := parseArguments(trimmed)
	if err != nil {
		return nil, fmt.Errorf("tool %q: invalid arguments: %w", def.Name, err)
	}

	if def.Schema != nil {
		if err := validateSchema(def, args); err != nil {
			return nil, fmt.Errorf("tool %q: %w", def.Name, err)
		}
	}

	return args, nil
}

func parseArguments(trimmed string) (map[string]any, error) {
	if trimmed == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}

	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case string:
		// Some providers double-encode: the outer value is a JSON string
		// whose contents are themselves the argument object.
		var inner map[string]any
		if err := json.Unmarshal([]byte(t), &inner); err != nil {
			return nil, fmt.Errorf("double-encoded arguments did not parse: %w", err)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
}

func validateSchema(def *ToolDef, args map[string]any) error {
	schemaJSON, err := json.Marshal(def.Schema)
	if err != nil {
		return fmt.Errorf("internal: tool schema does not marshal: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	const resourceURL = "schema.json"
	if err := compiler.AddResource(resourceURL, strings.NewReader(string(schemaJSON))); err != nil {
		return fmt.Errorf("internal: tool schema is invalid: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("internal: tool schema failed to compile: %w", err)
	}

	if err := compiled.Validate(args); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("argument validation failed: %s", formatValidationError(verr))
		}
		return fmt.Errorf("argument validation failed: %w", err)
	}
	return nil
}

// formatValidationError flattens a jsonschema.ValidationError tree into a
// single field-by-field message ("field: reason; field: reason"), the
// shape the loop surfaces back to the model as an "Error:" tool result so
// it can retry with corrected arguments.
func formatValidationError(verr *jsonschema.ValidationError) string {
	var parts []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := e.InstanceLocation
			if field == "" {
				field = "(root)"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", field, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	if len(parts) == 0 {
		return verr.Error()
	}
	return strings.Join(parts, "; ")
}
