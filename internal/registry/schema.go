package registry

// FunctionSpec is the OpenAI/go-openai-shaped tool declaration
// (`{"type":"function","function":{...}}`) sent to every provider family;
// the vendor-SDK adapter converts this one further step into Anthropic's
// tool shape. Internal coercion-only fields (prefixed "__", such as
// apply_patch's "__raw_patch") are never exposed to the model and are
// stripped from the projected schema.
type FunctionSpec struct {
	Type     string           `json:"type"`
	Function FunctionSpecBody `json:"function"`
}

// FunctionSpecBody is the nested function description.
type FunctionSpecBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToFunctionSpec projects a ToolDef to the wire shape sent to providers.
func (def *ToolDef) ToFunctionSpec() FunctionSpec {
	return FunctionSpec{
		Type: "function",
		Function: FunctionSpecBody{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  stripInternalFields(def.Schema),
		},
	}
}

// FunctionSpecs projects a whole tool list in one call, the shape
// internal/loop hands to a provider adapter each round.
func FunctionSpecs(defs []*ToolDef) []FunctionSpec {
	out := make([]FunctionSpec, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ToFunctionSpec())
	}
	return out
}

// stripInternalFields returns a schema copy with any "__"-prefixed
// property removed from "properties" and "required", so the model never
// sees reserved coercion-only fields like __raw_patch.
func stripInternalFields(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	if props, ok := out["properties"].(map[string]any); ok {
		cleanProps := make(map[string]any, len(props))
		for name, def := range props {
			if isInternalField(name) {
				continue
			}
			cleanProps[name] = def
		}
		out["properties"] = cleanProps
	}

	if required, ok := out["required"].([]any); ok {
		cleanRequired := make([]any, 0, len(required))
		for _, r := range required {
			if name, ok := r.(string); ok && isInternalField(name) {
				continue
			}
			cleanRequired = append(cleanRequired, r)
		}
		out["required"] = cleanRequired
	}

	return out
}

func isInternalField(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}
