package llm

import "encoding/json"

// EditResponseSchema is the response schema every generation call is
// constrained to: a non-empty file list plus a user-facing explanation and an
// optional thinking trace. Expressed in the OpenAPI subset the Gemini
// generateContent API accepts as generationConfig.responseSchema.
func EditResponseSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "files": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "path": {"type": "string"},
          "content": {"type": "string"}
        },
        "required": ["path", "content"]
      }
    },
    "explanation": {"type": "string"},
    "thinking": {"type": "string"}
  },
  "required": ["files", "explanation"]
}`)
}
