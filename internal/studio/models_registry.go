package studio

const ProviderGoogle = "google"

const (
	ModelGeminiFlashID = "gemini-2.5-flash"
	ModelGeminiProID   = "gemini-2.5-pro"
)

type ModelInfo struct {
	ModelID       string `json:"model_id"`
	ProviderID    string `json:"provider_id"`
	DisplayName   string `json:"display_name"`
	ContextTokens int    `json:"context_tokens_estimate"`
	RequiresKey   bool   `json:"requires_key"`
}

var modelRegistry = map[string]ModelInfo{
	ModelGeminiFlashID: {
		ModelID:       ModelGeminiFlashID,
		ProviderID:    ProviderGoogle,
		DisplayName:   "Gemini 2.5 Flash",
		ContextTokens: 1000000,
		RequiresKey:   true,
	},
	ModelGeminiProID: {
		ModelID:       ModelGeminiProID,
		ProviderID:    ProviderGoogle,
		DisplayName:   "Gemini 2.5 Pro",
		ContextTokens: 1000000,
		RequiresKey:   true,
	},
}

var modelOrder = []string{ModelGeminiFlashID, ModelGeminiProID}

func getModel(id string) (ModelInfo, bool) {
	info, ok := modelRegistry[id]
	return info, ok
}

func supportedModels() []ModelInfo {
	models := make([]ModelInfo, 0, len(modelOrder))
	for _, id := range modelOrder {
		models = append(models, modelRegistry[id])
	}
	return models
}
