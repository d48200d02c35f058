package studio

import (
	"context"
	"encoding/json"
	"strings"

	"gamesmith/studio/internal/errinfo"
	"gamesmith/studio/internal/logging"
	"gamesmith/studio/internal/settings"
)

func (e *Engine) ProvidersGetStatus(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	configured := e.fakeCollaborator
	if !configured {
		key, err := e.secrets.GetGeminiKey()
		if err != nil {
			return nil, errinfo.PersistenceFailed(err.Error())
		}
		configured = strings.TrimSpace(key) != ""
	}
	return map[string]any{
		"providers": []map[string]any{
			{
				"provider_id":  ProviderGoogle,
				"display_name": "Google Gemini",
				"auth_mode":    "api_key",
				"configured":   configured,
				"fake":         e.fakeCollaborator,
				"models":       supportedModels(),
			},
		},
	}, nil
}

func (e *Engine) ProvidersSetApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
		APIKey     string `json:"api_key"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if req.ProviderID != "" && req.ProviderID != ProviderGoogle {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "api_key is required")
	}
	e.logger.Debug("providers.set_api_key", "provider_id", ProviderGoogle, "api_key", logging.RedactValue(req.APIKey))
	if err := e.secrets.SetGeminiKey(strings.TrimSpace(req.APIKey)); err != nil {
		return nil, errinfo.PersistenceFailed(err.Error())
	}
	return map[string]any{}, nil
}

func (e *Engine) ProvidersClearApiKey(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	_ = json.Unmarshal(params, &req)
	if req.ProviderID != "" && req.ProviderID != ProviderGoogle {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown provider")
	}
	e.logger.Info("providers.clear_api_key", "provider_id", ProviderGoogle)
	if err := e.secrets.ClearGeminiKey(); err != nil {
		return nil, errinfo.PersistenceFailed(err.Error())
	}
	return map[string]any{}, nil
}

func (e *Engine) ProvidersValidate(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	key, errInfo := e.requireKey(errinfo.PhaseSettings)
	if errInfo != nil {
		return nil, errInfo
	}
	e.logger.Debug("providers.validate", "provider_id", ProviderGoogle)
	if err := e.client.ValidateKey(ctx, key); err != nil {
		return nil, mapLLMError(errinfo.PhaseSettings, err)
	}
	return map[string]any{"ok": true}, nil
}

func (e *Engine) ModelsListSupported(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"models": supportedModels()}, nil
}

func (e *Engine) UserGetDefaultModel(ctx context.Context, _ json.RawMessage) (any, *errinfo.ErrorInfo) {
	return map[string]any{"model_id": e.defaultModel()}, nil
}

func (e *Engine) UserSetDefaultModel(ctx context.Context, params json.RawMessage) (any, *errinfo.ErrorInfo) {
	var req struct {
		ModelID string `json:"model_id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "invalid params")
	}
	if _, ok := getModel(req.ModelID); !ok {
		return nil, errinfo.ValidationFailed(errinfo.PhaseSettings, "unknown model id")
	}
	e.logger.Info("user.set_default_model", "model_id", req.ModelID)
	if _, err := e.settings.Update(func(s *settings.Settings) {
		s.DefaultModelID = req.ModelID
	}); err != nil {
		return nil, errinfo.PersistenceFailed(err.Error())
	}
	return map[string]any{}, nil
}
