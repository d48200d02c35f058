package errinfo

// ErrorInfo is the structured error payload crossing the RPC boundary.
type ErrorInfo struct {
	ErrorCode   string   `json:"error_code"`
	Phase       string   `json:"phase,omitempty"`
	Subphase    string   `json:"subphase,omitempty"`
	Retryable   bool     `json:"retryable"`
	Actions     []string `json:"actions,omitempty"`
	ProviderID  string   `json:"provider_id,omitempty"`
	ModelID     string   `json:"model_id,omitempty"`
	WorkspaceID string   `json:"workspace_id,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

const (
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderAuthFailed    = "PROVIDER_AUTH_FAILED"
	CodeProviderUnavailable   = "PROVIDER_UNAVAILABLE"
	CodeNetworkUnavailable    = "NETWORK_UNAVAILABLE"
	CodeRateLimited           = "PROVIDER_RATE_LIMITED"
	CodeEgressBlocked         = "EGRESS_BLOCKED_BY_POLICY"
	CodeMalformedResponse     = "MALFORMED_RESPONSE"
	CodeGenerationBusy        = "GENERATION_IN_FLIGHT"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeWorkspaceNotFound     = "WORKSPACE_NOT_FOUND"
	CodeEntryPointMissing     = "ENTRY_POINT_MISSING"
	CodePersistenceFailed     = "PERSISTENCE_FAILED"
	CodeSandboxFailed         = "SANDBOX_FAILED"
)

const (
	ActionRetry        = "retry"
	ActionOpenSettings = "open_settings"
	ActionNewPrompt    = "new_prompt"
)

const (
	PhaseWorkspace   = "workspace"
	PhaseGeneration  = "generation"
	PhasePreview     = "preview"
	PhaseSettings    = "settings"
	PhasePersistence = "persistence"
)

const (
	SubphaseExtract = "extract"
	SubphaseSchema  = "schema"
	SubphaseApply   = "apply"
	SubphaseBundle  = "bundle"
	SubphaseRun     = "run"
)

func ProviderNotConfigured(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderNotConfigured,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderAuthFailed(phase string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderAuthFailed,
		Phase:     phase,
		Retryable: false,
		Actions:   []string{ActionOpenSettings},
	}
}

func ProviderUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeProviderUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func NetworkUnavailable(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNetworkUnavailable,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func RateLimited(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeRateLimited,
		Phase:     phase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

func EgressBlocked(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeEgressBlocked,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

// MalformedResponse marks the fixable first-failure path: the same prompt may
// be retried once.
func MalformedResponse(subphase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeMalformedResponse,
		Phase:     PhaseGeneration,
		Subphase:  subphase,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}

// MalformedResponseFatal marks the second failure for the same prompt; only a
// new prompt moves the conversation forward.
func MalformedResponseFatal(subphase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeMalformedResponse,
		Phase:     PhaseGeneration,
		Subphase:  subphase,
		Retryable: false,
		Actions:   []string{ActionNewPrompt},
		Detail:    detail,
	}
}

func GenerationBusy(workspaceID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:   CodeGenerationBusy,
		Phase:       PhaseGeneration,
		Retryable:   false,
		WorkspaceID: workspaceID,
	}
}

func ValidationFailed(phase, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Phase:     phase,
		Retryable: false,
		Detail:    detail,
	}
}

func WorkspaceNotFound(workspaceID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:   CodeWorkspaceNotFound,
		Phase:       PhaseWorkspace,
		Retryable:   false,
		WorkspaceID: workspaceID,
	}
}

func EntryPointMissing(workspaceID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode:   CodeEntryPointMissing,
		Phase:       PhasePreview,
		Subphase:    SubphaseBundle,
		Retryable:   false,
		WorkspaceID: workspaceID,
	}
}

func PersistenceFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodePersistenceFailed,
		Phase:     PhasePersistence,
		Retryable: false,
		Detail:    detail,
	}
}

func SandboxFailed(detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeSandboxFailed,
		Phase:     PhasePreview,
		Subphase:  SubphaseRun,
		Retryable: true,
		Actions:   []string{ActionRetry},
		Detail:    detail,
	}
}
