package errinfo

import "testing"

func TestProviderNotConfigured(t *testing.T) {
	err := ProviderNotConfigured(PhaseSettings)
	if err.ErrorCode != CodeProviderNotConfigured {
		t.Fatalf("expected provider not configured")
	}
	if len(err.Actions) == 0 || err.Actions[0] != ActionOpenSettings {
		t.Fatalf("expected open_settings action")
	}
}

func TestMalformedResponseRetryability(t *testing.T) {
	first := MalformedResponse(SubphaseExtract, "no JSON found")
	if first.ErrorCode != CodeMalformedResponse || !first.Retryable {
		t.Fatalf("first failure must be retryable, got %+v", first)
	}
	if len(first.Actions) == 0 || first.Actions[0] != ActionRetry {
		t.Fatalf("expected retry action")
	}
	second := MalformedResponseFatal(SubphaseSchema, "files empty")
	if second.Retryable {
		t.Fatalf("second failure must not be retryable")
	}
	if len(second.Actions) == 0 || second.Actions[0] != ActionNewPrompt {
		t.Fatalf("expected new_prompt action")
	}
}

func TestWorkspaceHelpers(t *testing.T) {
	busy := GenerationBusy("ws-1")
	if busy.ErrorCode != CodeGenerationBusy || busy.WorkspaceID != "ws-1" {
		t.Fatalf("expected busy with workspace id, got %+v", busy)
	}
	missing := WorkspaceNotFound("ws-2")
	if missing.ErrorCode != CodeWorkspaceNotFound || missing.WorkspaceID != "ws-2" {
		t.Fatalf("expected workspace not found, got %+v", missing)
	}
	entry := EntryPointMissing("ws-3")
	if entry.ErrorCode != CodeEntryPointMissing || entry.Subphase != SubphaseBundle {
		t.Fatalf("expected entry point missing in bundle subphase, got %+v", entry)
	}
	validation := ValidationFailed(PhaseWorkspace, "bad")
	if validation.ErrorCode != CodeValidationFailed {
		t.Fatalf("expected validation failed")
	}
}
