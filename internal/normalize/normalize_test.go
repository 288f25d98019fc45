package normalize

import "testing"

func withFixedID(t *testing.T, id string) {
	t.Helper()
	orig := newID
	newID = func() string { return id }
	t.Cleanup(func() { newID = orig })
}

func TestNormalize_UnknownType(t *testing.T) {
	msg, ok := Normalize(RawEvent{"type": "something_weird"})
	if ok || msg != nil {
		t.Fatalf("expected nil/false for unknown type, got %v, %v", msg, ok)
	}
}

func TestNormalize_MissingType(t *testing.T) {
	msg, ok := Normalize(RawEvent{"content": "hi"})
	if ok || msg != nil {
		t.Fatalf("expected nil/false for missing type, got %v, %v", msg, ok)
	}
}

func TestNormalize_Thinking(t *testing.T) {
	withFixedID(t, "id-1")
	msg, ok := Normalize(RawEvent{"type": "thinking", "content": "hi", "stage": "analyzing"})
	if !ok {
		t.Fatalf("expected ok")
	}
	if msg.Type != TypeThinking {
		t.Fatalf("expected thinking type, got %s", msg.Type)
	}
	data, ok := msg.Data.(ThinkingData)
	if !ok {
		t.Fatalf("expected ThinkingData, got %T", msg.Data)
	}
	if data.Content != "hi" || data.Stage != "analyzing" {
		t.Fatalf("unexpected data: %+v", data)
	}
	if msg.ID != "id-1" {
		t.Fatalf("expected fixed id, got %s", msg.ID)
	}
	if msg.Timestamp == "" {
		t.Fatalf("expected non-empty timestamp")
	}
}

func TestNormalize_BridgeToolResult(t *testing.T) {
	msg, ok := Normalize(RawEvent{
		"type":      "tool_result",
		"tool_name": "grep",
		"output":    map[string]any{"matches": 3},
		"success":   true,
	})
	if !ok {
		t.Fatalf("expected ok")
	}
	if msg.Type != TypeToolResult {
		t.Fatalf("expected tool_result, got %s", msg.Type)
	}
	data := msg.Data.(ToolResultData)
	if data.ToolName != "grep" {
		t.Fatalf("unexpected tool name: %s", data.ToolName)
	}
	m, ok := data.Result.(map[string]any)
	if !ok || m["matches"] != 3 {
		t.Fatalf("unexpected result: %+v", data.Result)
	}
	if !data.Success {
		t.Fatalf("expected success=true")
	}
}

func TestNormalize_ToolResultFallsBackToResultField(t *testing.T) {
	msg, ok := Normalize(RawEvent{
		"type":      "tool_result",
		"tool_name": "grep",
		"result":    "fallback",
	})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(ToolResultData)
	if data.Result != "fallback" {
		t.Fatalf("expected fallback result, got %v", data.Result)
	}
	if !data.Success {
		t.Fatalf("expected success default true")
	}
}

func TestNormalize_PlanStepFailedDefaultsError(t *testing.T) {
	msg, ok := Normalize(RawEvent{"type": "plan_step_failed", "step_id": "s1"})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(PlanStepData)
	if data.Error != "Unknown error" {
		t.Fatalf("expected default error message, got %q", data.Error)
	}
	if data.Status != "failed" {
		t.Fatalf("expected failed status, got %q", data.Status)
	}
}

func TestNormalize_PlanCreatedStepsDefaultPending(t *testing.T) {
	msg, ok := Normalize(RawEvent{
		"type": "plan_created",
		"steps": []any{
			map[string]any{"step_id": "s1"},
			map[string]any{"step_id": "s2"},
		},
	})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(PlanData)
	if len(data.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(data.Steps))
	}
	for _, s := range data.Steps {
		if s.Status != "pending" {
			t.Fatalf("expected pending status, got %q", s.Status)
		}
	}
	if data.CurrentStep != "" {
		t.Fatalf("expected empty currentStep, got %q", data.CurrentStep)
	}
}

func TestNormalize_FileCreatedDefaults(t *testing.T) {
	msg, ok := Normalize(RawEvent{"type": "file_created", "url": "https://x/y.png"})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(FileData)
	if data.Filename != "file" {
		t.Fatalf("expected default filename, got %q", data.Filename)
	}
	if data.MimeType != "application/octet-stream" {
		t.Fatalf("expected default mime type, got %q", data.MimeType)
	}
}

func TestNormalize_MissingStringFieldsDefaultEmpty(t *testing.T) {
	msg, ok := Normalize(RawEvent{"type": "thinking"})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(ThinkingData)
	if data.Content != "" || data.Stage != "" {
		t.Fatalf("expected empty defaults, got %+v", data)
	}
}

func TestNormalize_MissingArgumentsDefaultEmptyMap(t *testing.T) {
	msg, ok := Normalize(RawEvent{"type": "tool_call_start", "tool_name": "x"})
	if !ok {
		t.Fatalf("expected ok")
	}
	data := msg.Data.(ToolCallData)
	if data.Arguments == nil || len(data.Arguments) != 0 {
		t.Fatalf("expected empty map, got %v", data.Arguments)
	}
}

func TestIsCompleteIsError(t *testing.T) {
	if !IsComplete(RawEvent{"type": "execution_complete"}) {
		t.Fatalf("expected IsComplete true")
	}
	if IsComplete(RawEvent{"type": "execution_error"}) {
		t.Fatalf("expected IsComplete false")
	}
	if !IsError(RawEvent{"type": "execution_error"}) {
		t.Fatalf("expected IsError true")
	}
	if IsError(RawEvent{"type": "thinking"}) {
		t.Fatalf("expected IsError false")
	}
}

func TestNormalize_DeterministicModuloIDAndTimestamp(t *testing.T) {
	ev := RawEvent{"type": "text", "content": "hello"}
	m1, _ := Normalize(ev)
	m2, _ := Normalize(ev)
	if m1.Type != m2.Type {
		t.Fatalf("expected same type")
	}
	if m1.Data.(TextData) != m2.Data.(TextData) {
		t.Fatalf("expected same data")
	}
}
