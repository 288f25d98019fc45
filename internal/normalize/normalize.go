package normalize

import (
	"github.com/google/uuid"
)

// newID is the uuid generator used for each UIMessage; overridable in tests.
var newID = func() string { return uuid.New().String() }

// Normalize maps an arbitrary execution-plane event into a UIMessage.
// It returns nil, false iff the event's type is absent or unrecognized.
// The function is total on its declared input domain and deterministic
// modulo the freshly generated id and timestamp.
func Normalize(ev RawEvent) (*UIMessage, bool) {
	switch ev.TypeOf() {
	case "thinking":
		return envelope(TypeThinking, ThinkingData{
			Content: str(ev, "content"),
			Stage:   str(ev, "stage"),
		}), true

	case "plan_created":
		return envelope(TypePlan, PlanData{
			Steps:       planSteps(ev["steps"]),
			CurrentStep: "",
		}), true

	case "plan_step_start":
		return envelope(TypePlanStep, PlanStepData{
			StepID: str(ev, "step_id"),
			Status: "running",
			Tool:   str(ev, "tool"),
			Params: ev["params"],
		}), true

	case "plan_step_complete":
		return envelope(TypePlanStep, PlanStepData{
			StepID:     str(ev, "step_id"),
			Status:     "completed",
			Result:     ev["result"],
			DurationMs: ev["duration_ms"],
		}), true

	case "plan_step_failed":
		return envelope(TypePlanStep, PlanStepData{
			StepID: str(ev, "step_id"),
			Status: "failed",
			Error:  strDefault(ev, "error", "Unknown error"),
		}), true

	case "tool_call_start":
		return envelope(TypeToolCall, ToolCallData{
			ToolName:  str(ev, "tool_name"),
			Arguments: mapOf(ev["arguments"]),
			Status:    "calling",
		}), true

	case "tool_call_complete":
		return envelope(TypeToolResult, ToolResultData{
			ToolName: str(ev, "tool_name"),
			Result:   ev["result"],
			Success:  boolDefault(ev, "success", true),
		}), true

	case "tool_call":
		return envelope(TypeToolCall, ToolCallData{
			ToolName:  str(ev, "tool_name"),
			Arguments: mapOf(ev["input"]),
			Status:    "calling",
		}), true

	case "tool_result":
		return envelope(TypeToolResult, ToolResultData{
			ToolName: str(ev, "tool_name"),
			Result:   firstNonNil(ev["output"], ev["result"]),
			Success:  boolDefault(ev, "success", true),
		}), true

	case "skill_call_start":
		return envelope(TypeSkillCall, SkillCallData{
			SkillName: str(ev, "skill_name"),
			Arguments: mapOf(ev["arguments"]),
			Status:    "calling",
		}), true

	case "skill_call_complete":
		return envelope(TypeSkillResult, SkillResultData{
			SkillName: str(ev, "skill_name"),
			Result:    ev["result"],
			Success:   boolDefault(ev, "success", true),
		}), true

	case "mcp_call_start":
		return envelope(TypeMCPCall, MCPCallData{
			Server:    str(ev, "server"),
			Tool:      str(ev, "tool"),
			Arguments: mapOf(ev["arguments"]),
			Status:    "calling",
		}), true

	case "mcp_call_complete":
		return envelope(TypeMCPResult, MCPResultData{
			Server:  str(ev, "server"),
			Tool:    str(ev, "tool"),
			Result:  ev["result"],
			Success: boolDefault(ev, "success", true),
		}), true

	case "text_chunk", "text":
		return envelope(TypeText, TextData{
			Content: str(ev, "content"),
		}), true

	case "file_created":
		return envelope(TypeFile, FileData{
			URL:      str(ev, "url"),
			Filename: strDefault(ev, "filename", "file"),
			MimeType: strDefault(ev, "mimeType", "application/octet-stream"),
			Size:     ev["size"],
		}), true

	default:
		return nil, false
	}
}

// IsComplete reports whether ev is a terminal success event.
func IsComplete(ev RawEvent) bool { return ev.TypeOf() == "execution_complete" }

// IsError reports whether ev is a terminal failure event.
func IsError(ev RawEvent) bool { return ev.TypeOf() == "execution_error" }

func envelope(t MessageType, data any) *UIMessage {
	return &UIMessage{
		ID:        newID(),
		Type:      t,
		Data:      data,
		Timestamp: nowISO(),
	}
}

func str(ev RawEvent, key string) string {
	v, _ := ev[key].(string)
	return v
}

func strDefault(ev RawEvent, key, def string) string {
	if v, ok := ev[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolDefault(ev RawEvent, key string, def bool) bool {
	if v, ok := ev[key].(bool); ok {
		return v
	}
	return def
}

func mapOf(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func planSteps(v any) []PlanStepInfo {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	steps := make([]PlanStepInfo, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["step_id"].(string)
		if id == "" {
			id, _ = m["id"].(string)
		}
		steps = append(steps, PlanStepInfo{StepID: id, Status: "pending"})
	}
	return steps
}
