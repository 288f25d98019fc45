// Package normalize maps arbitrary execution-plane runtime events into the
// stable UI event envelope consumed by browser clients over SSE.
package normalize

import "time"

// MessageType enumerates the UI-facing event types a UIMessage can carry.
type MessageType string

const (
	TypeThinking     MessageType = "thinking"
	TypePlan         MessageType = "plan"
	TypePlanStep     MessageType = "plan_step"
	TypeToolCall     MessageType = "tool_call"
	TypeToolResult   MessageType = "tool_result"
	TypeSkillCall    MessageType = "skill_call"
	TypeSkillResult  MessageType = "skill_result"
	TypeMCPCall      MessageType = "mcp_call"
	TypeMCPResult    MessageType = "mcp_result"
	TypeText         MessageType = "text"
	TypeFile         MessageType = "file"
)

// processTypes is the subset of MessageType that describes intermediate
// agent work and is buffered for attachment to the final assistant message.
var processTypes = map[MessageType]bool{
	TypeThinking:   true,
	TypePlan:       true,
	TypePlanStep:   true,
	TypeToolCall:   true,
	TypeToolResult: true,
	TypeMCPCall:    true,
	TypeMCPResult:  true,
}

// IsProcessType reports whether t belongs to the process-event subset
// buffered by the Event Ingest component ahead of session completion.
func IsProcessType(t MessageType) bool {
	return processTypes[t]
}

// UIMessage is the stable envelope browser clients consume over SSE.
type UIMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// RawEvent is the untyped shape an execution-plane event arrives in.
// Values are decoded from JSON, so numeric fields surface as float64 and
// nested structures as map[string]any/[]any — callers must coerce with the
// helpers in this package rather than type-assert directly.
type RawEvent map[string]any

// TypeOf returns the event's "type" discriminator, or "" if absent/non-string.
func (e RawEvent) TypeOf() string {
	v, _ := e["type"].(string)
	return v
}

// nowISO returns the current UTC time formatted to millisecond-precision
// ISO-8601, the timestamp format carried by every UIMessage.
var nowISO = func() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ThinkingData is the payload for TypeThinking.
type ThinkingData struct {
	Content string `json:"content"`
	Stage   string `json:"stage,omitempty"`
}

// PlanStepInfo describes one step of a PlanData.
type PlanStepInfo struct {
	StepID string `json:"stepId,omitempty"`
	Status string `json:"status"`
}

// PlanData is the payload for TypePlan.
type PlanData struct {
	Steps       []PlanStepInfo `json:"steps"`
	CurrentStep string         `json:"currentStep"`
}

// PlanStepData is the payload for TypePlanStep.
type PlanStepData struct {
	StepID     string `json:"stepId"`
	Status     string `json:"status"`
	Tool       string `json:"tool,omitempty"`
	Params     any    `json:"params,omitempty"`
	Result     any    `json:"result,omitempty"`
	DurationMs any    `json:"durationMs,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ToolCallData is the payload for TypeToolCall.
type ToolCallData struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
}

// ToolResultData is the payload for TypeToolResult.
type ToolResultData struct {
	ToolName string `json:"toolName"`
	Result   any    `json:"result"`
	Success  bool   `json:"success"`
}

// SkillCallData is the payload for TypeSkillCall.
type SkillCallData struct {
	SkillName string         `json:"skillName"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
}

// SkillResultData is the payload for TypeSkillResult.
type SkillResultData struct {
	SkillName string `json:"skillName"`
	Result    any    `json:"result"`
	Success   bool   `json:"success"`
}

// MCPCallData is the payload for TypeMCPCall.
type MCPCallData struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Status    string         `json:"status"`
}

// MCPResultData is the payload for TypeMCPResult.
type MCPResultData struct {
	Server  string `json:"server"`
	Tool    string `json:"tool"`
	Result  any    `json:"result"`
	Success bool   `json:"success"`
}

// TextData is the payload for TypeText.
type TextData struct {
	Content string `json:"content"`
}

// FileData is the payload for TypeFile.
type FileData struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     any    `json:"size,omitempty"`
}
