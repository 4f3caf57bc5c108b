// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
)

// Wire shapes for the Vapi voice platform. Both the tool-call and
// webhook endpoints receive a top-level {"message": {...}} envelope.
// The platform requires HTTP 200 on every request, so these types are
// decoded defensively: missing or malformed fields decode to zero
// values instead of failing the request.

// ToolCallRequest is the body of POST /api/vapi/tool-call.
type ToolCallRequest struct {
	Message ToolCallMessage `json:"message"`
}

// ToolCallMessage carries the batch of tool invocations plus call info.
type ToolCallMessage struct {
	ToolCallList []ToolCall `json:"toolCallList"`
	Call         CallInfo   `json:"call"`
}

// ToolCall is one tool invocation. Vapi nests name/arguments under a
// "function" key, but older payloads put them at the top level; both
// are accepted.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`

	// Legacy top-level fields.
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallFunction holds the tool name and its argument bag. Arguments
// may be a JSON object or a JSON-encoded string of one.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolName returns the tool name from whichever field carries it.
func (t ToolCall) ToolName() string {
	if t.Function.Name != "" {
		return t.Function.Name
	}
	return t.Name
}

// Args decodes the argument bag, tolerating both a JSON object and a
// string-wrapped JSON object. Malformed arguments decode to an empty
// bag rather than an error; the calling protocol requires a
// success-shaped response for every invocation.
func (t ToolCall) Args() map[string]any {
	raw := t.Function.Arguments
	if len(raw) == 0 {
		raw = t.Arguments
	}
	if len(raw) == 0 {
		return map[string]any{}
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}

	// Arguments delivered as a JSON string containing an object.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return map[string]any{}
}

// ToolCallResult is one entry of the tool-call response. Result must be
// a single-line string.
type ToolCallResult struct {
	Name       string `json:"name"`
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

// ToolCallResponse is the body returned for every tool-call request.
type ToolCallResponse struct {
	Results []ToolCallResult `json:"results"`
}

// CallInfo identifies the in-flight call a message belongs to.
type CallInfo struct {
	ID           string `json:"id"`
	RecordingURL string `json:"recordingUrl,omitempty"`
}

// WebhookRequest is the body of POST /api/vapi/webhook.
type WebhookRequest struct {
	Message WebhookMessage `json:"message"`
}

// WebhookMessage is one server message from the voice platform.
// Relevant types: "end-of-call-report", "status-update", "transcript",
// "conversation-update".
type WebhookMessage struct {
	Type           string             `json:"type"`
	Call           CallInfo           `json:"call"`
	Status         string             `json:"status,omitempty"`
	Transcript     string             `json:"transcript,omitempty"`
	TranscriptType string             `json:"transcriptType,omitempty"`
	Role           string             `json:"role,omitempty"`
	Summary        string             `json:"summary,omitempty"`
	EndedReason    string             `json:"endedReason,omitempty"`
	RecordingURL   string             `json:"recordingUrl,omitempty"`
	Duration       float64            `json:"durationSeconds,omitempty"`
	Analysis       WebhookAnalysis    `json:"analysis,omitempty"`
	Conversation   []ConversationTurn `json:"conversation,omitempty"`
}

// WebhookAnalysis carries the platform's structured end-of-call fields.
type WebhookAnalysis struct {
	StructuredData StructuredData `json:"structuredData,omitempty"`
}

// StructuredData is the assistant's structured outcome summary.
type StructuredData struct {
	TaskCompleted      bool    `json:"task_completed"`
	Outcome            string  `json:"outcome"`
	SavingsAmount      float64 `json:"savings_amount"`
	ConfirmationNumber string  `json:"confirmation_number"`
}

// ConversationTurn is one turn of the full conversation history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Recording returns the recording URL from whichever field carries it.
func (m WebhookMessage) Recording() string {
	if m.RecordingURL != "" {
		return m.RecordingURL
	}
	return m.Call.RecordingURL
}
