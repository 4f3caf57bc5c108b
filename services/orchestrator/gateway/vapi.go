// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const vapiBaseURL = "https://api.vapi.ai"

// Voice is the Vapi voice platform client. It places outbound calls
// and repoints assistant and tool server URLs after a redeploy.
type Voice struct {
	apiKey        string
	assistantID   string
	phoneNumberID string
	toolIDs       []string
	backendURL    string
	client        *http.Client
	log           *slog.Logger
}

// NewVoice builds a voice platform client.
func NewVoice(apiKey, assistantID, phoneNumberID string, toolIDs []string, backendURL string, log *slog.Logger) *Voice {
	return &Voice{
		apiKey:        apiKey,
		assistantID:   assistantID,
		phoneNumberID: phoneNumberID,
		toolIDs:       toolIDs,
		backendURL:    backendURL,
		client:        &http.Client{Timeout: 15 * time.Second},
		log:           log,
	}
}

// Available reports whether outbound calling is configured.
func (v *Voice) Available() bool { return v.apiKey != "" && v.phoneNumberID != "" }

func (v *Voice) do(ctx context.Context, method, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, vapiBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vapi status %d: %s", resp.StatusCode, raw)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// CallRequest carries the task-specific variables for an outbound
// service call.
type CallRequest struct {
	PhoneNumber     string
	TaskID          string
	UserName        string
	Company         string
	Objective       string
	CurrentRate     float64
	TargetRate      float64
	ResearchContext string
}

// TriggerOutboundCall places a call to a service provider using the
// pre-configured assistant with per-task variable overrides.
func (v *Voice) TriggerOutboundCall(ctx context.Context, req CallRequest) (map[string]any, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("VAPI_API_KEY not set")
	}
	if v.phoneNumberID == "" {
		return nil, fmt.Errorf("VAPI_PHONE_NUMBER_ID not set")
	}

	research := req.ResearchContext
	if len(research) > 500 {
		research = research[:500]
	}
	if req.UserName == "" {
		req.UserName = "Neel"
	}

	payload := map[string]any{
		"phoneNumberId": v.phoneNumberID,
		"assistantId":   v.assistantID,
		"customer": map[string]any{
			"number":                 req.PhoneNumber,
			"numberE164CheckEnabled": false,
		},
		"assistantOverrides": map[string]any{
			"variableValues": map[string]any{
				"taskId":          req.TaskID,
				"customerName":    req.UserName,
				"targetCompany":   req.Company,
				"objective":       req.Objective,
				"currentRate":     fmt.Sprint(req.CurrentRate),
				"targetRate":      fmt.Sprint(req.TargetRate),
				"researchContext": research,
			},
		},
	}

	out, err := v.do(ctx, http.MethodPost, "/call/phone", payload)
	if err != nil {
		v.log.Error("outbound call failed", "task_id", req.TaskID, "error", err)
		return nil, err
	}
	v.log.Info("outbound call triggered", "call_id", out["id"])
	return out, nil
}

// ConsultContext is the billing context injected into the ephemeral
// consult assistant's system prompt.
type ConsultContext struct {
	SummaryText           string
	UserName              string
	TotalPotentialSavings float64
}

// consultPrompt builds the system prompt for the user-consult call.
func consultPrompt(c ConsultContext) string {
	userName := c.UserName
	if userName == "" {
		userName = "there"
	}
	return fmt.Sprintf(`You are Haggle, an autonomous financial advocate AI. You are calling %[1]s by phone.

%[2]s

YOUR GOAL:
1. Greet %[1]s briefly and explain you're calling about their bills.
2. Walk through each issue with specific dollar numbers.
3. For gym/fitness subscriptions, ask how often they actually go. Use calculate_cost_per_use if they give a frequency.
4. For billing increases, mention competitors' rates as leverage.
5. For each service where %[1]s agrees to act: call confirm_action immediately.
6. After all confirmations, tell them you'll handle everything and they'll get an email summary.

RULES:
- Be concise and conversational, this is a real phone call, keep it under 3 minutes.
- Always confirm explicitly before calling confirm_action ("Should I go ahead and cancel it?" then user says yes, then call tool).
- Do not make up numbers. Use only the data above.
- If %[1]s says no to an action, respect it and move on.
- Potential savings: $%[3].0f/month if all actions confirmed.`,
		userName, c.SummaryText, c.TotalPotentialSavings)
}

// consultTools are the inline tool schemas for the ephemeral assistant.
func (v *Voice) consultTools() []map[string]any {
	serverURL := map[string]any{"url": v.backendURL + "/api/vapi/tool-call"}
	return []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "get_subscription_analysis",
				"description": "Get the full billing context and subscription analysis for the user.",
				"parameters":  map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}},
				"server":      serverURL,
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "confirm_action",
				"description": "Record a confirmed action for a subscription service after the user agrees.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"service":         map[string]any{"type": "string", "description": "Name of the service (e.g. Comcast)"},
						"action":          map[string]any{"type": "string", "enum": []string{"cancel_service", "negotiate_rate"}},
						"reason":          map[string]any{"type": "string", "description": "Why this action makes sense"},
						"monthly_savings": map[string]any{"type": "number", "description": "Estimated monthly savings in dollars"},
					},
					"required": []string{"service", "action", "reason", "monthly_savings"},
				},
				"server": serverURL,
			},
		},
		{
			"type": "function",
			"function": map[string]any{
				"name":        "calculate_cost_per_use",
				"description": "Calculate cost per visit given a monthly subscription cost and visit frequency.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"service":          map[string]any{"type": "string"},
						"monthly_cost":     map[string]any{"type": "number"},
						"visits_per_month": map[string]any{"type": "number"},
					},
					"required": []string{"service", "monthly_cost", "visits_per_month"},
				},
				"server": serverURL,
			},
		},
	}
}

// TriggerUserConsultCall places a call to the user with an ephemeral
// assistant whose prompt carries the full billing context. No
// pre-configured assistant is needed for this leg.
func (v *Voice) TriggerUserConsultCall(ctx context.Context, phone, taskID string, consult ConsultContext) (map[string]any, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("VAPI_API_KEY not set")
	}
	if v.phoneNumberID == "" {
		return nil, fmt.Errorf("VAPI_PHONE_NUMBER_ID not set")
	}
	if phone == "" {
		return nil, fmt.Errorf("USER_PHONE_NUMBER not set")
	}

	payload := map[string]any{
		"phoneNumberId": v.phoneNumberID,
		"customer":      map[string]any{"number": phone},
		"assistant": map[string]any{
			"name": "Haggle User Consult",
			"model": map[string]any{
				"provider": "groq",
				"model":    "llama-3.3-70b-versatile",
				"messages": []map[string]any{
					{"role": "system", "content": consultPrompt(consult)},
				},
				"tools": v.consultTools(),
			},
			"voice": map[string]any{
				"provider": "11labs",
				"voiceId":  "21m00Tcm4TlvDq8ikWAM",
			},
			"serverUrl":      v.backendURL + "/api/vapi/webhook",
			"serverMessages": []string{"end-of-call-report", "transcript", "status-update"},
			"metadata":       map[string]any{"task_id": taskID, "call_type": "user_consult"},
		},
	}

	out, err := v.do(ctx, http.MethodPost, "/call", payload)
	if err != nil {
		v.log.Error("user consult call failed", "task_id", taskID, "error", err)
		return nil, err
	}
	v.log.Info("user consult call triggered", "task_id", taskID, "call_id", out["id"])
	return out, nil
}

// UpdateAssistantServerURL repoints the assistant's webhook after a
// redeploy changes the backend host.
func (v *Voice) UpdateAssistantServerURL(ctx context.Context, newURL string) (map[string]any, error) {
	if v.apiKey == "" {
		return nil, fmt.Errorf("VAPI_API_KEY not set")
	}
	out, err := v.do(ctx, http.MethodPatch, "/assistant/"+v.assistantID,
		map[string]any{"serverUrl": newURL + "/api/vapi/webhook"})
	if err != nil {
		v.log.Error("assistant url update failed", "error", err)
		return nil, err
	}
	return out, nil
}

// ToolURLUpdate reports one tool's repoint outcome.
type ToolURLUpdate struct {
	ToolID string `json:"tool_id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// UpdateToolServerURLs repoints every registered tool to the new
// backend. Failures are reported per tool, not aggregated.
func (v *Voice) UpdateToolServerURLs(ctx context.Context, newURL string) []ToolURLUpdate {
	if len(v.toolIDs) == 0 {
		v.log.Warn("VAPI_TOOL_IDS not set, skipping tool url updates")
		return []ToolURLUpdate{}
	}
	results := make([]ToolURLUpdate, 0, len(v.toolIDs))
	for _, toolID := range v.toolIDs {
		_, err := v.do(ctx, http.MethodPatch, "/tool/"+toolID,
			map[string]any{"server": map[string]any{"url": newURL + "/api/vapi/tool-call"}})
		if err != nil {
			results = append(results, ToolURLUpdate{ToolID: toolID, Error: err.Error()})
			continue
		}
		results = append(results, ToolURLUpdate{ToolID: toolID, Status: "updated"})
	}
	return results
}
