// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Registry, *eventbus.Bus) {
	t.Helper()
	log := slog.Default()
	registry := store.NewRegistry()
	bus := eventbus.NewBus()
	d := New(registry, bus,
		gateway.NewGraph(context.Background(), "", "", "", log),
		gateway.NewSearcher("", log),
		gateway.NewExtractor("", "", "", log),
		gateway.NewNotifier("", "", "", "", "", "", "", log),
		log)
	return d, registry, bus
}

func TestDispatchUnknownTool(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	result := d.Dispatch(context.Background(), "unknown_tool", map[string]any{}, "call_x")
	assert.Equal(t, "Unknown tool: unknown_tool", result)
}

func TestSearchTaskContext(t *testing.T) {
	d, registry, _ := newTestDispatcher(t)
	registry.SeedDemoTasks()
	tasks := registry.List()
	comcast := tasks[0]

	t.Run("by task id", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "search_task_context",
			map[string]any{"task_id": comcast.ID}, "call_ctx1")

		assert.Contains(t, result, "Task: negotiate_rate for Comcast.")
		assert.Contains(t, result, "Client: Neel.")
		assert.Contains(t, result, "Current rate: $85/month.")
		assert.Contains(t, result, "Target rate: $65/month.")
		assert.Contains(t, result, "Notes: Bill increased")

		// The call got linked as a side effect.
		linked, err := registry.FindByCallID("call_ctx1")
		require.NoError(t, err)
		assert.Equal(t, comcast.ID, linked.ID)
	})

	t.Run("fallback to linked call", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "search_task_context",
			map[string]any{}, "call_ctx1")
		assert.Contains(t, result, "Comcast")
	})

	t.Run("no tasks at all", func(t *testing.T) {
		empty, _, _ := newTestDispatcher(t)
		result := empty.Dispatch(context.Background(), "search_task_context",
			map[string]any{}, "call_none")
		assert.Equal(t, "No task found. Ask the customer how you can help them.", result)
	})
}

func TestExtractEntities(t *testing.T) {
	d, registry, bus := newTestDispatcher(t)
	registry.SeedDemoTasks()
	task := registry.List()[0]
	_, err := registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str("call_e1")})
	require.NoError(t, err)

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	result := d.Dispatch(context.Background(), "extract_entities", map[string]any{
		"entity_type": "confirmation_number",
		"value":       "CNF-2026-AB12",
		"context":     "read back by rep",
	}, "call_e1")
	assert.Equal(t, "Logged confirmation_number: CNF-2026-AB12", result)

	updated, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "CNF-2026-AB12", updated.ConfirmationNumber)

	ev := <-ch
	assert.Equal(t, datatypes.EventEntityExtracted, ev.Type)
	assert.Equal(t, "CNF-2026-AB12", ev.Data["value"])

	t.Run("price updates outcome", func(t *testing.T) {
		d.Dispatch(context.Background(), "extract_entities", map[string]any{
			"entity_type": "price", "value": "$65/month",
		}, "call_e1")
		updated, err := registry.Get(task.ID)
		require.NoError(t, err)
		assert.Equal(t, "New rate: $65/month", updated.Outcome)
	})

	t.Run("pattern pass over transcript text", func(t *testing.T) {
		for len(ch) > 0 {
			<-ch
		}

		// No explicit value: the extractor sweeps the supplied text and
		// still lands the confirmation number on the task.
		result := d.Dispatch(context.Background(), "extract_entities", map[string]any{
			"context": "Your confirmation number is CNF-2026-FF99 and your new rate is $65.00 a month.",
		}, "call_e1")
		assert.Contains(t, result, "Extracted 2 entities")

		updated, err := registry.Get(task.ID)
		require.NoError(t, err)
		assert.Equal(t, "CNF-2026-FF99", updated.ConfirmationNumber)

		ev := <-ch
		assert.Equal(t, datatypes.EventEntityExtracted, ev.Type)
		assert.Equal(t, string(datatypes.EntityConfirmationNumber), ev.Data["entity_type"])
		assert.Equal(t, "CNF-2026-FF99", ev.Data["value"])
	})

	t.Run("missing value", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "extract_entities", map[string]any{}, "call_e1")
		assert.Equal(t, "No value provided.", result)
	})
}

func TestUpdateGraphDegraded(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	// Graph store down: the tool still answers with a single-line result.
	result := d.Dispatch(context.Background(), "update_neo4j", map[string]any{
		"action":       "negotiate_rate",
		"service_name": "Comcast",
		"details":      `{"old_rate": 85, "new_rate": 65, "confirmation": "CNF-2026-AB12"}`,
	}, "call_g1")

	assert.Contains(t, result, "Graph updated: negotiate_rate for Comcast.")
	assert.Contains(t, result, "neo4j_unavailable")
	assert.NotContains(t, result, "\n")
}

func TestEndTask(t *testing.T) {
	d, registry, _ := newTestDispatcher(t)
	registry.SeedDemoTasks()
	task := registry.List()[1]
	_, err := registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str("call_end1")})
	require.NoError(t, err)

	result := d.Dispatch(context.Background(), "end_task", map[string]any{
		"status":  "completed",
		"summary": "Membership cancelled.",
	}, "call_end1")
	assert.Equal(t, "Task marked as completed. Membership cancelled.", result)

	updated, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, updated.Status)
	assert.Equal(t, "Membership cancelled.", updated.Outcome)

	t.Run("transferred maps to needs_followup", func(t *testing.T) {
		assert.Equal(t, datatypes.StatusNeedsFollowup, endTaskStatus("transferred"))
		assert.Equal(t, datatypes.StatusFailed, endTaskStatus("failed"))
		assert.Equal(t, datatypes.StatusCompleted, endTaskStatus("anything_else"))
	})
}

func TestGetSubscriptionAnalysis(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	result := d.Dispatch(context.Background(), "get_subscription_analysis", map[string]any{}, "call_s1")

	assert.Contains(t, result, "SUBSCRIPTION ANALYSIS FOR NEEL")
	assert.Contains(t, result, "DETAILS:")
	assert.Contains(t, result, "Comcast: $85/mo (was $55)")
	assert.Contains(t, result, "Day pass: $10")
	assert.Contains(t, result, "Total potential savings: $45/mo")
}

func TestConfirmAction(t *testing.T) {
	d, registry, bus := newTestDispatcher(t)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	result := d.Dispatch(context.Background(), "confirm_action", map[string]any{
		"service":         "Planet Fitness",
		"action":          "cancel_service",
		"reason":          "barely used",
		"monthly_savings": 25.0,
	}, "call_c1")

	assert.Equal(t, "Confirmed: will cancel service Planet Fitness. Saves $25/mo. I'll take care of this right after our call.", result)

	confirmed := registry.DrainConfirmedActions()
	require.Len(t, confirmed, 1)
	assert.Equal(t, "Planet Fitness", confirmed[0].Service)
	assert.Equal(t, datatypes.ActionCancelService, confirmed[0].Action)
	assert.Equal(t, 25.0, confirmed[0].MonthlySavings)
	assert.Equal(t, "+18005555678", confirmed[0].PhoneNumber, "phone from the catalog")

	ev := <-ch
	assert.Equal(t, datatypes.EventTaskUpdated, ev.Type)
	assert.Contains(t, ev.Data["message"], "User confirmed: cancel service Planet Fitness")

	t.Run("missing fields", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "confirm_action", map[string]any{}, "call_c2")
		assert.Equal(t, "Missing service or action, cannot confirm.", result)
	})

	t.Run("unknown service falls back to default phone", func(t *testing.T) {
		d.Dispatch(context.Background(), "confirm_action", map[string]any{
			"service": "Netflix", "action": "cancel_service",
		}, "call_c3")
		confirmed := registry.DrainConfirmedActions()
		require.Len(t, confirmed, 1)
		assert.Equal(t, "+18005551234", confirmed[0].PhoneNumber)
	})
}

func TestCalculateCostPerUse(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	t.Run("overpaying vs day pass", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "calculate_cost_per_use", map[string]any{
			"service":          "Planet Fitness",
			"monthly_cost":     25.0,
			"visits_per_month": 2.0,
		}, "call_u1")
		assert.Contains(t, result, "$25/mo / 2 visits = $12.50/visit.")
		assert.Contains(t, result, "overpaying by $2.50/visit")
	})

	t.Run("zero visits", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "calculate_cost_per_use", map[string]any{
			"service":          "Planet Fitness",
			"monthly_cost":     25.0,
			"visits_per_month": 0.0,
		}, "call_u2")
		assert.Equal(t, "Planet Fitness: With 0 visits, you're paying $25/mo for nothing.", result)
	})

	t.Run("numbers as strings", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "calculate_cost_per_use", map[string]any{
			"service":          "Planet Fitness",
			"monthly_cost":     "25",
			"visits_per_month": "5",
		}, "call_u3")
		assert.Contains(t, result, "= $5.00/visit.")
		assert.Contains(t, result, "Worth keeping")
	})
}

// TestHandleBatch verifies the envelope handling: nested function
// payloads, string-wrapped arguments, per-call results in order, and
// single-line sanitization.
func TestHandleBatch(t *testing.T) {
	d, _, bus := newTestDispatcher(t)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	var req datatypes.ToolCallRequest
	body := `{
		"message": {
			"call": {"id": "call_b1"},
			"toolCallList": [
				{"id": "tc1", "function": {"name": "calculate_cost_per_use",
					"arguments": "{\"service\": \"Planet Fitness\", \"monthly_cost\": 25, \"visits_per_month\": 2}"}},
				{"id": "tc2", "function": {"name": "nope", "arguments": {}}}
			]
		}
	}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	resp := d.Handle(context.Background(), req)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "tc1", resp.Results[0].ToolCallID)
	assert.Equal(t, "calculate_cost_per_use", resp.Results[0].Name)
	assert.Contains(t, resp.Results[0].Result, "$12.50/visit")

	assert.Equal(t, "tc2", resp.Results[1].ToolCallID)
	assert.Equal(t, "Unknown tool: nope", resp.Results[1].Result)

	for _, r := range resp.Results {
		assert.False(t, strings.ContainsAny(r.Result, "\n\r"))
		assert.NotEmpty(t, r.Result)
	}

	// One tool_call badge per invocation.
	badges := 0
	for len(ch) > 0 {
		if ev := <-ch; ev.Type == datatypes.EventToolCall {
			badges++
		}
	}
	assert.Equal(t, 2, badges)
}
