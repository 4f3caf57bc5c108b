// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package webhook

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

func newTestIngress(t *testing.T) (*Ingress, *store.Registry, *eventbus.Bus, *phases.Orchestrator) {
	t.Helper()
	log := slog.Default()
	registry := store.NewRegistry()
	bus := eventbus.NewBus()
	analyzer := gateway.NewAnalyzer("", log)
	notifier := gateway.NewNotifier("", "", "", "", "", "", "", log)
	orch := phases.New(registry, bus, phases.Gateways{
		Graph:     gateway.NewGraph(context.Background(), "", "", "", log),
		Search:    gateway.NewSearcher("", log),
		Knowledge: gateway.NewKnowledge("", "", log),
		Analyzer:  analyzer,
		Notifier:  notifier,
	}, log)
	orch.SetPaceScale(0)
	ing := New(registry, bus, orch, analyzer,
		gateway.NewExtractor("", "", "", log),
		gateway.NewCallLog(context.Background(), "", log),
		notifier, log)
	return ing, registry, bus, orch
}

func drainEvents(ch <-chan datatypes.Event) []datatypes.Event {
	var out []datatypes.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestHandleAlwaysOK(t *testing.T) {
	ing, _, _, _ := newTestIngress(t)

	for _, typ := range []string{"end-of-call-report", "status-update", "transcript", "conversation-update", "speech-update", ""} {
		resp := ing.Handle(context.Background(), datatypes.WebhookRequest{
			Message: datatypes.WebhookMessage{Type: typ},
		})
		assert.Equal(t, map[string]any{"status": "ok"}, resp, "type %q", typ)
	}
}

func TestStatusUpdateInProgress(t *testing.T) {
	ing, registry, bus, _ := newTestIngress(t)
	registry.SeedDemoTasks()
	task := registry.List()[0]
	_, err := registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str("call_s1")})
	require.NoError(t, err)

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type:   "status-update",
			Status: "in-progress",
			Call:   datatypes.CallInfo{ID: "call_s1"},
		},
	})

	updated, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCalling, updated.Status)

	events := drainEvents(ch)
	require.Len(t, events, 2)
	assert.Equal(t, datatypes.EventTaskUpdated, events[0].Type)
	assert.Equal(t, datatypes.EventCallStatus, events[1].Type)
	assert.Equal(t, "in-progress", events[1].Data["status"])
}

func TestTranscriptFinalOnly(t *testing.T) {
	ing, _, bus, _ := newTestIngress(t)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	base := datatypes.WebhookMessage{
		Type: "transcript",
		Call: datatypes.CallInfo{ID: "call_t1"},
	}

	partial := base
	partial.TranscriptType = "partial"
	partial.Transcript = "Hel"
	partial.Role = "assistant"
	ing.Handle(context.Background(), datatypes.WebhookRequest{Message: partial})

	final := base
	final.TranscriptType = "final"
	final.Transcript = "Hello, this is Haggle."
	final.Role = "assistant"
	ing.Handle(context.Background(), datatypes.WebhookRequest{Message: final})

	fromRep := base
	fromRep.TranscriptType = "final"
	fromRep.Transcript = "How can I help?"
	fromRep.Role = "user"
	ing.Handle(context.Background(), datatypes.WebhookRequest{Message: fromRep})

	events := drainEvents(ch)
	require.Len(t, events, 2, "partials must be dropped")
	assert.Equal(t, "agent", events[0].Data["role"])
	assert.Equal(t, "Hello, this is Haggle.", events[0].Data["text"])
	assert.Equal(t, "rep", events[1].Data["role"])
}

func TestEndOfCallServiceBranch(t *testing.T) {
	ing, registry, bus, _ := newTestIngress(t)
	registry.SeedDemoTasks()
	task := registry.List()[0]
	_, err := registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str("call_e1")})
	require.NoError(t, err)

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type:       "end-of-call-report",
			Call:       datatypes.CallInfo{ID: "call_e1"},
			Transcript: "AI: Hello.\nUser: Rate lowered to $65. Confirmation CNF-2026-AB12.",
			Summary:    "Negotiated rate down to $65.",
			Duration:   47,
			Analysis: datatypes.WebhookAnalysis{
				StructuredData: datatypes.StructuredData{
					TaskCompleted:      true,
					Outcome:            "New rate $65/mo",
					SavingsAmount:      20,
					ConfirmationNumber: "CNF-2026-AB12",
				},
			},
		},
	})

	updated, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, updated.Status)
	assert.Equal(t, "New rate $65/mo", updated.Outcome)
	require.NotNil(t, updated.Savings)
	assert.Equal(t, 20.0, *updated.Savings)
	assert.Equal(t, "CNF-2026-AB12", updated.ConfirmationNumber)

	events := drainEvents(ch)
	var ended map[string]any
	for _, ev := range events {
		if ev.Type == datatypes.EventCallStatus && ev.Data["status"] == "ended" {
			ended = ev.Data
		}
	}
	require.NotNil(t, ended)
	assert.Equal(t, 47.0, ended["duration_seconds"])
}

func TestEndOfCallWithoutStructuredData(t *testing.T) {
	ing, registry, _, _ := newTestIngress(t)
	registry.SeedDemoTasks()
	task := registry.List()[1]
	_, err := registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str("call_e2")})
	require.NoError(t, err)

	ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type: "end-of-call-report",
			Call: datatypes.CallInfo{ID: "call_e2"},
		},
	})

	updated, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusNeedsFollowup, updated.Status, "uncompleted call needs follow-up")
	assert.Equal(t, "Call ended", updated.Outcome)
}

func TestEndOfCallUnknownCall(t *testing.T) {
	ing, registry, _, _ := newTestIngress(t)

	// No task is linked to this call; the handler must still answer ok.
	resp := ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type: "end-of-call-report",
			Call: datatypes.CallInfo{ID: "call_nobody"},
		},
	})
	assert.Equal(t, "ok", resp["status"])
	assert.Empty(t, registry.List())
}

func TestEndOfCallConsultBranch(t *testing.T) {
	ing, registry, _, orch := newTestIngress(t)

	consult, err := registry.Create(datatypes.TaskCreate{
		Company:     "Haggle Consult",
		Action:      datatypes.ActionConsultUser,
		PhoneNumber: "+15550000001",
		UserName:    "Neel",
	})
	require.NoError(t, err)
	_, err = registry.Update(consult.ID, datatypes.TaskUpdate{
		Status: datatypes.StatusPtr(datatypes.StatusCalling),
		CallID: datatypes.Str("consult_abc123"),
	})
	require.NoError(t, err)

	// Decisions collected during the call via the confirm_action tool.
	registry.AddConfirmedAction(datatypes.ConfirmedAction{
		Service:        "Comcast",
		Action:         datatypes.ActionNegotiateRate,
		MonthlySavings: 20,
		PhoneNumber:    "+18005551234",
	})
	registry.AddConfirmedAction(datatypes.ConfirmedAction{
		Service:        "Planet Fitness",
		Action:         datatypes.ActionCancelService,
		MonthlySavings: 25,
		PhoneNumber:    "+18005555678",
	})

	ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type: "end-of-call-report",
			Call: datatypes.CallInfo{ID: "consult_abc123"},
			Conversation: []datatypes.ConversationTurn{
				{Role: "assistant", Content: "Should I go ahead?"},
				{Role: "user", Content: "Yes, go ahead."},
			},
		},
	})

	// The dispatch runs in the orchestrator's supervisor set.
	orch.Wait()

	done, err := registry.Get(consult.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, done.Status)
	assert.Equal(t, "User confirmed 2 action(s)", done.Outcome)

	tasks := registry.List()
	require.Len(t, tasks, 3, "consult plus two dispatched follow-ups")
	for _, task := range tasks[1:] {
		assert.Equal(t, datatypes.StatusCompleted, task.Status)
	}
	assert.Empty(t, registry.DrainConfirmedActions())
}

func TestEndOfCallConsultNoActions(t *testing.T) {
	ing, registry, bus, orch := newTestIngress(t)

	consult, err := registry.Create(datatypes.TaskCreate{
		Company:     "Haggle Consult",
		Action:      datatypes.ActionConsultUser,
		PhoneNumber: "+15550000001",
	})
	require.NoError(t, err)
	_, err = registry.Update(consult.ID, datatypes.TaskUpdate{CallID: datatypes.Str("consult_noop")})
	require.NoError(t, err)

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ing.Handle(context.Background(), datatypes.WebhookRequest{
		Message: datatypes.WebhookMessage{
			Type: "end-of-call-report",
			Call: datatypes.CallInfo{ID: "consult_noop"},
		},
	})
	orch.Wait()

	require.Len(t, registry.List(), 1, "no follow-up tasks dispatched")

	found := false
	for _, ev := range drainEvents(ch) {
		if msg, ok := ev.Data["message"].(string); ok && msg == "Consult complete, no actions confirmed by user." {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAgentPerformance(t *testing.T) {
	t.Run("clean call grades A", func(t *testing.T) {
		perf := agentPerformance(gateway.SafetyReport{
			SafetyScore:       95,
			TotalUtterances:   10,
			RepEmotionSummary: map[string]int{"Happy": 3, "Interested": 2},
		}, 90)

		prof := perf["professionalism"].(map[string]any)
		assert.Equal(t, "A", prof["grade"])
		privacy := perf["privacy"].(map[string]any)
		assert.Equal(t, "A", privacy["grade"])
		rep := perf["rep_sentiment"].(map[string]any)
		assert.Equal(t, "Cooperative", rep["mood"])
		eff := perf["efficiency"].(map[string]any)
		assert.Equal(t, "Fast", eff["rating"])
	})

	t.Run("hostile rep with pii exposure", func(t *testing.T) {
		perf := agentPerformance(gateway.SafetyReport{
			SafetyScore:          70,
			RepHostileUtterances: 2,
			PIIDetected:          3,
			RepEmotionSummary:    map[string]int{"Frustrated": 4, "Angry": 1},
		}, 400)

		prof := perf["professionalism"].(map[string]any)
		assert.Equal(t, "D", prof["grade"])
		assert.Equal(t, 40.0, prof["score"])
		privacy := perf["privacy"].(map[string]any)
		assert.Equal(t, "C", privacy["grade"])
		rep := perf["rep_sentiment"].(map[string]any)
		assert.Equal(t, "Resistant", rep["mood"])
		eff := perf["efficiency"].(map[string]any)
		assert.Equal(t, "Long", eff["rating"])
	})
}
