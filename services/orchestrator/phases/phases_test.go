// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// newTestOrchestrator wires an orchestrator against fully unconfigured
// collaborators, so every external call takes its degraded path, and
// collapses all pacing delays.
func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Registry, *eventbus.Bus) {
	t.Helper()
	log := slog.Default()
	registry := store.NewRegistry()
	bus := eventbus.NewBus()
	gw := Gateways{
		Graph:     gateway.NewGraph(context.Background(), "", "", "", log),
		Search:    gateway.NewSearcher("", log),
		Knowledge: gateway.NewKnowledge("", "", log),
		Analyzer:  gateway.NewAnalyzer("", log),
		Notifier:  gateway.NewNotifier("", "", "", "", "", "", "", log),
	}
	o := New(registry, bus, gw, log)
	o.paceScale = 0
	return o, registry, bus
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

func countType(events []datatypes.Event, typ datatypes.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// TestRunServiceTask_Negotiation drives a full negotiation cycle with
// every collaborator down and verifies the task still completes with
// correct savings and a streamed transcript.
func TestRunServiceTask_Negotiation(t *testing.T) {
	o, registry, bus := newTestOrchestrator(t)
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	o.RunServiceTask(context.Background(), datatypes.ConfirmedAction{
		Service:        "Comcast",
		Action:         datatypes.ActionNegotiateRate,
		Reason:         "54% billing increase detected",
		MonthlySavings: 20.0,
		PhoneNumber:    "+18005551234",
	}, "Neel", nil)

	tasks := registry.List()
	require.Len(t, tasks, 1)
	task := tasks[0]

	assert.Equal(t, datatypes.StatusCompleted, task.Status)
	require.NotNil(t, task.Savings)
	assert.Equal(t, 20.0, *task.Savings)
	assert.Regexp(t, `^CNF-2026-[0-9A-F]{4}$`, task.ConfirmationNumber)
	assert.NotEmpty(t, task.ResearchContext, "fallback context must be substituted")
	assert.NotEmpty(t, task.Outcome)
	assert.Regexp(t, `^call_[0-9a-f]{12}$`, task.CallID)

	events := drainEvents(ch)
	assert.GreaterOrEqual(t, countType(events, datatypes.EventTranscript), 1)
	assert.Equal(t, 1, countType(events, datatypes.EventCallSummary))
	assert.Equal(t, 1, countType(events, datatypes.EventGraphUpdated))
	assert.Equal(t, 1, countType(events, datatypes.EventVoiceAnalysis))
}

// TestRunServiceTask_Cancellation verifies a cancellation cycle counts
// the canceled monthly rate as the full savings and needs no target
// rate.
func TestRunServiceTask_Cancellation(t *testing.T) {
	o, registry, _ := newTestOrchestrator(t)

	o.RunServiceTask(context.Background(), datatypes.ConfirmedAction{
		Service:        "Planet Fitness",
		Action:         datatypes.ActionCancelService,
		Reason:         "Not cost-effective",
		MonthlySavings: 25.0,
		PhoneNumber:    "+18005555678",
	}, "Neel", nil)

	tasks := registry.List()
	require.Len(t, tasks, 1)
	task := tasks[0]

	assert.Equal(t, datatypes.StatusCompleted, task.Status)
	require.NotNil(t, task.Savings)
	assert.Equal(t, 25.0, *task.Savings)
	assert.Nil(t, task.TargetRate)
	assert.Contains(t, task.Outcome, "cancelled")
}

// TestConsultSimulation verifies the scripted consult fires exactly
// two confirmed actions and dispatches both to terminal status.
func TestConsultSimulation(t *testing.T) {
	o, registry, _ := newTestOrchestrator(t)

	consult, err := registry.Create(datatypes.TaskCreate{
		Company:     "Haggle Consult",
		Action:      datatypes.ActionConsultUser,
		PhoneNumber: "+15550000001",
		ServiceType: "consult",
		UserName:    "Neel",
	})
	require.NoError(t, err)
	callID := NewConsultCallID()
	_, err = registry.Update(consult.ID, datatypes.TaskUpdate{
		Status: datatypes.StatusPtr(datatypes.StatusCalling),
		CallID: datatypes.Str(callID),
	})
	require.NoError(t, err)

	require.NoError(t, o.RunConsultSimulation(context.Background(), consult.ID, callID, "Neel"))

	tasks := registry.List()
	require.Len(t, tasks, 3, "consult plus two dispatched follow-ups")

	done, err := registry.Get(consult.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, done.Status)
	assert.Contains(t, done.Outcome, "2 action(s)")

	byCompany := map[string]*datatypes.Task{}
	for _, task := range tasks[1:] {
		byCompany[task.Company] = task
	}
	require.Contains(t, byCompany, "Comcast")
	require.Contains(t, byCompany, "Planet Fitness")

	comcast := byCompany["Comcast"]
	assert.Equal(t, datatypes.StatusCompleted, comcast.Status)
	assert.Equal(t, datatypes.ActionNegotiateRate, comcast.Action)
	require.NotNil(t, comcast.Savings)
	assert.Equal(t, 20.0, *comcast.Savings)

	gym := byCompany["Planet Fitness"]
	assert.Equal(t, datatypes.StatusCompleted, gym.Status)
	assert.Equal(t, datatypes.ActionCancelService, gym.Action)
	require.NotNil(t, gym.Savings)
	assert.Equal(t, 25.0, *gym.Savings)

	assert.Empty(t, registry.DrainConfirmedActions(), "inbox drained by dispatch")
}

// TestRunTask drives a pre-created task end to end, including the
// default-rate fallback when the task carries no rate fields.
func TestRunTask(t *testing.T) {
	o, registry, _ := newTestOrchestrator(t)

	task, err := registry.Create(datatypes.TaskCreate{
		Company:     "Comcast",
		Action:      datatypes.ActionNegotiateRate,
		PhoneNumber: "+18005551234",
		UserName:    "Neel",
	})
	require.NoError(t, err)

	require.NoError(t, o.RunTask(context.Background(), task.ID))

	done, err := registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, done.Status)
	require.NotNil(t, done.Savings)
	assert.Equal(t, 20.0, *done.Savings, "default 85 to 65 negotiation")
	assert.NotEmpty(t, done.ConfirmationNumber)

	t.Run("missing task", func(t *testing.T) {
		assert.Error(t, o.RunTask(context.Background(), "task_missing1"))
	})
}

// TestResolveIdempotent verifies re-invoking resolution on a completed
// task changes nothing and emits nothing.
func TestResolveIdempotent(t *testing.T) {
	o, registry, bus := newTestOrchestrator(t)

	task, err := registry.Create(datatypes.TaskCreate{
		Company:     "Comcast",
		Action:      datatypes.ActionNegotiateRate,
		PhoneNumber: "+18005551234",
		CurrentRate: datatypes.Float(85.0),
		TargetRate:  datatypes.Float(65.0),
	})
	require.NoError(t, err)
	callID := NewCallID()
	require.NoError(t, o.Call(context.Background(), task.ID, callID, nil))

	first := o.Resolve(context.Background(), task.ID, callID, 85.0, 65.0, "CNF-2026-AAAA")
	assert.Equal(t, 20.0, first["monthly_savings"])

	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	second := o.Resolve(context.Background(), task.ID, callID, 85.0, 65.0, "CNF-2026-BBBB")
	assert.Equal(t, "already_completed", second["status"])
	assert.Empty(t, drainEvents(ch), "second resolution must be silent")

	final, err := registry.Get(task.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Savings)
	assert.Equal(t, 20.0, *final.Savings)
	assert.Equal(t, "CNF-2026-AAAA", final.ConfirmationNumber)
}

// TestCallLinkageWriteOnce verifies the call phase refuses to relink a
// task to a second call.
func TestCallLinkageWriteOnce(t *testing.T) {
	o, registry, _ := newTestOrchestrator(t)

	task, err := registry.Create(datatypes.TaskCreate{
		Company:     "Comcast",
		Action:      datatypes.ActionNegotiateRate,
		PhoneNumber: "+18005551234",
	})
	require.NoError(t, err)

	require.NoError(t, o.Call(context.Background(), task.ID, "call_aaaaaaaaaaaa", nil))
	err = o.Call(context.Background(), task.ID, "call_bbbbbbbbbbbb", nil)
	assert.ErrorIs(t, err, store.ErrCallLinked)
}

// TestSummaryCompetitorClause verifies competitor mentions in the
// research context surface as negotiation leverage in the narrative.
func TestSummaryCompetitorClause(t *testing.T) {
	s := Summary(datatypes.ActionNegotiateRate, "Comcast", "Neel",
		85, 65, 20, "CNF-2026-1A2B",
		"T-Mobile 5G Home Internet at $50. AT&T Fiber plans from $55.")

	assert.Contains(t, s.Narrative, "T-Mobile 5G Home Internet at $50/mo")
	assert.Contains(t, s.Narrative, "AT&T Fiber at $55/mo")
	assert.NotContains(t, s.Narrative, "Verizon")
	assert.Contains(t, s.Narrative, "saving $20/month ($240/year)")
	assert.Contains(t, s.KeyPoints, "Cited competitor pricing as negotiation leverage")
	assert.Contains(t, s.KeyPoints, "Confirmation #CNF-2026-1A2B issued")
}

func TestSummaryWithoutCompetitors(t *testing.T) {
	s := Summary(datatypes.ActionNegotiateRate, "Comcast", "Neel",
		85, 65, 20, "CNF-2026-1A2B", "")

	assert.NotContains(t, s.Narrative, "I cited")
	assert.Contains(t, s.KeyPoints, "Presented rate reduction request")
}

func TestSummaryCancellation(t *testing.T) {
	s := Summary(datatypes.ActionCancelService, "Planet Fitness", "Neel",
		25, 0, 25, "CNF-2026-9C3D", "")

	assert.Contains(t, s.Narrative, "membership cancellation")
	assert.Contains(t, s.Narrative, "saving $25/month ($300/year)")
	assert.Contains(t, s.KeyPoints, "Declined retention offer")
}

func TestIDFormats(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^call_[0-9a-f]{12}$`), NewCallID())
	assert.Regexp(t, regexp.MustCompile(`^consult_[0-9a-f]{10}$`), NewConsultCallID())
	assert.Regexp(t, regexp.MustCompile(`^CNF-2026-[0-9A-F]{4}$`), NewConfirmation())
}
