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
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

// RunConsultSimulation streams the pre-scripted user consult, fires
// the confirm_action decisions the scripted user makes, then drains
// the inbox and dispatches one independent service-provider run per
// confirmed action. The dispatched runs are concurrent; failure of one
// does not affect the others.
func (o *Orchestrator) RunConsultSimulation(ctx context.Context, taskID, callID string, userName string) error {
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":      taskID,
			"call_id":      callID,
			"status":       "ringing",
			"company":      fmt.Sprintf("%s (User Consult)", userName),
			"phone_number": "+15550000001",
			"call_type":    gateway.CallTypeUserConsult,
		},
	})
	o.pause(ctx, 1.2)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":   taskID,
			"call_id":   callID,
			"status":    "in_progress",
			"call_type": gateway.CallTypeUserConsult,
			"message":   "User consult call connected",
		},
	})
	o.pause(ctx, 0.6)

	for _, line := range consultScript {
		o.pause(ctx, line.Pause)
		o.bus.Publish(datatypes.Event{
			Type: datatypes.EventTranscript,
			Data: map[string]any{
				"task_id":   taskID,
				"call_id":   callID,
				"role":      line.Role,
				"text":      line.Text,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"call_type": gateway.CallTypeUserConsult,
			},
		})

		// The scripted user's yes-lines stand in for the live
		// confirm_action tool firing.
		lower := strings.ToLower(line.Text)
		switch {
		case line.Role == "user" && strings.Contains(lower, "cancel it"):
			o.pause(ctx, 0.4)
			o.FireConfirmedAction(datatypes.ConfirmedAction{
				Service:        "Planet Fitness",
				Action:         datatypes.ActionCancelService,
				Reason:         "User visits twice/month at $12.50/visit vs $10 day pass, not cost-effective",
				MonthlySavings: 25.0,
				PhoneNumber:    "+18005555678",
			}, callID)
		case line.Role == "user" && strings.Contains(lower, "yes, please do that"):
			o.pause(ctx, 0.4)
			o.FireConfirmedAction(datatypes.ConfirmedAction{
				Service:        "Comcast",
				Action:         datatypes.ActionNegotiateRate,
				Reason:         "54% billing increase detected, competitor rates available as leverage",
				MonthlySavings: 20.0,
				PhoneNumber:    "+18005551234",
			}, callID)
		}
	}
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":          taskID,
			"call_id":          callID,
			"status":           "ended",
			"call_type":        gateway.CallTypeUserConsult,
			"duration_seconds": 52,
		},
	})

	// Voice analysis of the consult leg.
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"task_id": taskID,
			"call_id": callID,
			"phase":   "research",
			"message": "Modulate Velma 2 analyzing user consult voice...",
		},
	})
	o.pause(ctx, 0.6)

	consultAnalysis := o.gw.Analyzer.AnalyzeCall(ctx, scriptTurns(consultScript),
		gateway.CallTypeUserConsult, "", "")
	o.bus.Publish(analysisEvent(taskID, callID, consultAnalysis))
	o.pause(ctx, 0.4)

	confirmed := o.registry.DrainConfirmedActions()
	o.setStatus(taskID, datatypes.TaskUpdate{
		Status: datatypes.StatusPtr(datatypes.StatusCompleted),
		Outcome: datatypes.Str(fmt.Sprintf(
			"User confirmed %d action(s), dispatching service calls", len(confirmed))),
	})
	o.pause(ctx, 0.8)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"message": fmt.Sprintf(
				"User confirmed %d action(s). Velma context loaded. Dispatching service calls now...",
				len(confirmed)),
			"confirmed_count": len(confirmed),
			"call_id":         callID,
			"phase":           "dispatch",
			"velma_context":   consultAnalysis.NegotiationRecommendation,
		},
	})

	return o.DispatchConfirmedActions(ctx, confirmed, userName, &consultAnalysis)
}

// FireConfirmedAction stores a user decision in the inbox and pushes
// its dashboard event.
func (o *Orchestrator) FireConfirmedAction(ca datatypes.ConfirmedAction, callID string) {
	o.registry.AddConfirmedAction(ca)
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"confirmed_action": map[string]any{
				"service":         ca.Service,
				"action":          string(ca.Action),
				"reason":          ca.Reason,
				"monthly_savings": ca.MonthlySavings,
			},
			"call_id": callID,
			"message": fmt.Sprintf("User confirmed: %s %s, saves $%.0f/mo",
				strings.ReplaceAll(string(ca.Action), "_", " "), ca.Service, ca.MonthlySavings),
		},
	})
}

// DispatchConfirmedActions spawns one independent phase run per
// confirmed action and waits for all of them. Each run owns its own
// freshly created task; runs never share task state, so they are safe
// to interleave.
func (o *Orchestrator) DispatchConfirmedActions(ctx context.Context, confirmed []datatypes.ConfirmedAction, userName string, consult *gateway.VoiceAnalysis) error {
	var g errgroup.Group
	for _, ca := range confirmed {
		ca := ca
		g.Go(func() error {
			o.RunServiceTask(ctx, ca, userName, consult)
			return nil
		})
	}
	return g.Wait()
}

// RunServiceTask creates a service-provider task from a confirmed
// action and drives it through the full phase sequence. It never
// fails: every external dependency degrades to a placeholder and the
// task still reaches a terminal status.
func (o *Orchestrator) RunServiceTask(ctx context.Context, ca datatypes.ConfirmedAction, userName string, consult *gateway.VoiceAnalysis) {
	ctx, span := otel.Tracer("phases").Start(ctx, "RunServiceTask")
	span.SetAttributes(
		attribute.String("service", ca.Service),
		attribute.String("action", string(ca.Action)))
	defer span.End()

	currentRate := ca.MonthlySavings
	if sub, ok := gateway.SubscriptionByService(ctx, o.gw.Graph, ca.Service); ok {
		currentRate = sub.MonthlyCost
	}
	targetRate := 0.0
	tc := datatypes.TaskCreate{
		Company:     ca.Service,
		Action:      ca.Action,
		PhoneNumber: ca.PhoneNumber,
		ServiceType: "subscription",
		CurrentRate: datatypes.Float(currentRate),
		UserName:    userName,
		Notes:       ca.Reason,
	}
	if ca.Action == datatypes.ActionNegotiateRate {
		targetRate = currentRate - ca.MonthlySavings
		tc.TargetRate = datatypes.Float(targetRate)
	}

	task, err := o.registry.Create(tc)
	if err != nil {
		o.log.Error("service task creation failed", "service", ca.Service, "error", err)
		return
	}
	o.publishTask(task)
	o.pause(ctx, 0.5)

	callID := NewCallID()
	confirmation := NewConfirmation()

	research := o.Research(ctx, task.ID)

	// Inject consult insights into the competitor line so the agent
	// sounds informed by the user's intent and urgency.
	velmaPrefix := ""
	if consult != nil && consult.NegotiationRecommendation != "" {
		velmaPrefix = fmt.Sprintf("[Velma context: user certainty %.0f%%, decisive - %s] ",
			consult.CertaintyScore*100, truncate(consult.NegotiationRecommendation, 120))
	}

	var script []Line
	if ca.Action == datatypes.ActionCancelService {
		script = cancellationScript(userName, ca.Service, "membership", confirmation)
	} else {
		baseContext := research.Context
		if baseContext == "" {
			baseContext = "Competitors offer lower rates in this area."
		}
		competitorLine := velmaPrefix + truncate(baseContext, 200)
		script = negotiationScript(userName, currentRate, targetRate, competitorLine, confirmation)
	}

	if err := o.Call(ctx, task.ID, callID, script); err != nil {
		o.log.Error("call linkage failed", "task_id", task.ID, "error", err)
		return
	}
	o.ToolCalls(ctx, task.ID, callID, ca.Service, confirmation, targetRate)

	if ca.Action == datatypes.ActionCancelService {
		o.ResolveCancellation(ctx, task.ID, callID, currentRate, confirmation)
	} else {
		o.Resolve(ctx, task.ID, callID, currentRate, targetRate, confirmation)
	}

	// Post-call voice analysis and the summary email, both best-effort.
	transcript := scriptTurns(script)
	serviceAnalysis := o.gw.Analyzer.AnalyzeCall(ctx, transcript,
		gateway.CallTypeServiceProvider, ca.Service, "")
	o.bus.Publish(analysisEvent(task.ID, callID, serviceAnalysis))

	if completed, err := o.registry.Get(task.ID); err == nil {
		summary := Summary(ca.Action, completed.Company, completed.UserName,
			currentRate, targetRate, savingsFor(ca.Action, currentRate, targetRate),
			confirmation, completed.ResearchContext)
		o.gw.Notifier.SendCallSummary(completed, transcript, "", &summary, nil)
	}
}

func savingsFor(action datatypes.TaskAction, currentRate, targetRate float64) float64 {
	if action == datatypes.ActionCancelService {
		return currentRate
	}
	return currentRate - targetRate
}

func scriptTurns(script []Line) []gateway.TranscriptTurn {
	out := make([]gateway.TranscriptTurn, 0, len(script))
	for _, line := range script {
		out = append(out, gateway.TranscriptTurn{Role: line.Role, Text: line.Text})
	}
	return out
}
