// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phases drives tasks through their lifecycle.
//
// # Description
//
// The Orchestrator walks one task through research, call, tool-call,
// and resolution phases, mutating the registry and publishing an event
// at every boundary. External collaborators are consulted best-effort:
// a collaborator that is down degrades that step's output, it never
// aborts the task. The only step that must succeed is the local
// status/call-id linkage at the start of the call phase.
//
// A single Orchestrator run owns its task's progression. Never
// dispatch two runs against the same task id.
package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// Gateways groups the external collaborators a phase run may consult.
// Any of them may be unconfigured; the phases degrade per collaborator.
type Gateways struct {
	Graph     *gateway.Graph
	Search    *gateway.Searcher
	Knowledge *gateway.Knowledge
	Analyzer  gateway.VoiceAnalyzer
	Notifier  *gateway.Notifier
}

// Orchestrator runs phase sequences against the registry and bus.
type Orchestrator struct {
	registry *store.Registry
	bus      *eventbus.Bus
	gw       Gateways
	log      *slog.Logger

	// paceScale stretches or collapses the scripted pacing delays.
	// Tests set it to zero.
	paceScale float64

	runs errgroup.Group
}

// New builds an orchestrator with real-time pacing.
func New(registry *store.Registry, bus *eventbus.Bus, gw Gateways, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		bus:       bus,
		gw:        gw,
		log:       log,
		paceScale: 1.0,
	}
}

// Spawn runs a phase sequence in the background. Failures are logged
// centrally; Wait blocks until every spawned run has finished.
func (o *Orchestrator) Spawn(name string, fn func(context.Context) error) {
	o.runs.Go(func() error {
		if err := fn(context.Background()); err != nil {
			o.log.Error("background phase run failed", "run", name, "error", err)
		}
		return nil
	})
}

// Wait blocks until all spawned runs complete. Call at shutdown.
func (o *Orchestrator) Wait() {
	_ = o.runs.Wait()
}

// SetPaceScale stretches or collapses the scripted pacing delays. The
// default is real time (1.0); zero removes all delays.
func (o *Orchestrator) SetPaceScale(scale float64) {
	o.paceScale = scale
}

// pause sleeps for the scripted delay, scaled and context-aware.
func (o *Orchestrator) pause(ctx context.Context, seconds float64) {
	d := time.Duration(seconds * o.paceScale * float64(time.Second))
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// =============================================================================
// Identifiers
// =============================================================================

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// NewCallID allocates a simulated service-call id.
func NewCallID() string { return "call_" + hexID(12) }

// NewConsultCallID allocates a simulated consult-call id.
func NewConsultCallID() string { return "consult_" + hexID(10) }

// NewConfirmation allocates a confirmation code in the format service
// reps read back on calls.
func NewConfirmation() string {
	return "CNF-2026-" + strings.ToUpper(hexID(4))
}

// =============================================================================
// Event helpers
// =============================================================================

func (o *Orchestrator) publishTask(task *datatypes.Task) {
	o.bus.Publish(datatypes.TaskUpdatedEvent(task))
}

// setStatus updates the task and pushes its fresh snapshot. A missing
// task is logged, not fatal; phases keep going on a best-effort basis.
func (o *Orchestrator) setStatus(id string, upd datatypes.TaskUpdate) *datatypes.Task {
	task, err := o.registry.Update(id, upd)
	if err != nil {
		o.log.Warn("task update skipped", "task_id", id, "error", err)
		return nil
	}
	o.publishTask(task)
	return task
}

// analysisEvent flattens a VoiceAnalysis into an event payload the
// dashboard reads field-by-field.
func analysisEvent(taskID, callID string, a gateway.VoiceAnalysis) datatypes.Event {
	data := structToMap(a)
	data["task_id"] = taskID
	data["call_id"] = callID
	return datatypes.Event{Type: datatypes.EventVoiceAnalysis, Data: data}
}

func structToMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// =============================================================================
// Research phase
// =============================================================================

// localResearchFallback always gives downstream phases some guidance
// text when live research is down or useless.
func localResearchFallback(company string) gateway.Research {
	return gateway.Research{
		Context: fmt.Sprintf(
			"T-Mobile 5G Home Internet is available in the area at $50/month. "+
				"AT&T Fiber offers plans starting at $55/month. "+
				"Verizon FiOS is advertising $49.99/month for new customers. "+
				"%s retention department typically offers 20-30%% discounts "+
				"to customers who mention competitor rates.",
			company),
		Sources: []string{
			"https://www.t-mobile.com/home-internet",
			"https://www.att.com/internet/fiber/",
			"https://www.verizon.com/home/fios/",
		},
	}
}

// Research runs the research phase: web search plus compliance
// knowledge lookup, merged into the task's research fields. The phase
// never fails; with every collaborator down the local fallback context
// is substituted.
func (o *Orchestrator) Research(ctx context.Context, taskID string) gateway.Research {
	defer recordPhase("research", time.Now())
	task, err := o.registry.Get(taskID)
	if err != nil {
		o.log.Warn("research phase on missing task", "task_id", taskID)
		return localResearchFallback("")
	}

	o.setStatus(taskID, datatypes.TaskUpdate{Status: datatypes.StatusPtr(datatypes.StatusResearching)})
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"task_id": taskID,
			"phase":   "research",
			"message": fmt.Sprintf("Researching %s rates and competitor pricing...", task.Company),
		},
	})

	o.pause(ctx, 1.0)

	research := o.gw.Search.ResearchForTask(ctx, task.Company, task.Action, task.ServiceType)
	o.log.Info("research returned", "task_id", taskID, "context", truncate(research.Context, 120))
	if research.Context == "" || strings.Contains(strings.ToLower(research.Context), "unavailable") {
		research = localResearchFallback(task.Company)
	}

	// Compliance context from the verified knowledge base.
	sensoContext := o.gw.Knowledge.Search(ctx, fmt.Sprintf(
		"%s %s consumer rights retention strategies",
		task.Company, strings.ReplaceAll(string(task.Action), "_", " ")), 3)
	if sensoContext != "" && !strings.Contains(strings.ToLower(sensoContext), "unavailable") {
		research.Context += " Compliance: " + truncate(sensoContext, 300)
		research.Sources = append(research.Sources, "senso:compliance_db")
	}

	o.registry.Update(taskID, datatypes.TaskUpdate{
		ResearchContext: datatypes.Str(research.Context),
		ResearchSources: research.Sources,
	})

	data := map[string]any{
		"task_id": taskID,
		"phase":   "research_complete",
		"research": map[string]any{
			"context": research.Context,
			"sources": research.Sources,
		},
		"message": "Research complete. Found competitor rates and retention strategies.",
	}
	if sensoContext != "" {
		data["senso_context"] = truncate(sensoContext, 200)
	}
	o.bus.Publish(datatypes.Event{Type: datatypes.EventTaskUpdated, Data: data})

	o.pause(ctx, 0.8)
	return research
}

// =============================================================================
// Call phase
// =============================================================================

// Call runs the simulated call phase: link the call id, signal ringing
// and connected, then stream the transcript line by line. The linkage
// step is local and must succeed; a linkage failure is the only error
// this phase returns.
func (o *Orchestrator) Call(ctx context.Context, taskID, callID string, script []Line) error {
	defer recordPhase("call", time.Now())
	task, err := o.registry.Update(taskID, datatypes.TaskUpdate{
		Status: datatypes.StatusPtr(datatypes.StatusCalling),
		CallID: datatypes.Str(callID),
	})
	if err != nil {
		return fmt.Errorf("call linkage for task %s: %w", taskID, err)
	}
	o.publishTask(task)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":      taskID,
			"call_id":      callID,
			"status":       "ringing",
			"company":      task.Company,
			"phone_number": task.PhoneNumber,
		},
	})
	o.pause(ctx, 1.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id": taskID,
			"call_id": callID,
			"status":  "in_progress",
			"message": "Call connected",
		},
	})
	o.pause(ctx, 0.8)

	for _, line := range script {
		o.pause(ctx, line.Pause)
		o.bus.Publish(datatypes.Event{
			Type: datatypes.EventTranscript,
			Data: map[string]any{
				"task_id":   taskID,
				"call_id":   callID,
				"role":      line.Role,
				"text":      line.Text,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		})

		if line.Role == "human" {
			o.emitCallEmotion(callID, line.Text)
		}
	}
	return nil
}

// emitCallEmotion annotates known-significant rep utterances with a
// synthesized sentiment event. Heuristic dashboard flair, not a
// separate analysis pass.
func (o *Orchestrator) emitCallEmotion(callID, text string) {
	lower := strings.ToLower(text)
	var data map[string]any
	switch {
	case strings.Contains(lower, "loyalty discount"):
		data = map[string]any{
			"call_id": callID, "emotion": "positive", "confidence": 0.92,
			"context": "Representative offering retention deal",
		}
	case strings.Contains(lower, "confirmation number"):
		data = map[string]any{
			"call_id": callID, "emotion": "success", "confidence": 0.97,
			"context": "Confirmation number received",
		}
	case strings.Contains(lower, "standard rate"):
		data = map[string]any{
			"call_id": callID, "emotion": "neutral", "confidence": 0.75,
			"context": "Representative explaining rate increase",
		}
	default:
		return
	}
	o.bus.Publish(datatypes.Event{Type: datatypes.EventEmotion, Data: data})
}

// =============================================================================
// Tool-call phase
// =============================================================================

// ToolCalls emits the tool-call sequence the live agent would have
// invoked: context lookup, entity extraction, graph update. Pure
// dashboard illustration; the only state change is echoing the
// confirmation number into the task.
func (o *Orchestrator) ToolCalls(ctx context.Context, taskID, callID, company, confirmation string, newRate float64) {
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"task_id":   taskID,
			"call_id":   callID,
			"tool_call": "search_task_context",
			"message":   fmt.Sprintf("Agent retrieved task context and research for %s", company),
			"arguments": map[string]any{"task_id": taskID},
		},
	})
	o.pause(ctx, 0.6)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventEntityExtracted,
		Data: map[string]any{
			"entity_type": string(datatypes.EntityPrice),
			"value":       fmt.Sprintf("$%.0f/month", newRate),
			"context":     fmt.Sprintf("New negotiated rate with %s", company),
			"call_id":     callID,
		},
	})
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventEntityExtracted,
		Data: map[string]any{
			"entity_type": string(datatypes.EntityConfirmationNumber),
			"value":       confirmation,
			"context":     fmt.Sprintf("Rate change confirmation from %s retention department", company),
			"call_id":     callID,
		},
	})

	o.registry.Update(taskID, datatypes.TaskUpdate{
		ConfirmationNumber: datatypes.Str(confirmation),
		Outcome:            datatypes.Str(fmt.Sprintf("New rate: $%.0f/month", newRate)),
	})
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"task_id":   taskID,
			"call_id":   callID,
			"tool_call": "update_neo4j",
			"message":   "Updating knowledge graph with negotiation result",
			"arguments": map[string]any{
				"action":       string(datatypes.ActionNegotiateRate),
				"service_name": company,
				"details": map[string]any{
					"new_rate":     newRate,
					"confirmation": confirmation,
				},
			},
		},
	})
	o.pause(ctx, 0.4)
}

// =============================================================================
// Resolution phase
// =============================================================================

// Resolve commits a negotiated rate change: graph update, final
// events, completed status, narrative summary, best-effort
// notification. Re-invoking it on an already-completed task is a no-op.
func (o *Orchestrator) Resolve(ctx context.Context, taskID, callID string, oldRate, newRate float64, confirmation string) map[string]any {
	task, err := o.registry.Get(taskID)
	if err != nil {
		o.log.Warn("resolution on missing task", "task_id", taskID)
		return map[string]any{"error": "task not found"}
	}
	if task.Status == datatypes.StatusCompleted {
		o.log.Info("resolution skipped, task already completed", "task_id", taskID)
		return map[string]any{"task_id": taskID, "status": "already_completed"}
	}

	graphResult := o.gw.Graph.UpdateServiceRate(ctx, task.Company, oldRate, newRate, confirmation)
	o.log.Info("graph rate update", "task_id", taskID, "status", graphResult.Status)
	o.gw.Graph.AddEntity(string(datatypes.EntityPrice),
		fmt.Sprintf("$%.0f/month", newRate),
		fmt.Sprintf("New negotiated monthly rate for %s", task.Company), callID)

	savings := oldRate - newRate
	graphData := o.gw.Graph.Data(ctx)
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventGraphUpdated,
		Data: map[string]any{
			"action":  string(datatypes.ActionNegotiateRate),
			"service": task.Company,
			"details": map[string]any{
				"old_rate":        oldRate,
				"new_rate":        newRate,
				"confirmation":    confirmation,
				"monthly_savings": savings,
				"annual_savings":  savings * 12,
			},
			"graph": graphData,
		},
	})
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":          taskID,
			"call_id":          callID,
			"status":           "ended",
			"duration_seconds": 47,
			"outcome":          "success",
		},
	})
	o.pause(ctx, 0.3)

	outcome := fmt.Sprintf(
		"Successfully negotiated %s rate from $%.0f/mo to $%.0f/mo. "+
			"Saving $%.0f/mo ($%.0f/yr). Confirmation: %s",
		task.Company, oldRate, newRate, savings, savings*12, confirmation)
	task = o.setStatus(taskID, datatypes.TaskUpdate{
		Status:  datatypes.StatusPtr(datatypes.StatusCompleted),
		Savings: datatypes.Float(savings),
		Outcome: datatypes.Str(outcome),
	})
	if task == nil {
		return map[string]any{"error": "task vanished during resolution"}
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTaskDone(string(datatypes.ActionNegotiateRate), string(datatypes.StatusCompleted), savings)
	}

	summary := Summary(datatypes.ActionNegotiateRate, task.Company, task.UserName,
		oldRate, newRate, savings, confirmation, task.ResearchContext)
	o.publishSummary(taskID, callID, summary)

	o.gw.Notifier.SendTaskSummary(ctx, task.Company, outcome, savings)

	return map[string]any{
		"task_id":             taskID,
		"company":             task.Company,
		"old_rate":            oldRate,
		"new_rate":            newRate,
		"monthly_savings":     savings,
		"annual_savings":      savings * 12,
		"confirmation_number": confirmation,
	}
}

// ResolveCancellation commits a membership cancellation. The canceled
// monthly rate counts as the full realized savings. Idempotent like
// Resolve.
func (o *Orchestrator) ResolveCancellation(ctx context.Context, taskID, callID string, monthlyRate float64, confirmation string) map[string]any {
	task, err := o.registry.Get(taskID)
	if err != nil {
		o.log.Warn("cancellation resolution on missing task", "task_id", taskID)
		return map[string]any{"error": "task not found"}
	}
	if task.Status == datatypes.StatusCompleted {
		o.log.Info("cancellation resolution skipped, task already completed", "task_id", taskID)
		return map[string]any{"task_id": taskID, "status": "already_completed"}
	}

	graphResult := o.gw.Graph.CancelService(ctx, task.UserName, task.Company, confirmation)
	o.log.Info("graph cancellation", "task_id", taskID, "status", graphResult.Status)

	graphData := o.gw.Graph.Data(ctx)
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventGraphUpdated,
		Data: map[string]any{
			"action":  string(datatypes.ActionCancelService),
			"service": task.Company,
			"details": map[string]any{
				"status":          "cancelled",
				"confirmation":    confirmation,
				"monthly_savings": monthlyRate,
				"annual_savings":  monthlyRate * 12,
			},
			"graph": graphData,
		},
	})
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":          taskID,
			"call_id":          callID,
			"status":           "ended",
			"duration_seconds": 32,
			"outcome":          "success",
		},
	})
	o.pause(ctx, 0.3)

	outcome := fmt.Sprintf(
		"Successfully cancelled %s $%.0f/mo membership. "+
			"Saving $%.0f/mo ($%.0f/yr). Confirmation: %s",
		task.Company, monthlyRate, monthlyRate, monthlyRate*12, confirmation)
	task = o.setStatus(taskID, datatypes.TaskUpdate{
		Status:             datatypes.StatusPtr(datatypes.StatusCompleted),
		Savings:            datatypes.Float(monthlyRate),
		ConfirmationNumber: datatypes.Str(confirmation),
		Outcome:            datatypes.Str(outcome),
	})
	if task == nil {
		return map[string]any{"error": "task vanished during resolution"}
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTaskDone(string(datatypes.ActionCancelService), string(datatypes.StatusCompleted), monthlyRate)
	}

	summary := Summary(datatypes.ActionCancelService, task.Company, task.UserName,
		monthlyRate, 0, monthlyRate, confirmation, task.ResearchContext)
	o.publishSummary(taskID, callID, summary)

	o.gw.Notifier.SendTaskSummary(ctx, task.Company, outcome, monthlyRate)

	return map[string]any{
		"task_id":             taskID,
		"company":             task.Company,
		"action":              string(datatypes.ActionCancelService),
		"monthly_savings":     monthlyRate,
		"annual_savings":      monthlyRate * 12,
		"confirmation_number": confirmation,
	}
}

func (o *Orchestrator) publishSummary(taskID, callID string, summary gateway.AgentSummary) {
	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallSummary,
		Data: map[string]any{
			"task_id":    taskID,
			"call_id":    callID,
			"narrative":  summary.Narrative,
			"key_points": summary.KeyPoints,
		},
	})
}

// =============================================================================
// Full pipeline for an existing task
// =============================================================================

// Demo rates assumed when a triggered task carries no rate fields.
const (
	defaultCurrentRate = 85.0
	defaultTargetRate  = 65.0
)

// RunTask drives an already-created task through the full phase
// sequence: research, simulated call, tool calls, resolution, post-call
// analysis. Rates missing from the task fall back to the demo defaults.
// The only failure mode is call linkage; everything else degrades.
func (o *Orchestrator) RunTask(ctx context.Context, taskID string) error {
	// Background runs have no inbound request span; start their own.
	ctx, span := otel.Tracer("phases").Start(ctx, "RunTask")
	span.SetAttributes(attribute.String("task.id", taskID))
	defer span.End()

	task, err := o.registry.Get(taskID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	currentRate := defaultCurrentRate
	if task.CurrentRate != nil {
		currentRate = *task.CurrentRate
	}
	targetRate := defaultTargetRate
	if task.TargetRate != nil {
		targetRate = *task.TargetRate
	}

	callID := NewCallID()
	confirmation := NewConfirmation()

	research := o.Research(ctx, taskID)

	var script []Line
	if task.Action == datatypes.ActionCancelService {
		serviceType := task.ServiceType
		if serviceType == "" {
			serviceType = "membership"
		}
		script = cancellationScript(task.UserName, task.Company, serviceType, confirmation)
	} else {
		competitorLine := research.Context
		if competitorLine == "" {
			competitorLine = "Competitors offer lower rates in this area."
		}
		script = negotiationScript(task.UserName, currentRate, targetRate,
			truncate(competitorLine, 200), confirmation)
	}

	if err := o.Call(ctx, taskID, callID, script); err != nil {
		span.RecordError(err)
		return err
	}
	o.ToolCalls(ctx, taskID, callID, task.Company, confirmation, targetRate)

	if task.Action == datatypes.ActionCancelService {
		o.ResolveCancellation(ctx, taskID, callID, currentRate, confirmation)
	} else {
		o.Resolve(ctx, taskID, callID, currentRate, targetRate, confirmation)
	}

	transcript := scriptTurns(script)
	analysis := o.gw.Analyzer.AnalyzeCall(ctx, transcript,
		gateway.CallTypeServiceProvider, task.Company, "")
	o.bus.Publish(analysisEvent(taskID, callID, analysis))

	if completed, err := o.registry.Get(taskID); err == nil {
		summary := Summary(task.Action, completed.Company, completed.UserName,
			currentRate, targetRate, savingsFor(task.Action, currentRate, targetRate),
			confirmation, completed.ResearchContext)
		o.gw.Notifier.SendCallSummary(completed, transcript, "", &summary, nil)
	}
	return nil
}

// =============================================================================
// Full demo run
// =============================================================================

// Demo agent line for the live handoff.
const (
	demoAgentPhone        = "+12086751229"
	demoAgentPhoneDisplay = "(208) 675-1229"
)

// RunFullDemo plays the short user consult, runs research, then hands
// off to a live call by announcing the agent phone number.
func (o *Orchestrator) RunFullDemo(ctx context.Context, taskID string) error {
	task, err := o.registry.Get(taskID)
	if err != nil {
		return err
	}
	consultCallID := NewConsultCallID()

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":      taskID,
			"call_id":      consultCallID,
			"status":       "ringing",
			"company":      "Neel (User Consult)",
			"phone_number": "+15550000001",
			"call_type":    gateway.CallTypeUserConsult,
		},
	})
	o.pause(ctx, 1.2)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":   taskID,
			"call_id":   consultCallID,
			"status":    "in_progress",
			"call_type": gateway.CallTypeUserConsult,
			"message":   "User consult call connected",
		},
	})
	o.pause(ctx, 0.6)

	for _, line := range demoConsultScript {
		o.pause(ctx, line.Pause)
		o.bus.Publish(datatypes.Event{
			Type: datatypes.EventTranscript,
			Data: map[string]any{
				"task_id":   taskID,
				"call_id":   consultCallID,
				"role":      line.Role,
				"text":      line.Text,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"call_type": gateway.CallTypeUserConsult,
			},
		})
	}
	o.pause(ctx, 0.5)

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":          taskID,
			"call_id":          consultCallID,
			"status":           "ended",
			"call_type":        gateway.CallTypeUserConsult,
			"duration_seconds": 28,
			"message":          fmt.Sprintf("User confirmed: negotiate %s rate", task.Company),
		},
	})
	o.pause(ctx, 1.0)

	o.Research(ctx, taskID)

	callID := NewCallID()
	if _, err := o.registry.Update(taskID, datatypes.TaskUpdate{
		Status: datatypes.StatusPtr(datatypes.StatusCalling),
		CallID: datatypes.Str(callID),
	}); err != nil {
		return fmt.Errorf("call linkage for task %s: %w", taskID, err)
	}
	refreshed, _ := o.registry.Get(taskID)
	if refreshed != nil {
		o.publishTask(refreshed)
	}

	o.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"task_id":             taskID,
			"call_id":             callID,
			"status":              "awaiting_call",
			"company":             task.Company,
			"agent_phone":         demoAgentPhone,
			"agent_phone_display": demoAgentPhoneDisplay,
			"message": fmt.Sprintf("Call %s, you play %s, the agent negotiates",
				demoAgentPhoneDisplay, task.Company),
		},
	})
	return nil
}

// recordPhase observes a phase's wall time when metrics are live.
func recordPhase(phase string, start time.Time) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordPhaseDuration(phase, time.Since(start).Seconds())
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
