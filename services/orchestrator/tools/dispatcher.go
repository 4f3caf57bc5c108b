// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools executes the voice agent's tool invocations.
//
// The calling platform requires a success-shaped response for every
// request: each result must be a single-line string and the endpoint
// must always answer HTTP 200. Nothing in this package returns an
// error past the dispatch boundary; failures become explanatory result
// strings.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// Dispatcher routes tool invocations to their handlers.
type Dispatcher struct {
	registry  *store.Registry
	bus       *eventbus.Bus
	graph     *gateway.Graph
	search    *gateway.Searcher
	extractor *gateway.Extractor
	notifier  *gateway.Notifier
	log       *slog.Logger
}

// New builds a dispatcher.
func New(registry *store.Registry, bus *eventbus.Bus, graph *gateway.Graph, search *gateway.Searcher, extractor *gateway.Extractor, notifier *gateway.Notifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		bus:       bus,
		graph:     graph,
		search:    search,
		extractor: extractor,
		notifier:  notifier,
		log:       log,
	}
}

// Handle executes a batch of tool invocations and returns one result
// per invocation, in order.
func (d *Dispatcher) Handle(ctx context.Context, req datatypes.ToolCallRequest) datatypes.ToolCallResponse {
	callID := req.Message.Call.ID
	if callID == "" {
		callID = "unknown"
	}

	results := make([]datatypes.ToolCallResult, 0, len(req.Message.ToolCallList))
	for _, tc := range req.Message.ToolCallList {
		name := tc.ToolName()
		args := tc.Args()
		d.log.Info("tool call", "tool", name, "id", tc.ID, "call_id", callID)

		// Tool call badge for the live feed.
		shown := make(map[string]any, len(args))
		for k, v := range args {
			shown[k] = truncate(fmt.Sprint(v), 100)
		}
		d.bus.Publish(datatypes.Event{
			Type: datatypes.EventToolCall,
			Data: map[string]any{
				"call_id":   callID,
				"tool":      name,
				"arguments": shown,
			},
		})

		results = append(results, datatypes.ToolCallResult{
			Name:       name,
			ToolCallID: tc.ID,
			Result:     singleLine(d.Dispatch(ctx, name, args, callID)),
		})
	}
	return datatypes.ToolCallResponse{Results: results}
}

// Dispatch routes one tool invocation by name. Unknown names get an
// explanatory result, never an error.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, callID string) string {
	switch name {
	case "search_task_context":
		return d.searchTaskContext(args, callID)
	case "tavily_search":
		return d.tavilySearch(ctx, args)
	case "extract_entities":
		return d.extractEntities(args, callID)
	case "update_neo4j":
		return d.updateGraph(ctx, args)
	case "end_task":
		return d.endTask(ctx, args, callID)
	case "get_subscription_analysis":
		return d.subscriptionAnalysis(ctx)
	case "confirm_action":
		return d.confirmAction(ctx, args, callID)
	case "calculate_cost_per_use":
		return d.costPerUse(ctx, args)
	default:
		return fmt.Sprintf("Unknown tool: %s", name)
	}
}

// =============================================================================
// Service-provider call tools
// =============================================================================

// searchTaskContext returns the task briefing so the agent knows what
// to do. Fast path, no external calls.
func (d *Dispatcher) searchTaskContext(args map[string]any, callID string) string {
	task, err := d.registry.Get(argString(args, "task_id"))
	if err != nil {
		task = d.fallbackTask(callID)
	}
	if task == nil {
		return "No task found. Ask the customer how you can help them."
	}

	if _, err := d.registry.Update(task.ID, datatypes.TaskUpdate{CallID: datatypes.Str(callID)}); err != nil {
		d.log.Warn("call linkage rejected", "task_id", task.ID, "call_id", callID, "error", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s for %s. Client: %s. ",
		task.Action, task.Company, task.UserName)
	if task.CurrentRate != nil {
		fmt.Fprintf(&b, "Current rate: $%g/month. ", *task.CurrentRate)
	}
	if task.TargetRate != nil {
		fmt.Fprintf(&b, "Target rate: $%g/month. ", *task.TargetRate)
	}
	if task.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s ", task.Notes)
	}
	if task.ResearchContext != "" {
		fmt.Fprintf(&b, "Research: %s ", task.ResearchContext)
	}
	return b.String()
}

// fallbackTask picks the task for a call that arrived without a usable
// task id: the task linked to the call, else one currently calling,
// else the first task at all.
func (d *Dispatcher) fallbackTask(callID string) *datatypes.Task {
	if task, err := d.registry.FindByCallID(callID); err == nil {
		return task
	}
	tasks := d.registry.List()
	for _, t := range tasks {
		if t.Status == datatypes.StatusCalling {
			return t
		}
	}
	if len(tasks) > 0 {
		return tasks[0]
	}
	return nil
}

func (d *Dispatcher) tavilySearch(ctx context.Context, args map[string]any) string {
	query := argString(args, "query")
	if query == "" {
		return "No search query provided."
	}
	return d.search.Search(ctx, query)
}

func (d *Dispatcher) extractEntities(args map[string]any, callID string) string {
	entityType := argString(args, "entity_type")
	if entityType == "" {
		entityType = string(datatypes.EntityOther)
	}
	value := argString(args, "value")
	context_ := argString(args, "context")

	var entities []datatypes.ExtractedEntity
	if value != "" {
		entities = append(entities, datatypes.ExtractedEntity{
			EntityType: datatypes.EntityType(entityType),
			Value:      value,
			Context:    context_,
			CallID:     callID,
		})
	}
	// The extractor's pattern pass over the surrounding text picks up
	// entities the agent did not name explicitly.
	for _, ent := range d.extractor.ExtractEntities(context_, callID) {
		if ent.Value != value {
			entities = append(entities, ent)
		}
	}
	if len(entities) == 0 {
		return "No value provided."
	}

	for _, ent := range entities {
		d.graph.AddEntity(string(ent.EntityType), ent.Value, ent.Context, callID)

		if task, err := d.registry.FindByCallID(callID); err == nil {
			switch ent.EntityType {
			case datatypes.EntityConfirmationNumber:
				d.registry.Update(task.ID, datatypes.TaskUpdate{ConfirmationNumber: datatypes.Str(ent.Value)})
			case datatypes.EntityPrice:
				d.registry.Update(task.ID, datatypes.TaskUpdate{Outcome: datatypes.Str("New rate: " + ent.Value)})
			}
		}

		d.bus.Publish(datatypes.Event{
			Type: datatypes.EventEntityExtracted,
			Data: map[string]any{
				"entity_type": string(ent.EntityType),
				"value":       ent.Value,
				"context":     ent.Context,
				"call_id":     callID,
			},
		})
	}

	if value == "" {
		return fmt.Sprintf("Extracted %d entities from transcript.", len(entities))
	}
	return fmt.Sprintf("Logged %s: %s", entityType, value)
}

func (d *Dispatcher) updateGraph(ctx context.Context, args map[string]any) string {
	action := argString(args, "action")
	serviceName := argString(args, "service_name")
	details := argDetails(args, "details")

	var result gateway.GraphResult
	switch action {
	case string(datatypes.ActionCancelService):
		result = d.graph.CancelService(ctx, "Neel", serviceName, detailString(details, "confirmation"))
	case string(datatypes.ActionNegotiateRate):
		result = d.graph.UpdateServiceRate(ctx, serviceName,
			detailFloat(details, "old_rate"), detailFloat(details, "new_rate"),
			detailString(details, "confirmation"))
	default:
		result = d.graph.UpdateStatus(ctx, serviceName, fmt.Sprint(details))
	}

	d.bus.Publish(datatypes.Event{
		Type: datatypes.EventGraphUpdated,
		Data: map[string]any{
			"action":  action,
			"service": serviceName,
			"details": details,
		},
	})

	raw, _ := json.Marshal(result)
	return fmt.Sprintf("Graph updated: %s for %s. %s", action, serviceName, raw)
}

// endTaskStatus normalizes the agent's reported status to a terminal
// task status.
func endTaskStatus(status string) datatypes.TaskStatus {
	switch status {
	case "failed":
		return datatypes.StatusFailed
	case "needs_followup", "transferred":
		return datatypes.StatusNeedsFollowup
	default:
		return datatypes.StatusCompleted
	}
}

func (d *Dispatcher) endTask(ctx context.Context, args map[string]any, callID string) string {
	status := argString(args, "status")
	if status == "" {
		status = "completed"
	}
	summary := argString(args, "summary")

	if task, err := d.registry.FindByCallID(callID); err == nil {
		updated, err := d.registry.Update(task.ID, datatypes.TaskUpdate{
			Status:  datatypes.StatusPtr(endTaskStatus(status)),
			Outcome: datatypes.Str(summary),
		})
		if err == nil {
			d.bus.Publish(datatypes.TaskUpdatedEvent(updated))
			savings := 0.0
			if updated.Savings != nil {
				savings = *updated.Savings
			}
			d.notifier.SendTaskSummary(ctx, updated.Company, summary, savings)
		}
	}
	return fmt.Sprintf("Task marked as %s. %s", status, summary)
}

// =============================================================================
// User consult tools
// =============================================================================

// subscriptionAnalysis returns the full billing context so the agent
// can present findings to the user.
func (d *Dispatcher) subscriptionAnalysis(ctx context.Context) string {
	sctx := gateway.BuildSubscriptionContext(ctx, d.graph, "Neel")

	lines := []string{sctx.SummaryText, "", "DETAILS:"}
	for _, s := range sctx.Subscriptions {
		line := fmt.Sprintf("%s: $%.0f/mo", s.Service, s.MonthlyCost)
		if s.PreviousCost != nil {
			line += fmt.Sprintf(" (was $%.0f)", *s.PreviousCost)
		}
		if s.Anomaly != "" {
			line += ", " + s.Anomaly
		}
		if s.CompetitorNote != "" {
			line += " | Competitors: " + s.CompetitorNote
		}
		if s.DayPassCost != nil {
			line += fmt.Sprintf(" | Day pass: $%.0f", *s.DayPassCost)
		}
		lines = append(lines, line)
	}
	lines = append(lines, fmt.Sprintf("Total potential savings: $%.0f/mo", sctx.TotalPotentialSavings))
	return strings.Join(lines, " | ")
}

func (d *Dispatcher) confirmAction(ctx context.Context, args map[string]any, callID string) string {
	service := argString(args, "service")
	action := argString(args, "action")
	reason := argString(args, "reason")
	monthlySavings := argFloat(args, "monthly_savings")

	if service == "" || action == "" {
		return "Missing service or action, cannot confirm."
	}

	phone := "+18005551234"
	if sub, ok := gateway.SubscriptionByService(ctx, d.graph, service); ok {
		phone = sub.PhoneNumber
	}

	d.registry.AddConfirmedAction(datatypes.ConfirmedAction{
		Service:        service,
		Action:         datatypes.TaskAction(action),
		Reason:         reason,
		MonthlySavings: monthlySavings,
		PhoneNumber:    phone,
	})

	spaced := strings.ReplaceAll(action, "_", " ")
	d.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"confirmed_action": map[string]any{
				"service":         service,
				"action":          action,
				"reason":          reason,
				"monthly_savings": monthlySavings,
			},
			"call_id": callID,
			"message": fmt.Sprintf("User confirmed: %s %s, saves $%.0f/mo", spaced, service, monthlySavings),
		},
	})

	d.log.Info("confirmed action stored", "action", action, "service", service, "savings", monthlySavings)
	return fmt.Sprintf("Confirmed: will %s %s. Saves $%.0f/mo. I'll take care of this right after our call.",
		spaced, service, monthlySavings)
}

func (d *Dispatcher) costPerUse(ctx context.Context, args map[string]any) string {
	service := argString(args, "service")
	if service == "" {
		service = "service"
	}
	monthlyCost := argFloat(args, "monthly_cost")
	visits := argFloat(args, "visits_per_month")

	if visits <= 0 {
		return fmt.Sprintf("%s: With 0 visits, you're paying $%.0f/mo for nothing.", service, monthlyCost)
	}
	costPerVisit := monthlyCost / visits

	result := fmt.Sprintf("%s: $%.0f/mo / %.0f visits = $%.2f/visit.", service, monthlyCost, visits, costPerVisit)
	if sub, ok := gateway.SubscriptionByService(ctx, d.graph, service); ok && sub.DayPassCost != nil {
		dayPass := *sub.DayPassCost
		if costPerVisit > dayPass {
			result += fmt.Sprintf(" Day pass is $%.0f, you're overpaying by $%.2f/visit. Not worth the subscription.",
				dayPass, costPerVisit-dayPass)
		} else {
			result += fmt.Sprintf(" Day pass is $%.0f, the subscription is actually saving you $%.2f/visit. Worth keeping.",
				dayPass, dayPass-costPerVisit)
		}
	}
	return result
}

// =============================================================================
// Argument coercion
// =============================================================================

func argString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// argFloat tolerates numbers delivered as JSON numbers or strings.
func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// argDetails tolerates a detail bag delivered as an object or as a
// JSON-encoded string of one.
func argDetails(args map[string]any, key string) map[string]any {
	switch v := args[key].(type) {
	case map[string]any:
		return v
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return map[string]any{"raw": v}
		}
		return m
	default:
		return map[string]any{}
	}
}

func detailString(details map[string]any, key string) string {
	if s, ok := details[key].(string); ok {
		return s
	}
	return ""
}

func detailFloat(details map[string]any, key string) float64 {
	return argFloat(details, key)
}

func singleLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "\r", "")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
