// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package webhook ingests asynchronous server messages from the voice
// platform.
//
// The platform requires HTTP 200 on every message. Nothing below this
// boundary is allowed to raise past it: every enrichment step after
// the task outcome has been applied is best-effort and may silently
// degrade.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// Ingress processes voice platform server messages.
type Ingress struct {
	registry  *store.Registry
	bus       *eventbus.Bus
	orch      *phases.Orchestrator
	analyzer  *gateway.Analyzer
	extractor *gateway.Extractor
	callLog   *gateway.CallLog
	notifier  *gateway.Notifier
	log       *slog.Logger
}

// New builds a webhook ingress.
func New(registry *store.Registry, bus *eventbus.Bus, orch *phases.Orchestrator, analyzer *gateway.Analyzer, extractor *gateway.Extractor, callLog *gateway.CallLog, notifier *gateway.Notifier, log *slog.Logger) *Ingress {
	return &Ingress{
		registry:  registry,
		bus:       bus,
		orch:      orch,
		analyzer:  analyzer,
		extractor: extractor,
		callLog:   callLog,
		notifier:  notifier,
		log:       log,
	}
}

// Handle dispatches one server message by type. It never fails; the
// response body is always {"status": "ok"}.
func (i *Ingress) Handle(ctx context.Context, req datatypes.WebhookRequest) map[string]any {
	msg := req.Message
	callID := msg.Call.ID
	if callID == "" {
		callID = "unknown"
	}
	i.log.Info("webhook", "type", msg.Type, "call_id", callID)

	switch msg.Type {
	case "end-of-call-report":
		i.handleEndOfCall(ctx, msg, callID)
	case "status-update":
		i.handleStatusUpdate(msg, callID)
	case "transcript":
		i.handleTranscript(msg, callID)
	case "conversation-update":
		// Tracked internally only; live display uses transcript events.
	}
	return map[string]any{"status": "ok"}
}

// =============================================================================
// Status updates and live transcripts
// =============================================================================

func (i *Ingress) handleStatusUpdate(msg datatypes.WebhookMessage, callID string) {
	i.log.Info("call status", "call_id", callID, "status", msg.Status)

	if msg.Status == "in-progress" {
		if task, err := i.registry.FindByCallID(callID); err == nil {
			if updated, err := i.registry.Update(task.ID, datatypes.TaskUpdate{
				Status: datatypes.StatusPtr(datatypes.StatusCalling),
			}); err == nil {
				i.bus.Publish(datatypes.TaskUpdatedEvent(updated))
			}
		}
	}

	i.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{"call_id": callID, "status": msg.Status},
	})
}

// handleTranscript pushes finalized transcript segments only. Partials
// are dropped so subscribers are not flooded with redundant fragments.
func (i *Ingress) handleTranscript(msg datatypes.WebhookMessage, callID string) {
	if msg.TranscriptType != "final" || msg.Transcript == "" {
		return
	}

	role := "rep"
	if msg.Role == "assistant" || msg.Role == "bot" {
		role = "agent"
	}

	i.bus.Publish(datatypes.Event{
		Type: datatypes.EventTranscript,
		Data: map[string]any{
			"call_id": callID,
			"role":    role,
			"text":    msg.Transcript,
		},
	})
}

// =============================================================================
// End of call
// =============================================================================

func (i *Ingress) handleEndOfCall(ctx context.Context, msg datatypes.WebhookMessage, callID string) {
	i.log.Info("call ended", "call_id", callID, "reason", msg.EndedReason)

	// A consult call is recognized by the task kind linked to the call.
	if task, err := i.registry.FindByCallID(callID); err == nil && task.Action == datatypes.ActionConsultUser {
		i.analyzeConsultVoice(ctx, msg, callID)
		i.finishConsult(task, callID)
		i.bus.Publish(datatypes.Event{
			Type: datatypes.EventCallStatus,
			Data: map[string]any{
				"call_id":      callID,
				"status":       "ended",
				"ended_reason": msg.EndedReason,
				"call_type":    gateway.CallTypeUserConsult,
			},
		})
		return
	}

	i.finishServiceCall(ctx, msg, callID)
}

// analyzeConsultVoice runs voice analysis over the consult
// conversation and pushes the result. Best-effort.
func (i *Ingress) analyzeConsultVoice(ctx context.Context, msg datatypes.WebhookMessage, callID string) {
	var transcript []gateway.TranscriptTurn
	for _, turn := range msg.Conversation {
		if turn.Role == "system" || turn.Role == "tool" || turn.Content == "" {
			continue
		}
		transcript = append(transcript, gateway.TranscriptTurn{Role: turn.Role, Text: turn.Content})
	}

	analysis := i.analyzer.AnalyzeCall(ctx, transcript, gateway.CallTypeUserConsult, "", msg.Recording())
	data := structToMap(analysis)
	data["call_id"] = callID
	i.bus.Publish(datatypes.Event{Type: datatypes.EventVoiceAnalysis, Data: data})
	i.log.Info("consult voice analysis pushed",
		"emotion", analysis.Emotion, "stress", analysis.StressLevel, "certainty", analysis.CertaintyScore)
}

// finishConsult marks the consult task complete, then drains the
// confirmed actions and dispatches one independent phase run each.
func (i *Ingress) finishConsult(task *datatypes.Task, callID string) {
	confirmed := i.registry.DrainConfirmedActions()

	if updated, err := i.registry.Update(task.ID, datatypes.TaskUpdate{
		Status:  datatypes.StatusPtr(datatypes.StatusCompleted),
		Outcome: datatypes.Str(fmt.Sprintf("User confirmed %d action(s)", len(confirmed))),
	}); err == nil {
		i.bus.Publish(datatypes.TaskUpdatedEvent(updated))
	}

	if len(confirmed) == 0 {
		i.log.Info("consult ended with no confirmed actions", "call_id", callID)
		i.bus.Publish(datatypes.Event{
			Type: datatypes.EventTaskUpdated,
			Data: map[string]any{
				"message": "Consult complete, no actions confirmed by user.",
				"call_id": callID,
			},
		})
		return
	}

	i.log.Info("consult confirmed actions, dispatching", "count", len(confirmed))
	i.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{
			"message": fmt.Sprintf(
				"User confirmed %d action(s). Dispatching service calls now...", len(confirmed)),
			"confirmed_count": len(confirmed),
			"call_id":         callID,
		},
	})

	userName := task.UserName
	i.orch.Spawn("consult-dispatch:"+callID, func(ctx context.Context) error {
		return i.orch.DispatchConfirmedActions(ctx, confirmed, userName, nil)
	})
}

// finishServiceCall applies the structured outcome to the linked task,
// then runs the best-effort enrichment chain: summary email, durable
// call log, voice analysis, transcript re-extraction. Each enrichment
// may fail without affecting the already-applied outcome.
func (i *Ingress) finishServiceCall(ctx context.Context, msg datatypes.WebhookMessage, callID string) {
	sd := msg.Analysis.StructuredData

	if task, err := i.registry.FindByCallID(callID); err == nil {
		status := datatypes.StatusNeedsFollowup
		if sd.TaskCompleted {
			status = datatypes.StatusCompleted
		}
		outcome := sd.Outcome
		if outcome == "" {
			outcome = msg.Summary
		}
		if outcome == "" {
			outcome = "Call ended"
		}
		confirmation := sd.ConfirmationNumber
		if confirmation == "" {
			confirmation = task.ConfirmationNumber
		}

		updated, err := i.registry.Update(task.ID, datatypes.TaskUpdate{
			Status:             datatypes.StatusPtr(status),
			Outcome:            datatypes.Str(outcome),
			Savings:            datatypes.Float(sd.SavingsAmount),
			ConfirmationNumber: datatypes.Str(confirmation),
		})
		if err == nil {
			i.bus.Publish(datatypes.TaskUpdatedEvent(updated))
			if m := observability.DefaultMetrics; m != nil {
				m.RecordTaskDone(string(updated.Action), string(status), sd.SavingsAmount)
			}
			i.notifier.SendCallSummary(updated, nil, msg.Transcript, nil, nil)
		}
	}

	i.logCall(ctx, msg, callID)

	i.bus.Publish(datatypes.Event{
		Type: datatypes.EventCallStatus,
		Data: map[string]any{
			"call_id":          callID,
			"status":           "ended",
			"ended_reason":     msg.EndedReason,
			"summary":          msg.Summary,
			"structured_data":  structToMap(sd),
			"transcript":       truncate(msg.Transcript, 2000),
			"duration_seconds": msg.Duration,
		},
	})

	i.analyzeRecording(ctx, msg, callID)
	i.reExtract(ctx, msg.Transcript, callID)
}

func (i *Ingress) logCall(ctx context.Context, msg datatypes.WebhookMessage, callID string) {
	rec := gateway.CallRecord{
		CallID:          callID,
		Outcome:         msg.Analysis.StructuredData.Outcome,
		Savings:         msg.Analysis.StructuredData.SavingsAmount,
		Confirmation:    msg.Analysis.StructuredData.ConfirmationNumber,
		Transcript:      truncate(msg.Transcript, 5000),
		DurationSeconds: msg.Duration,
	}
	if rec.Outcome == "" {
		rec.Outcome = msg.Summary
	}
	if task, err := i.registry.FindByCallID(callID); err == nil {
		rec.TaskID = task.ID
		rec.Company = task.Company
		rec.Action = string(task.Action)
	}
	i.callLog.InsertCallLog(ctx, rec)
}

// analyzeRecording runs the per-utterance batch analysis over the call
// recording and pushes the derived reports. Skipped when no recording
// or no analyzer is available.
func (i *Ingress) analyzeRecording(ctx context.Context, msg datatypes.WebhookMessage, callID string) {
	recording := msg.Recording()
	if recording == "" || !i.analyzer.Available() {
		return
	}

	result := i.analyzer.AnalyzeRecordingURL(ctx, recording)
	if result.Error != "" || len(result.Utterances) == 0 {
		return
	}

	timeline := gateway.EmotionTimeline(result)
	if len(timeline) > 50 {
		timeline = timeline[:50]
	}
	safety := gateway.GenerateSafetyReport(result)

	i.bus.Publish(datatypes.Event{
		Type: datatypes.EventModulateAnalysis,
		Data: map[string]any{
			"call_id":           callID,
			"source":            "modulate_velma2",
			"emotion_timeline":  timeline,
			"safety_report":     structToMap(safety),
			"agent_performance": agentPerformance(safety, msg.Duration),
		},
	})

	if safety.PIIDetected > 0 {
		i.bus.Publish(datatypes.Event{
			Type: datatypes.EventPIIDetected,
			Data: map[string]any{
				"call_id": callID,
				"count":   safety.PIIDetected,
				"items":   safety.PIIItems,
			},
		})
	}

	i.log.Info("post-call analysis complete",
		"safety", safety.SafetyScore,
		"hostile", safety.RepHostileUtterances,
		"pii", safety.PIIDetected)
}

// reExtract re-runs structured extraction over the full transcript and
// folds any firmer values back into the task.
func (i *Ingress) reExtract(ctx context.Context, transcript, callID string) {
	if transcript == "" || !i.extractor.Available() {
		return
	}
	negotiation, ok := i.extractor.ExtractNegotiationResult(ctx, transcript)
	if !ok || negotiation.Outcome == "" {
		return
	}

	task, err := i.registry.FindByCallID(callID)
	if err != nil {
		return
	}

	upd := datatypes.TaskUpdate{}
	if negotiation.Confirmation != "" {
		upd.ConfirmationNumber = datatypes.Str(negotiation.Confirmation)
	}
	outcome := "Extracted: " + negotiation.Outcome
	if negotiation.NewRate != "" {
		outcome += ", new rate " + negotiation.NewRate
	}
	upd.Outcome = datatypes.Str(outcome)

	if _, err := i.registry.Update(task.ID, upd); err != nil {
		i.log.Warn("post-call extraction update failed", "task_id", task.ID, "error", err)
	}
	i.log.Info("post-call extraction applied", "task_id", task.ID, "outcome", negotiation.Outcome)
}

// =============================================================================
// Agent performance report
// =============================================================================

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

var (
	positivePerfEmotions = []string{"Happy", "Confident", "Interested", "Hopeful", "Relieved", "Amused"}
	negativePerfEmotions = []string{"Frustrated", "Angry", "Contemptuous", "Stressed", "Anxious", "Disappointed"}
	neutralPerfEmotions  = []string{"Neutral", "Calm", "Bored", "Confused"}
)

func sumCounts(counts map[string]int, keys []string) int {
	total := 0
	for _, k := range keys {
		total += counts[k]
	}
	return total
}

// agentPerformance turns a safety report into the graded performance
// card shown on the dashboard.
func agentPerformance(safety gateway.SafetyReport, duration float64) map[string]any {
	profScore := safety.SafetyScore - float64(safety.RepHostileUtterances*15)
	if profScore < 0 {
		profScore = 0
	}
	if profScore > 100 {
		profScore = 100
	}

	pii := safety.PIIDetected
	var privacyGrade, privacyNote string
	switch {
	case pii == 0:
		privacyGrade, privacyNote = "A", "No sensitive data exposed"
	case pii <= 2:
		plural := ""
		if pii > 1 {
			plural = "s"
		}
		privacyGrade = "B"
		privacyNote = fmt.Sprintf("%d item%s detected, auto-redacted", pii, plural)
	case pii <= 4:
		privacyGrade = "C"
		privacyNote = fmt.Sprintf("%d items flagged, review recommended", pii)
	default:
		privacyGrade = "D"
		privacyNote = fmt.Sprintf("%d items exposed, needs attention", pii)
	}

	positive := sumCounts(safety.RepEmotionSummary, positivePerfEmotions)
	negative := sumCounts(safety.RepEmotionSummary, negativePerfEmotions)
	neutral := sumCounts(safety.RepEmotionSummary, neutralPerfEmotions)

	repMood, repIcon := "Neutral", "neutral"
	switch {
	case positive > negative+neutral:
		repMood, repIcon = "Cooperative", "positive"
	case negative > positive:
		repMood, repIcon = "Resistant", "negative"
	}

	efficiency, efficiencyNote := "N/A", ""
	if duration > 0 {
		switch {
		case duration < 120:
			efficiency = "Fast"
			efficiencyNote = fmt.Sprintf("%ds, quick resolution", int(duration))
		case duration < 300:
			efficiency = "Normal"
			efficiencyNote = fmt.Sprintf("%dm %ds", int(duration)/60, int(duration)%60)
		default:
			efficiency = "Long"
			efficiencyNote = fmt.Sprintf("%dm %ds, consider optimization", int(duration)/60, int(duration)%60)
		}
	}

	return map[string]any{
		"professionalism": map[string]any{"grade": grade(profScore), "score": profScore},
		"privacy":         map[string]any{"grade": privacyGrade, "note": privacyNote, "pii_count": pii},
		"rep_sentiment":   map[string]any{"mood": repMood, "icon": repIcon, "breakdown": safety.RepEmotionSummary},
		"efficiency":      map[string]any{"rating": efficiency, "note": efficiencyNote, "duration": duration},
		"total_exchanges": safety.TotalUtterances,
		"summary_note":    safety.NegotiationDynamics,
	}
}

// =============================================================================
// Helpers
// =============================================================================

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

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
