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

// EventType enumerates the live dashboard event kinds.
type EventType string

const (
	EventTranscript       EventType = "transcript"
	EventCallStatus       EventType = "call_status"
	EventEntityExtracted  EventType = "entity_extracted"
	EventGraphUpdated     EventType = "graph_updated"
	EventTaskUpdated      EventType = "task_updated"
	EventEmotion          EventType = "emotion"
	EventCallSummary      EventType = "call_summary"
	EventVoiceAnalysis    EventType = "voice_analysis"
	EventToolCall         EventType = "tool_call"
	EventModulateAnalysis EventType = "modulate_analysis"
	EventPIIDetected      EventType = "pii_detected"
	EventBillAnalyzed     EventType = "bill_analyzed"
)

// Event is an immutable notification pushed to live subscribers.
//
// Data is an opaque structured payload; it is serialized per subscriber
// and never mutated after publication.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// TaskUpdatedEvent wraps a task snapshot in a task_updated event.
func TaskUpdatedEvent(task *Task) Event {
	return Event{
		Type: EventTaskUpdated,
		Data: map[string]any{
			"id":                  task.ID,
			"company":             task.Company,
			"action":              task.Action,
			"phone_number":        task.PhoneNumber,
			"service_type":        task.ServiceType,
			"current_rate":        task.CurrentRate,
			"target_rate":         task.TargetRate,
			"user_name":           task.UserName,
			"notes":               task.Notes,
			"status":              task.Status,
			"research_context":    task.ResearchContext,
			"research_sources":    task.ResearchSources,
			"call_id":             task.CallID,
			"outcome":             task.Outcome,
			"savings":             task.Savings,
			"confirmation_number": task.ConfirmationNumber,
		},
	}
}

// EntityType enumerates the entity kinds the agent can log mid-call.
type EntityType string

const (
	EntityConfirmationNumber EntityType = "confirmation_number"
	EntityPrice              EntityType = "price"
	EntityDate               EntityType = "date"
	EntityAccountNumber      EntityType = "account_number"
	EntityPersonName         EntityType = "person_name"
	EntityPhoneNumber        EntityType = "phone_number"
	EntityOther              EntityType = "other"

	// Financial entity types surfaced by post-call extraction.
	EntityCompanyName     EntityType = "company_name"
	EntityContractTerm    EntityType = "contract_term"
	EntityPromotionalRate EntityType = "promotional_rate"
	EntityPenaltyFee      EntityType = "penalty_fee"
	EntityDollarAmount    EntityType = "dollar_amount"
)

// ExtractedEntity is a typed value logged against the graph mid-call.
type ExtractedEntity struct {
	EntityType EntityType `json:"entity_type"`
	Value      string     `json:"value"`
	Context    string     `json:"context"`
	CallID     string     `json:"call_id,omitempty"`
}
