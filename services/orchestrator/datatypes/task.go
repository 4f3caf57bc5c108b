// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the task model: one Task per outreach effort
// (negotiate a rate, cancel a subscription, consult the user). For the
// live event types see events.go; for voice-platform wire shapes see
// vapi.go.
package datatypes

// TaskAction enumerates the kinds of outreach a task can represent.
type TaskAction string

const (
	ActionCancelService TaskAction = "cancel_service"
	ActionNegotiateRate TaskAction = "negotiate_rate"
	ActionConsultUser   TaskAction = "consult_user"
	ActionUpdateStatus  TaskAction = "update_status"
	ActionAddQuote      TaskAction = "add_quote"
	ActionAddContact    TaskAction = "add_contact"
)

// TaskStatus enumerates the task lifecycle states.
//
// Transitions are monotonic along
//
//	pending -> researching -> calling -> {completed | failed | needs_followup}
//
// except that consult_user tasks may jump from calling straight to
// completed with no rate fields involved.
type TaskStatus string

const (
	StatusPending       TaskStatus = "pending"
	StatusResearching   TaskStatus = "researching"
	StatusCalling       TaskStatus = "calling"
	StatusCompleted     TaskStatus = "completed"
	StatusFailed        TaskStatus = "failed"
	StatusNeedsFollowup TaskStatus = "needs_followup"
)

// TaskCreate is the request body for creating a task.
type TaskCreate struct {
	Company     string     `json:"company" binding:"required"`
	Action      TaskAction `json:"action" binding:"required"`
	PhoneNumber string     `json:"phone_number" binding:"required"`
	ServiceType string     `json:"service_type,omitempty"`
	CurrentRate *float64   `json:"current_rate,omitempty"`
	TargetRate  *float64   `json:"target_rate,omitempty"`
	UserName    string     `json:"user_name,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Task is a tracked unit of outreach work.
//
// The zero values of the optional fields mean "not yet known". CallID,
// once set, is never reassigned to a different call; the registry
// enforces that.
type Task struct {
	ID                 string     `json:"id"`
	Company            string     `json:"company"`
	Action             TaskAction `json:"action"`
	PhoneNumber        string     `json:"phone_number"`
	ServiceType        string     `json:"service_type,omitempty"`
	CurrentRate        *float64   `json:"current_rate,omitempty"`
	TargetRate         *float64   `json:"target_rate,omitempty"`
	UserName           string     `json:"user_name"`
	Notes              string     `json:"notes,omitempty"`
	Status             TaskStatus `json:"status"`
	ResearchContext    string     `json:"research_context,omitempty"`
	ResearchSources    []string   `json:"research_sources,omitempty"`
	CallID             string     `json:"call_id,omitempty"`
	Outcome            string     `json:"outcome,omitempty"`
	Savings            *float64   `json:"savings,omitempty"`
	ConfirmationNumber string     `json:"confirmation_number,omitempty"`
}

// TaskUpdate is a partial task mutation. Nil fields are left untouched.
type TaskUpdate struct {
	Status             *TaskStatus `json:"status,omitempty"`
	ResearchContext    *string     `json:"research_context,omitempty"`
	ResearchSources    []string    `json:"research_sources,omitempty"`
	CallID             *string     `json:"call_id,omitempty"`
	Outcome            *string     `json:"outcome,omitempty"`
	Savings            *float64    `json:"savings,omitempty"`
	ConfirmationNumber *string     `json:"confirmation_number,omitempty"`
}

// ConfirmedAction records a decision the user made during a consult
// call. It lives in the registry inbox until the dispatch step drains
// it; it is never persisted beyond that single consumption.
type ConfirmedAction struct {
	Service        string     `json:"service"`
	Action         TaskAction `json:"action"`
	Reason         string     `json:"reason"`
	MonthlySavings float64    `json:"monthly_savings"`
	PhoneNumber    string     `json:"phone_number"`
}

// Float returns a pointer to v. Convenience for the optional rate fields.
func Float(v float64) *float64 { return &v }

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// StatusPtr returns a pointer to s.
func StatusPtr(s TaskStatus) *TaskStatus { return &s }
