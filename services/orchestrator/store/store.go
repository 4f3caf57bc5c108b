// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the in-memory task registry.
//
// # Description
//
// The Registry owns every Task and ConfirmedAction instance in the
// process. All mutation goes through its narrow API; no caller retains
// its own mutable copy. Mutations appear atomic to readers: a partial
// update is never observable.
//
// The registry also holds the confirmed-action inbox: an
// append-then-clear-on-read queue filled during user consult calls and
// drained exactly once by the dispatch step.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex guards both
// the task map and the inbox.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound signals a missing task id. Callers decide how to
	// react; a missing task must never crash an in-flight workflow.
	ErrNotFound = errors.New("task not found")

	// ErrCallLinked signals an attempt to overwrite a task's call id
	// with a different one. At most one call may be linked to a task.
	ErrCallLinked = errors.New("task already linked to a different call")

	// ErrMissingField signals a create request without a required field.
	ErrMissingField = errors.New("missing required field")
)

// =============================================================================
// Registry
// =============================================================================

// Registry is the process-wide task store.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*datatypes.Task
	order []string

	inbox []datatypes.ConfirmedAction
}

// NewRegistry returns an empty registry. Call SeedDemoTasks to load the
// demo scenarios.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*datatypes.Task)}
}

// NewTaskID allocates a fresh task id.
func NewTaskID() string {
	return "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create allocates a fresh id and stores the task with status pending.
// It fails only when a required field is missing.
func (r *Registry) Create(tc datatypes.TaskCreate) (*datatypes.Task, error) {
	if tc.Company == "" {
		return nil, fmt.Errorf("%w: company", ErrMissingField)
	}
	if tc.Action == "" {
		return nil, fmt.Errorf("%w: action", ErrMissingField)
	}
	userName := tc.UserName
	if userName == "" {
		userName = "Neel"
	}

	task := &datatypes.Task{
		ID:          NewTaskID(),
		Company:     tc.Company,
		Action:      tc.Action,
		PhoneNumber: tc.PhoneNumber,
		ServiceType: tc.ServiceType,
		CurrentRate: tc.CurrentRate,
		TargetRate:  tc.TargetRate,
		UserName:    userName,
		Notes:       tc.Notes,
		Status:      datatypes.StatusPending,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	r.order = append(r.order, task.ID)

	snapshot := *task
	return &snapshot, nil
}

// Get returns a copy of the task, or ErrNotFound.
func (r *Registry) Get(id string) (*datatypes.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *task
	return &snapshot, nil
}

// List returns copies of all tasks in creation order.
func (r *Registry) List() []*datatypes.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*datatypes.Task, 0, len(r.order))
	for _, id := range r.order {
		snapshot := *r.tasks[id]
		out = append(out, &snapshot)
	}
	return out
}

// FindByCallID returns the task linked to the given call id, or
// ErrNotFound.
func (r *Registry) FindByCallID(callID string) (*datatypes.Task, error) {
	if callID == "" {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if r.tasks[id].CallID == callID {
			snapshot := *r.tasks[id]
			return &snapshot, nil
		}
	}
	return nil, ErrNotFound
}

// Update applies the non-nil fields of upd to the task and returns the
// updated copy. A missing id returns ErrNotFound without failing the
// caller's wider workflow. Setting CallID on a task already linked to a
// different call returns ErrCallLinked and applies nothing.
func (r *Registry) Update(id string, upd datatypes.TaskUpdate) (*datatypes.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Call linkage is write-once. Re-asserting the same id is fine.
	if upd.CallID != nil && task.CallID != "" && *upd.CallID != task.CallID {
		return nil, ErrCallLinked
	}

	if upd.Status != nil {
		task.Status = *upd.Status
	}
	if upd.ResearchContext != nil {
		task.ResearchContext = *upd.ResearchContext
	}
	if upd.ResearchSources != nil {
		task.ResearchSources = upd.ResearchSources
	}
	if upd.CallID != nil {
		task.CallID = *upd.CallID
	}
	if upd.Outcome != nil {
		task.Outcome = *upd.Outcome
	}
	if upd.Savings != nil {
		task.Savings = upd.Savings
	}
	if upd.ConfirmationNumber != nil {
		task.ConfirmationNumber = *upd.ConfirmationNumber
	}

	snapshot := *task
	return &snapshot, nil
}

// Reset clears all tasks and the inbox, then re-seeds the demo
// scenarios. Tasks are never deleted individually.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.tasks = make(map[string]*datatypes.Task)
	r.order = nil
	r.inbox = nil
	r.mu.Unlock()
	r.SeedDemoTasks()
}

// SeedDemoTasks pre-loads the demo scenarios so the dashboard has data
// on startup.
func (r *Registry) SeedDemoTasks() {
	seeds := []datatypes.TaskCreate{
		{
			Company:     "Comcast",
			Action:      datatypes.ActionNegotiateRate,
			PhoneNumber: "+18005551234",
			ServiceType: "internet",
			CurrentRate: datatypes.Float(85.0),
			TargetRate:  datatypes.Float(65.0),
			UserName:    "Neel",
			Notes:       "Bill increased from $55 to $85. Negotiate back down.",
		},
		{
			Company:     "Planet Fitness",
			Action:      datatypes.ActionCancelService,
			PhoneNumber: "+18005555678",
			ServiceType: "gym",
			CurrentRate: datatypes.Float(25.0),
			UserName:    "Neel",
			Notes:       "Cancel membership. Haven't been in 3 months.",
		},
	}
	for _, tc := range seeds {
		// Seeds are statically valid; Create cannot fail here.
		_, _ = r.Create(tc)
	}
}

// =============================================================================
// Confirmed-action inbox
// =============================================================================

// AddConfirmedAction appends an action to the inbox.
func (r *Registry) AddConfirmedAction(ca datatypes.ConfirmedAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbox = append(r.inbox, ca)
}

// DrainConfirmedActions returns all pending actions and empties the
// inbox atomically. No action is drained twice and none is lost if a
// drain races with an add.
func (r *Registry) DrainConfirmedActions() []datatypes.ConfirmedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.inbox
	r.inbox = nil
	return out
}
