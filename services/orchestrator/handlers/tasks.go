// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the Gin HTTP handlers for the backend.
//
// Handlers are thin: each one binds the request, delegates to the
// registry, orchestrator, dispatcher, or a gateway, and shapes the
// JSON response. Long-running phase work is never done on the request
// goroutine; it goes through the orchestrator's supervisor set.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// ListTasks returns every tracked task, oldest first.
func ListTasks(registry *store.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks := registry.List()
		c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
	}
}

// GetTask returns one task by id.
func GetTask(registry *store.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := registry.Get(c.Param("taskId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// CreateTask registers a new task and pushes its snapshot to live
// subscribers.
func CreateTask(registry *store.Registry, bus *eventbus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TaskCreate
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task, err := registry.Create(req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slog.Info("task created", "task_id", task.ID, "company", task.Company, "action", task.Action)
		bus.Publish(datatypes.TaskUpdatedEvent(task))
		c.JSON(http.StatusCreated, task)
	}
}

// TriggerTask starts the full phase pipeline for an existing task in
// the background and returns immediately. The pipeline owns the task
// from here; triggering the same task twice is rejected once the first
// run has linked a call.
func TriggerTask(registry *store.Registry, orch *phases.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param("taskId")
		task, err := registry.Get(taskID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		if task.Status == datatypes.StatusCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": "task already completed"})
			return
		}

		orch.Spawn("task-run:"+taskID, func(ctx context.Context) error {
			return orch.RunTask(ctx, taskID)
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "task_id": taskID})
	}
}
