// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// RunDemo kicks off the full phase pipeline for every pending task,
// one background run per task. An empty registry is re-seeded first so
// the button works on a fresh deployment.
func RunDemo(registry *store.Registry, bus *eventbus.Bus, orch *phases.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(registry.List()) == 0 {
			registry.SeedDemoTasks()
		}

		var started []string
		for _, task := range registry.List() {
			if task.Status != datatypes.StatusPending {
				continue
			}
			taskID := task.ID
			bus.Publish(datatypes.TaskUpdatedEvent(task))
			orch.Spawn("demo-run:"+taskID, func(ctx context.Context) error {
				return orch.RunTask(ctx, taskID)
			})
			started = append(started, taskID)
		}

		slog.Info("demo run started", "tasks", len(started))
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "task_ids": started})
	}
}

// ResetDemo restores the pre-demo state: registry re-seeded, graph
// restored to the seed data, and subscribers told to redraw.
func ResetDemo(registry *store.Registry, bus *eventbus.Bus, graph *gateway.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.Reset()
		graph.Reset(c.Request.Context())

		bus.Publish(datatypes.Event{
			Type: datatypes.EventTaskUpdated,
			Data: map[string]any{"message": "Demo reset", "reset": true},
		})

		tasks := registry.List()
		for _, task := range tasks {
			bus.Publish(datatypes.TaskUpdatedEvent(task))
		}

		slog.Info("demo reset", "seeded", len(tasks))
		c.JSON(http.StatusOK, gin.H{"status": "reset", "tasks": len(tasks)})
	}
}

// DemoStats aggregates the dashboard scoreboard: task counts by
// status, realized monthly and annual savings, and graph size.
func DemoStats(registry *store.Registry, graph *gateway.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		byStatus := map[datatypes.TaskStatus]int{}
		totalSavings := 0.0
		for _, task := range registry.List() {
			byStatus[task.Status]++
			if task.Savings != nil {
				totalSavings += *task.Savings
			}
		}

		graphData := graph.Data(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"tasks": gin.H{
				"total":          len(registry.List()),
				"pending":        byStatus[datatypes.StatusPending],
				"researching":    byStatus[datatypes.StatusResearching],
				"calling":        byStatus[datatypes.StatusCalling],
				"completed":      byStatus[datatypes.StatusCompleted],
				"failed":         byStatus[datatypes.StatusFailed],
				"needs_followup": byStatus[datatypes.StatusNeedsFollowup],
			},
			"savings": gin.H{
				"monthly": totalSavings,
				"annual":  totalSavings * 12,
			},
			"graph": gin.H{
				"nodes": len(graphData.Nodes),
				"links": len(graphData.Links),
			},
		})
	}
}

// RunConsultDemo plays the scripted user consult end to end: the
// consult call streams, the scripted user confirms two actions, and
// the follow-up service calls dispatch. Everything happens in the
// background; the response only confirms the kick-off.
func RunConsultDemo(registry *store.Registry, bus *eventbus.Bus, orch *phases.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserName string `json:"user_name"`
		}
		_ = c.ShouldBindJSON(&req)
		userName := req.UserName
		if userName == "" {
			userName = "Neel"
		}

		task, err := registry.Create(datatypes.TaskCreate{
			Company:     "Haggle Consult",
			Action:      datatypes.ActionConsultUser,
			PhoneNumber: "+15550000001",
			ServiceType: "consult",
			UserName:    userName,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		callID := phases.NewConsultCallID()
		linked, err := registry.Update(task.ID, datatypes.TaskUpdate{
			Status: datatypes.StatusPtr(datatypes.StatusCalling),
			CallID: datatypes.Str(callID),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		bus.Publish(datatypes.TaskUpdatedEvent(linked))

		taskID := task.ID
		orch.Spawn("consult-demo:"+callID, func(ctx context.Context) error {
			return orch.RunConsultSimulation(ctx, taskID, callID, userName)
		})
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "started",
			"task_id": taskID,
			"call_id": callID,
		})
	}
}

// RunFullDemo plays the short consult then hands off to a live call on
// the demo agent line. Uses the first pending negotiation task, or
// creates the default one.
func RunFullDemo(registry *store.Registry, bus *eventbus.Bus, orch *phases.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var target *datatypes.Task
		for _, task := range registry.List() {
			if task.Status == datatypes.StatusPending && task.Action == datatypes.ActionNegotiateRate {
				target = task
				break
			}
		}
		if target == nil {
			task, err := registry.Create(datatypes.TaskCreate{
				Company:     "Comcast",
				Action:      datatypes.ActionNegotiateRate,
				PhoneNumber: "+18005551234",
				ServiceType: "internet",
				CurrentRate: datatypes.Float(85.0),
				TargetRate:  datatypes.Float(65.0),
				UserName:    "Neel",
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			target = task
		}
		bus.Publish(datatypes.TaskUpdatedEvent(target))

		taskID := target.ID
		orch.Spawn("full-demo:"+taskID, func(ctx context.Context) error {
			return orch.RunFullDemo(ctx, taskID)
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "task_id": taskID})
	}
}
