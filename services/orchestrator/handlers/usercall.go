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

// TriggerUserCall places the real consult call to the user's phone.
//
// # Description
//
// Builds the billing context from the knowledge graph, creates the
// consult task, and asks the voice platform to dial out. The platform
// then drives the call; decisions come back through the tool-call
// endpoint and the end-of-call webhook dispatches the follow-ups.
//
// Without voice credentials or a destination number the handler falls
// back to the scripted consult simulation so the flow stays
// demonstrable offline.
func TriggerUserCall(registry *store.Registry, bus *eventbus.Bus, orch *phases.Orchestrator,
	voice *gateway.Voice, graph *gateway.Graph, defaultPhone string) gin.HandlerFunc {

	return func(c *gin.Context) {
		var req struct {
			PhoneNumber string `json:"phone_number"`
			UserName    string `json:"user_name"`
		}
		_ = c.ShouldBindJSON(&req)

		userName := req.UserName
		if userName == "" {
			userName = "Neel"
		}
		phone := req.PhoneNumber
		if phone == "" {
			phone = defaultPhone
		}

		subCtx := gateway.BuildSubscriptionContext(c.Request.Context(), graph, userName)

		task, err := registry.Create(datatypes.TaskCreate{
			Company:     "Haggle Consult",
			Action:      datatypes.ActionConsultUser,
			PhoneNumber: phone,
			ServiceType: "consult",
			UserName:    userName,
			Notes:       subCtx.SummaryText,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if !voice.Available() || phone == "" {
			slog.Info("voice platform not configured, running consult simulation", "task_id", task.ID)
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
			orch.Spawn("consult-sim:"+callID, func(ctx context.Context) error {
				return orch.RunConsultSimulation(ctx, taskID, callID, userName)
			})
			c.JSON(http.StatusAccepted, gin.H{
				"status":  "simulated",
				"task_id": taskID,
				"call_id": callID,
			})
			return
		}

		result, err := voice.TriggerUserConsultCall(c.Request.Context(), phone, task.ID, gateway.ConsultContext{
			SummaryText:           subCtx.SummaryText,
			UserName:              userName,
			TotalPotentialSavings: subCtx.TotalPotentialSavings,
		})
		if err != nil {
			slog.Error("outbound consult call failed", "task_id", task.ID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "task_id": task.ID})
			return
		}

		callID, _ := result["id"].(string)
		if callID != "" {
			if linked, err := registry.Update(task.ID, datatypes.TaskUpdate{
				Status: datatypes.StatusPtr(datatypes.StatusCalling),
				CallID: datatypes.Str(callID),
			}); err == nil {
				bus.Publish(datatypes.TaskUpdatedEvent(linked))
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "calling",
			"task_id": task.ID,
			"call_id": callID,
		})
	}
}
