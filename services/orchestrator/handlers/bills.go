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
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// Bills groups the collaborators for the document analysis endpoints.
type Bills struct {
	Registry *store.Registry
	Bus      *eventbus.Bus
	Reader   *gateway.BillReader
	CallLog  *gateway.CallLog
	Graph    *gateway.Graph
}

func (b Bills) publishScan(c *gin.Context, result map[string]any, kind string) string {
	taskID := ""

	// A visible price increase on a known provider becomes a pending
	// negotiation task automatically.
	provider, _ := result["provider_name"].(string)
	change, _ := result["price_change"].(string)
	if provider != "" && strings.HasPrefix(strings.TrimSpace(change), "+") {
		phone := "+18005551234"
		var currentRate float64
		if sub, ok := gateway.SubscriptionByService(c.Request.Context(), b.Graph, provider); ok {
			phone = sub.PhoneNumber
			currentRate = sub.MonthlyCost
		}
		tc := datatypes.TaskCreate{
			Company:     provider,
			Action:      datatypes.ActionNegotiateRate,
			PhoneNumber: phone,
			ServiceType: "subscription",
			UserName:    "Neel",
			Notes:       fmt.Sprintf("Auto-created from bill scan: price change %s", change),
		}
		if currentRate > 0 {
			tc.CurrentRate = datatypes.Float(currentRate)
		}
		if task, err := b.Registry.Create(tc); err == nil {
			taskID = task.ID
			b.Bus.Publish(datatypes.TaskUpdatedEvent(task))
		}
	}

	b.Bus.Publish(datatypes.Event{
		Type: datatypes.EventBillAnalyzed,
		Data: map[string]any{
			"kind":    kind,
			"result":  result,
			"task_id": taskID,
		},
	})
	b.CallLog.InsertBillScan(c.Request.Context(), result, taskID)
	return taskID
}

// AnalyzeBill serves POST /api/bills/analyze: one bill image in,
// structured charges and anomalies out.
func AnalyzeBill(b Bills) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ImageURL string `json:"image_url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result := b.Reader.AnalyzeBillImage(c.Request.Context(), req.ImageURL)
		taskID := b.publishScan(c, result, "bill_analysis")
		c.JSON(http.StatusOK, gin.H{"result": result, "task_id": taskID})
	}
}

// CompareBills serves POST /api/bills/compare: two bills from the same
// provider, older first.
func CompareBills(b Bills) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OldImageURL string `json:"old_image_url" binding:"required"`
			NewImageURL string `json:"new_image_url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result := b.Reader.CompareBills(c.Request.Context(), req.OldImageURL, req.NewImageURL)
		taskID := b.publishScan(c, result, "bill_comparison")
		c.JSON(http.StatusOK, gin.H{"result": result, "task_id": taskID})
	}
}

// AnalyzeDocument serves POST /api/bills/document: contracts, terms,
// statements, read for negotiation leverage.
func AnalyzeDocument(b Bills) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DocumentURL string `json:"document_url" binding:"required"`
			DocType     string `json:"doc_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result := b.Reader.AnalyzeDocument(c.Request.Context(), req.DocumentURL, req.DocType)
		b.Bus.Publish(datatypes.Event{
			Type: datatypes.EventBillAnalyzed,
			Data: map[string]any{"kind": "document_analysis", "result": result},
		})
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

// IngestKnowledge serves POST /api/knowledge/ingest: pushes a document
// into the grounded knowledge base used for compliance context.
func IngestKnowledge(knowledge *gateway.Knowledge) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title string `json:"title" binding:"required"`
			Text  string `json:"text" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, knowledge.Ingest(c.Request.Context(), req.Title, req.Text))
	}
}
