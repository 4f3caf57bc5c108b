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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/tools"
	"github.com/haggleai/haggle/services/orchestrator/webhook"
)

// Voice platform endpoints. Vapi requires HTTP 200 on every server
// message; a non-200 makes the live agent stall mid-call. Malformed
// payloads therefore decode to zero values and still get a
// success-shaped response.

// HandleToolCall serves POST /api/vapi/tool-call.
func HandleToolCall(dispatcher *tools.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ToolCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("malformed tool-call payload", "error", err)
			c.JSON(http.StatusOK, datatypes.ToolCallResponse{Results: []datatypes.ToolCallResult{}})
			return
		}
		resp := dispatcher.Handle(c.Request.Context(), req)
		if m := observability.DefaultMetrics; m != nil {
			for _, r := range resp.Results {
				m.RecordToolCall(r.Name)
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleWebhook serves POST /api/vapi/webhook.
func HandleWebhook(ingress *webhook.Ingress) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.WebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("malformed webhook payload", "error", err)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordWebhookMessage(req.Message.Type)
		}
		c.JSON(http.StatusOK, ingress.Handle(c.Request.Context(), req))
	}
}

// UpdateVapiURLs serves POST /api/admin/vapi-urls. After a redeploy
// behind a new tunnel or host, the assistant and every tool must be
// repointed at the new backend URL or webhooks silently go nowhere.
func UpdateVapiURLs(voice *gateway.Voice) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			NewURL string `json:"new_url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		assistant, err := voice.UpdateAssistantServerURL(c.Request.Context(), req.NewURL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"assistant": assistant,
			"tools":     voice.UpdateToolServerURLs(c.Request.Context(), req.NewURL),
		})
	}
}
