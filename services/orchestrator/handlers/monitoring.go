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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// Monitor groups the collaborators the proactive monitoring endpoints
// consult. Any of them may be unconfigured.
type Monitor struct {
	Registry  *store.Registry
	Bus       *eventbus.Bus
	Billing   *gateway.Billing
	Knowledge *gateway.Knowledge
	Notifier  *gateway.Notifier
	Scouts    *gateway.Scouts
	Graph     *gateway.Graph
	Vision    *gateway.Vision
}

// publishDetections creates a pending task per actionable detection,
// then fans the batch out: Slack alert, threat email, live event. All
// best-effort.
func (m Monitor) publishDetections(c *gin.Context, detections []map[string]any, source string) []string {
	var created []string
	for _, d := range detections {
		dtype, _ := d["type"].(string)
		if dtype != gateway.AnomalyBillingIncrease && dtype != gateway.AnomalyRateIncrease {
			continue
		}
		company := d["company"]
		if company == nil {
			company = d["merchant"]
		}
		name, _ := company.(string)
		if name == "" {
			continue
		}

		sub, ok := gateway.SubscriptionByService(c.Request.Context(), m.Graph, name)
		phone := "+18005551234"
		currentRate := 0.0
		if ok {
			phone = sub.PhoneNumber
			currentRate = sub.MonthlyCost
		}

		tc := datatypes.TaskCreate{
			Company:     name,
			Action:      datatypes.ActionNegotiateRate,
			PhoneNumber: phone,
			ServiceType: "subscription",
			UserName:    "Neel",
			Notes:       fmt.Sprintf("Auto-created by %s monitor: %v", source, d["summary"]),
		}
		if currentRate > 0 {
			tc.CurrentRate = datatypes.Float(currentRate)
		}
		task, err := m.Registry.Create(tc)
		if err != nil {
			slog.Warn("monitor task creation failed", "company", name, "error", err)
			continue
		}
		m.Bus.Publish(datatypes.TaskUpdatedEvent(task))
		created = append(created, task.ID)
	}

	if len(detections) > 0 {
		m.Notifier.SendSlackAlert(c.Request.Context(), fmt.Sprintf(
			"Haggle scan detected %d anomalies", len(detections)))
		m.Notifier.SendThreatAlert(detections)
		m.Bus.Publish(datatypes.Event{
			Type: datatypes.EventTaskUpdated,
			Data: map[string]any{
				"message":    fmt.Sprintf("Monitor detected %d billing anomalies", len(detections)),
				"detections": detections,
				"source":     source,
			},
		})
	}
	return created
}

// MonitorScan scans recent charges for billing anomalies, classifies
// each one against the compliance knowledge base, sweeps the broadcast
// feed for rate announcements, and auto-creates a negotiation task per
// confirmed increase.
func MonitorScan(m Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		anomalies := m.Billing.DetectBillingAnomalies(c.Request.Context(), 90)

		detections := make([]map[string]any, 0, len(anomalies))
		for _, a := range anomalies {
			d := map[string]any{
				"source":       "stripe",
				"type":         a.Type,
				"merchant":     a.Merchant,
				"old_amount":   a.OldAmount,
				"new_amount":   a.NewAmount,
				"amount":       a.Amount,
				"increase_pct": a.IncreasePct,
				"summary": fmt.Sprintf("%s charge anomaly: %s",
					a.Merchant, a.Type),
			}
			if verdict := m.Knowledge.ClassifyThreat(c.Request.Context(), fmt.Sprintf(
				"%s charged $%.2f, previously $%.2f, an increase of %.1f%%",
				a.Merchant, a.NewAmount, a.OldAmount, a.IncreasePct)); verdict != "" {
				d["classification"] = verdict
			}
			detections = append(detections, d)
		}

		for _, ev := range m.Vision.MonitorBroadcast(c.Request.Context(), "demo") {
			if _, ok := ev["summary"]; !ok {
				ev["summary"] = "Broadcast monitoring flagged a financial announcement"
			}
			detections = append(detections, ev)
		}

		created := m.publishDetections(c, detections, "stripe")
		c.JSON(http.StatusOK, gin.H{
			"detections":    detections,
			"tasks_created": created,
		})
	}
}

// MonitorDemo replays the canned detection batch so the proactive flow
// can be shown without live Stripe data: the Comcast increase from the
// billing feed plus the broadcast detection from vision monitoring.
func MonitorDemo(m Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		detections := []map[string]any{
			{
				"source":       "airbyte_stripe",
				"type":         gateway.AnomalyBillingIncrease,
				"merchant":     "Comcast",
				"old_amount":   55.0,
				"new_amount":   85.0,
				"increase_pct": 54.5,
				"summary":      "Comcast charge jumped from $55 to $85 (+54.5%)",
			},
			gateway.DemoDetection(),
		}

		created := m.publishDetections(c, detections, "demo")
		c.JSON(http.StatusOK, gin.H{
			"detections":    detections,
			"tasks_created": created,
		})
	}
}

// CreateScout registers a proactive web scout watching one provider.
func CreateScout(scouts *gateway.Scouts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Provider    string `json:"provider" binding:"required"`
			ProviderURL string `json:"provider_url"`
			MonitorType string `json:"monitor_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.MonitorType == "" {
			req.MonitorType = gateway.MonitorPriceChange
		}
		c.JSON(http.StatusOK, scouts.CreateScout(c.Request.Context(),
			req.Provider, req.ProviderURL, req.MonitorType))
	}
}

// ScoutWebhook ingests a scout detection pushed from the monitoring
// service. Price-change detections become pending negotiation tasks.
func ScoutWebhook(m Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		detection := gateway.HandleScoutWebhook(payload)
		slog.Info("scout detection received",
			"provider", detection.Provider, "type", detection.DetectionType)

		var created []string
		if detection.DetectionType == gateway.MonitorPriceChange {
			created = m.publishDetections(c, []map[string]any{{
				"source":     "yutori_scout",
				"type":       gateway.AnomalyRateIncrease,
				"company":    detection.Provider,
				"confidence": detection.Confidence,
				"details":    detection.Details,
				"summary": fmt.Sprintf("Scout detected a %s price change",
					detection.Provider),
			}}, "yutori")
		} else {
			m.Bus.Publish(datatypes.Event{
				Type: datatypes.EventTaskUpdated,
				Data: map[string]any{
					"message":   fmt.Sprintf("Scout update from %s: %s", detection.Provider, detection.DetectionType),
					"detection": detection,
				},
			})
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "tasks_created": created})
	}
}

// CallHistory returns the most recent durable call log entries.
func CallHistory(callLog *gateway.CallLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		entries := callLog.CallHistory(c.Request.Context(), limit)
		c.JSON(http.StatusOK, gin.H{"calls": entries, "count": len(entries)})
	}
}
