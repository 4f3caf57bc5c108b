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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

// HealthCheck answers liveness probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "haggle-backend"})
}

// Integrations collects every external client for the status summary.
type Integrations struct {
	Voice      *gateway.Voice
	Graph      *gateway.Graph
	Search     *gateway.Searcher
	Knowledge  *gateway.Knowledge
	Billing    *gateway.Billing
	Notifier   *gateway.Notifier
	Analyzer   *gateway.Analyzer
	Vision     *gateway.Vision
	BillReader *gateway.BillReader
	Scouts     *gateway.Scouts
	Extractor  *gateway.Extractor
	CallLog    *gateway.CallLog
}

func flag(configured bool) string {
	if configured {
		return "configured"
	}
	return "not_configured"
}

// StatusReport summarizes which integrations are live. The service
// works with all of them down; this endpoint shows which parts of the
// demo run against real APIs versus local fallbacks.
func StatusReport(i Integrations) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "haggle-backend",
			"integrations": gin.H{
				"vapi":      flag(i.Voice.Available()),
				"neo4j":     flag(i.Graph.Available()),
				"tavily":    flag(i.Search.Available()),
				"senso":     flag(i.Knowledge.Available()),
				"stripe":    flag(i.Billing.Available()),
				"slack":     flag(i.Notifier.SlackAvailable()),
				"email":     flag(i.Notifier.MailAvailable()),
				"modulate":  flag(i.Analyzer.Available()),
				"overshoot": flag(i.Vision.Available()),
				"reka":      flag(i.BillReader.Available()),
				"yutori":    flag(i.Scouts.Available()),
				"extract":   flag(i.Extractor.Available()),
				"postgres":  flag(i.CallLog.Available()),
			},
		})
	}
}
