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
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

func TestHealthCheck(t *testing.T) {
	code, body := perform(t, http.MethodGet, "/health", nil, func(r *gin.Engine) {
		r.GET("/health", HealthCheck)
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "haggle-backend", body["service"])
}

func TestStatusReportUnconfigured(t *testing.T) {
	d := newTestDeps(t)
	log := slog.Default()
	integrations := Integrations{
		Voice:      gateway.NewVoice("", "", "", nil, "", log),
		Graph:      d.graph,
		Search:     gateway.NewSearcher("", log),
		Knowledge:  d.knowledge,
		Billing:    d.billing,
		Notifier:   d.notifier,
		Analyzer:   gateway.NewAnalyzer("", log),
		Vision:     gateway.NewVision("", "", log),
		BillReader: gateway.NewBillReader("", log),
		Scouts:     d.scouts,
		Extractor:  gateway.NewExtractor("", "", "", log),
		CallLog:    d.callLog,
	}

	code, body := perform(t, http.MethodGet, "/api/status", nil, func(r *gin.Engine) {
		r.GET("/api/status", StatusReport(integrations))
	})
	require.Equal(t, http.StatusOK, code)

	report := body["integrations"].(map[string]any)
	require.Len(t, report, 13)
	for name, state := range report {
		assert.Equal(t, "not_configured", state, name)
	}
}

func TestSubscriptionsLocalFallback(t *testing.T) {
	d := newTestDeps(t)

	code, body := perform(t, http.MethodGet, "/api/subscriptions", nil, func(r *gin.Engine) {
		r.GET("/api/subscriptions", Subscriptions(d.graph))
	})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body)
}

func TestGraphViewLocalFallback(t *testing.T) {
	d := newTestDeps(t)
	graphData := d.graph.Data(context.Background())
	require.NotEmpty(t, graphData.Nodes)

	code, body := perform(t, http.MethodGet, "/api/graph", nil, func(r *gin.Engine) {
		r.GET("/api/graph", GraphView(d.graph))
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["nodes"], len(graphData.Nodes))
}
