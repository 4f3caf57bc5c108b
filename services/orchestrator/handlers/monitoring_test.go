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
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

func newTestMonitor(d testDeps) Monitor {
	return Monitor{
		Registry:  d.registry,
		Bus:       d.bus,
		Billing:   d.billing,
		Knowledge: d.knowledge,
		Notifier:  d.notifier,
		Scouts:    d.scouts,
		Graph:     d.graph,
		Vision:    d.vision,
	}
}

func TestMonitorDemoCreatesTasks(t *testing.T) {
	d := newTestDeps(t)
	m := newTestMonitor(d)

	code, body := perform(t, http.MethodPost, "/api/monitor/demo", nil, func(r *gin.Engine) {
		r.POST("/api/monitor/demo", MonitorDemo(m))
	})
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["detections"], 2)

	// Both canned detections are billing increases for Comcast, so two
	// pending negotiation tasks appear.
	created := body["tasks_created"].([]any)
	require.Len(t, created, 2)
	for _, id := range created {
		task, err := d.registry.Get(id.(string))
		require.NoError(t, err)
		assert.Equal(t, "Comcast", task.Company)
		assert.Equal(t, datatypes.ActionNegotiateRate, task.Action)
		assert.Equal(t, datatypes.StatusPending, task.Status)
	}
}

func TestMonitorScanUnconfigured(t *testing.T) {
	d := newTestDeps(t)
	m := newTestMonitor(d)

	// Without Stripe or Overshoot credentials both scan steps degrade
	// to empty results: the scan finds nothing and creates nothing.
	code, body := perform(t, http.MethodPost, "/api/monitor/scan", nil, func(r *gin.Engine) {
		r.POST("/api/monitor/scan", MonitorScan(m))
	})
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["detections"])
	assert.Empty(t, body["tasks_created"])
	assert.Empty(t, d.registry.List())
}

func TestScoutWebhookPriceChange(t *testing.T) {
	d := newTestDeps(t)
	m := newTestMonitor(d)
	register := func(r *gin.Engine) {
		r.POST("/api/yutori-webhook", ScoutWebhook(m))
	}

	// The detection type scouts actually emit auto-creates a task.
	code, body := perform(t, http.MethodPost, "/api/yutori-webhook", map[string]any{
		"scout_id":       "scout_1",
		"provider":       "Comcast",
		"detection_type": gateway.MonitorPriceChange,
		"confidence":     0.9,
		"details":        map[string]any{"note": "promo expired"},
	}, register)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	require.Len(t, body["tasks_created"], 1)

	task := d.registry.List()[0]
	assert.Equal(t, "Comcast", task.Company)
	assert.Contains(t, task.Notes, "yutori")

	// Non-price detections only land on the live feed.
	code, body = perform(t, http.MethodPost, "/api/yutori-webhook", map[string]any{
		"provider":       "Comcast",
		"detection_type": gateway.MonitorPolicyUpdate,
	}, register)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["tasks_created"])
	assert.Len(t, d.registry.List(), 1)
}

func TestCreateScoutValidation(t *testing.T) {
	d := newTestDeps(t)
	register := func(r *gin.Engine) {
		r.POST("/api/monitor/scouts", CreateScout(d.scouts))
	}

	code, _ := perform(t, http.MethodPost, "/api/monitor/scouts", map[string]any{}, register)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := perform(t, http.MethodPost, "/api/monitor/scouts", map[string]any{
		"provider": "Comcast",
	}, register)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body)
}

func TestCallHistoryUnconfigured(t *testing.T) {
	d := newTestDeps(t)

	code, body := perform(t, http.MethodGet, "/api/calls/history?limit=5", nil, func(r *gin.Engine) {
		r.GET("/api/calls/history", CallHistory(d.callLog))
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}
