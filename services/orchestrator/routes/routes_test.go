// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
	"github.com/haggleai/haggle/services/orchestrator/tools"
	"github.com/haggleai/haggle/services/orchestrator/webhook"
)

func newTestRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.Default()
	ctx := context.Background()

	registry := store.NewRegistry()
	registry.SeedDemoTasks()
	bus := eventbus.NewBus()
	graph := gateway.NewGraph(ctx, "", "", "", log)
	search := gateway.NewSearcher("", log)
	knowledge := gateway.NewKnowledge("", "", log)
	analyzer := gateway.NewAnalyzer("", log)
	notifier := gateway.NewNotifier("", "", "", "", "", "", "", log)
	callLog := gateway.NewCallLog(ctx, "", log)
	extractor := gateway.NewExtractor("", "", "", log)

	orch := phases.New(registry, bus, phases.Gateways{
		Graph:     graph,
		Search:    search,
		Knowledge: knowledge,
		Analyzer:  analyzer,
		Notifier:  notifier,
	}, log)
	orch.SetPaceScale(0)

	router := gin.New()
	SetupRoutes(router, Deps{
		Registry:   registry,
		Bus:        bus,
		Orch:       orch,
		Dispatcher: tools.New(registry, bus, graph, search, extractor, notifier, log),
		Ingress:    webhook.New(registry, bus, orch, analyzer, extractor, callLog, notifier, log),

		Voice:      gateway.NewVoice("", "", "", nil, "", log),
		Graph:      graph,
		Search:     search,
		Knowledge:  knowledge,
		Billing:    gateway.NewBilling("", log),
		Notifier:   notifier,
		Analyzer:   analyzer,
		Vision:     gateway.NewVision("", "", log),
		BillReader: gateway.NewBillReader("", log),
		Scouts:     gateway.NewScouts("", search, log),
		Extractor:  extractor,
		CallLog:    callLog,

		DemoSecret: secret,
	})
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutesRegistered(t *testing.T) {
	router := newTestRouter(t, "")

	assert.Equal(t, http.StatusOK, get(router, "/health").Code)
	assert.Equal(t, http.StatusOK, get(router, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/status").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/tasks").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/graph").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/subscriptions").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/calls/history").Code)
	assert.Equal(t, http.StatusOK, get(router, "/api/demo/stats").Code)
}

func TestDemoRoutesGuarded(t *testing.T) {
	router := newTestRouter(t, "s3cret")

	// Guarded without the header.
	req := httptest.NewRequest(http.MethodGet, "/api/demo/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/demo/stats", nil)
	req.Header.Set("X-Demo-Secret", "s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// The webhook ingress stays open; the voice platform cannot send
	// custom headers.
	req = httptest.NewRequest(http.MethodPost, "/api/vapi/webhook",
		strings.NewReader(`{"message":{"type":"status-update"}}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
