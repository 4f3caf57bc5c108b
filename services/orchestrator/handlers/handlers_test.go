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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
	"github.com/haggleai/haggle/services/orchestrator/tools"
	"github.com/haggleai/haggle/services/orchestrator/webhook"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// testDeps bundles a registry, bus, and an orchestrator with collapsed
// pacing and every gateway unconfigured, so handlers exercise their
// local fallbacks.
type testDeps struct {
	registry   *store.Registry
	bus        *eventbus.Bus
	orch       *phases.Orchestrator
	dispatcher *tools.Dispatcher
	graph      *gateway.Graph
	notifier   *gateway.Notifier
	scouts     *gateway.Scouts
	knowledge  *gateway.Knowledge
	billing    *gateway.Billing
	vision     *gateway.Vision
	callLog    *gateway.CallLog
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	log := slog.Default()
	registry := store.NewRegistry()
	bus := eventbus.NewBus()
	graph := gateway.NewGraph(context.Background(), "", "", "", log)
	search := gateway.NewSearcher("", log)
	knowledge := gateway.NewKnowledge("", "", log)
	notifier := gateway.NewNotifier("", "", "", "", "", "", "", log)
	orch := phases.New(registry, bus, phases.Gateways{
		Graph:     graph,
		Search:    search,
		Knowledge: knowledge,
		Analyzer:  gateway.NewAnalyzer("", log),
		Notifier:  notifier,
	}, log)
	orch.SetPaceScale(0)
	return testDeps{
		registry:   registry,
		bus:        bus,
		orch:       orch,
		dispatcher: tools.New(registry, bus, graph, search, gateway.NewExtractor("", "", "", log), notifier, log),
		graph:      graph,
		notifier:   notifier,
		scouts:     gateway.NewScouts("", search, log),
		knowledge:  knowledge,
		billing:    gateway.NewBilling("", log),
		vision:     gateway.NewVision("", "", log),
		callLog:    gateway.NewCallLog(context.Background(), "", log),
	}
}

// newIngressForTest builds a webhook ingress over the same deps, with
// its own unconfigured enrichment gateways.
func newIngressForTest(d testDeps) *webhook.Ingress {
	log := slog.Default()
	return webhook.New(d.registry, d.bus, d.orch,
		gateway.NewAnalyzer("", log),
		gateway.NewExtractor("", "", "", log),
		d.callLog, d.notifier, log)
}

// perform runs one request against a single-route router and decodes
// the JSON body.
func perform(t *testing.T, method, path string, body any, register func(*gin.Engine)) (int, map[string]any) {
	t.Helper()
	router := gin.New()
	register(router)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}
