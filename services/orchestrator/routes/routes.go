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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/handlers"
	"github.com/haggleai/haggle/services/orchestrator/middleware"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/store"
	"github.com/haggleai/haggle/services/orchestrator/tools"
	"github.com/haggleai/haggle/services/orchestrator/webhook"
)

// Deps carries everything the HTTP layer needs. Gateways may be
// unconfigured; handlers degrade per collaborator.
type Deps struct {
	Registry   *store.Registry
	Bus        *eventbus.Bus
	Orch       *phases.Orchestrator
	Dispatcher *tools.Dispatcher
	Ingress    *webhook.Ingress

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

	// DemoSecret gates the mutating demo endpoints. Empty disables the
	// guard.
	DemoSecret string

	// UserPhoneNumber is the default destination for live consult calls.
	UserPhoneNumber string
}

func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	monitor := handlers.Monitor{
		Registry:  d.Registry,
		Bus:       d.Bus,
		Billing:   d.Billing,
		Knowledge: d.Knowledge,
		Notifier:  d.Notifier,
		Scouts:    d.Scouts,
		Graph:     d.Graph,
		Vision:    d.Vision,
	}
	bills := handlers.Bills{
		Registry: d.Registry,
		Bus:      d.Bus,
		Reader:   d.BillReader,
		CallLog:  d.CallLog,
		Graph:    d.Graph,
	}

	api := router.Group("/api")
	{
		api.GET("/status", handlers.StatusReport(handlers.Integrations{
			Voice:      d.Voice,
			Graph:      d.Graph,
			Search:     d.Search,
			Knowledge:  d.Knowledge,
			Billing:    d.Billing,
			Notifier:   d.Notifier,
			Analyzer:   d.Analyzer,
			Vision:     d.Vision,
			BillReader: d.BillReader,
			Scouts:     d.Scouts,
			Extractor:  d.Extractor,
			CallLog:    d.CallLog,
		}))

		api.GET("/tasks", handlers.ListTasks(d.Registry))
		api.POST("/tasks", handlers.CreateTask(d.Registry, d.Bus))
		api.GET("/tasks/:taskId", handlers.GetTask(d.Registry))
		api.POST("/tasks/:taskId/run", handlers.TriggerTask(d.Registry, d.Orch))

		api.GET("/events", handlers.StreamEvents(d.Registry, d.Bus))
		api.GET("/events/ws", handlers.EventsWebSocket(d.Registry, d.Bus))

		// Voice platform callbacks. Never behind the demo guard; the
		// platform cannot send custom headers.
		api.POST("/vapi/tool-call", handlers.HandleToolCall(d.Dispatcher))
		api.POST("/vapi/webhook", handlers.HandleWebhook(d.Ingress))

		api.GET("/graph", handlers.GraphView(d.Graph))
		api.GET("/subscriptions", handlers.Subscriptions(d.Graph))

		api.POST("/user/call", handlers.TriggerUserCall(
			d.Registry, d.Bus, d.Orch, d.Voice, d.Graph, d.UserPhoneNumber))

		api.POST("/monitor/scan", handlers.MonitorScan(monitor))
		api.POST("/monitor/demo", handlers.MonitorDemo(monitor))
		api.POST("/monitor/scouts", handlers.CreateScout(d.Scouts))
		api.POST("/yutori-webhook", handlers.ScoutWebhook(monitor))

		api.GET("/calls/history", handlers.CallHistory(d.CallLog))

		api.POST("/bills/analyze", handlers.AnalyzeBill(bills))
		api.POST("/bills/compare", handlers.CompareBills(bills))
		api.POST("/bills/document", handlers.AnalyzeDocument(bills))
		api.POST("/knowledge/ingest", handlers.IngestKnowledge(d.Knowledge))

		api.POST("/admin/vapi-urls", handlers.UpdateVapiURLs(d.Voice))

		// Demo control: state-mutating, guarded when a secret is set.
		demo := api.Group("/demo", middleware.DemoGuard(d.DemoSecret))
		{
			demo.POST("/run", handlers.RunDemo(d.Registry, d.Bus, d.Orch))
			demo.POST("/reset", handlers.ResetDemo(d.Registry, d.Bus, d.Graph))
			demo.GET("/stats", handlers.DemoStats(d.Registry, d.Graph))
			demo.POST("/user-consult", handlers.RunConsultDemo(d.Registry, d.Bus, d.Orch))
			demo.POST("/full", handlers.RunFullDemo(d.Registry, d.Bus, d.Orch))
		}
	}
}
