// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/haggleai/haggle/pkg/config"
	"github.com/haggleai/haggle/pkg/logging"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/phases"
	"github.com/haggleai/haggle/services/orchestrator/routes"
	"github.com/haggleai/haggle/services/orchestrator/store"
	"github.com/haggleai/haggle/services/orchestrator/tools"
	"github.com/haggleai/haggle/services/orchestrator/webhook"
)

// initTracer wires the OTLP trace exporter. An empty endpoint disables
// tracing and returns a no-op cleanup.
func initTracer(endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		slog.Info("OTLP endpoint not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("haggle-backend")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := logging.New("haggle-backend")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	ctx := context.Background()

	// External collaborators. Each one degrades to local behavior when
	// its credentials are missing.
	graph := gateway.NewGraph(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
	defer graph.Close(ctx)
	search := gateway.NewSearcher(cfg.TavilyAPIKey, logger)
	knowledge := gateway.NewKnowledge(cfg.SensoAPIKey, cfg.SensoBaseURL, logger)
	analyzer := gateway.NewAnalyzer(cfg.ModulateAPIKey, logger)
	notifier := gateway.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID,
		cfg.MailSender, cfg.MailPassword, cfg.MailRecipient, cfg.SMTPAddr,
		cfg.BackendURL, logger)
	voice := gateway.NewVoice(cfg.VapiAPIKey, cfg.VapiAssistantID,
		cfg.VapiPhoneNumberID, cfg.VapiToolIDs, cfg.BackendURL, logger)
	billing := gateway.NewBilling(cfg.StripeAPIKey, logger)
	vision := gateway.NewVision(cfg.OvershootAPIKey, cfg.OvershootBaseURL, logger)
	billReader := gateway.NewBillReader(cfg.RekaAPIKey, logger)
	scouts := gateway.NewScouts(cfg.YutoriAPIKey, search, logger)
	extractor := gateway.NewExtractor(cfg.ExtractAPIKey, cfg.ExtractBaseURL,
		cfg.ExtractModel, logger)
	callLog := gateway.NewCallLog(ctx, cfg.DatabaseURL, logger)
	defer callLog.Close()

	graph.SeedDemoData(ctx)
	knowledge.SeedComplianceDocs(ctx)

	registry := store.NewRegistry()
	registry.SeedDemoTasks()
	bus := eventbus.NewBus()

	orch := phases.New(registry, bus, phases.Gateways{
		Graph:     graph,
		Search:    search,
		Knowledge: knowledge,
		Analyzer:  analyzer,
		Notifier:  notifier,
	}, logger)
	dispatcher := tools.New(registry, bus, graph, search, extractor, notifier, logger)
	ingress := webhook.New(registry, bus, orch, analyzer, extractor, callLog, notifier, logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("haggle-backend"))

	routes.SetupRoutes(router, routes.Deps{
		Registry:   registry,
		Bus:        bus,
		Orch:       orch,
		Dispatcher: dispatcher,
		Ingress:    ingress,

		Voice:      voice,
		Graph:      graph,
		Search:     search,
		Knowledge:  knowledge,
		Billing:    billing,
		Notifier:   notifier,
		Analyzer:   analyzer,
		Vision:     vision,
		BillReader: billReader,
		Scouts:     scouts,
		Extractor:  extractor,
		CallLog:    callLog,

		DemoSecret:      cfg.DemoSecret,
		UserPhoneNumber: cfg.UserPhoneNumber,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("starting haggle backend", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Block until a shutdown signal, then let in-flight phase runs and
	// requests drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	orch.Wait()
}
