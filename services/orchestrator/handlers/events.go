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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

// keepAliveInterval is how often an SSE comment is sent during idle
// stretches. Must stay under load balancer idle timeouts (ALB and
// default Nginx are 60s).
const keepAliveInterval = 15 * time.Second

// SetSSEHeaders configures the response headers for Server-Sent Events.
// Must be called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSE writes one event in SSE wire format and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev datatypes.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}

// writeSSEKeepAlive sends an SSE comment line. Comments are ignored by
// clients but reset load balancer timeout counters.
func writeSSEKeepAlive(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	flusher.Flush()
	return nil
}

// StreamEvents is the live dashboard feed.
//
// # Description
//
// Subscribes the connection to the event bus and streams every
// published event in SSE format. The first event is always a snapshot
// of the current task list, so a client that reconnects mid-demo
// renders complete state before the live events resume. Idle
// connections get a keepalive comment every 15 seconds.
//
// Events already published before the subscription are not replayed;
// the snapshot covers the durable state, the feed covers what happens
// next.
func StreamEvents(registry *store.Registry, bus *eventbus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}
		SetSSEHeaders(c.Writer)

		id, ch := bus.Subscribe()
		defer bus.Unsubscribe(id)
		slog.Info("sse client connected", "subscriber", id)
		if m := observability.DefaultMetrics; m != nil {
			m.SubscriberConnected("sse")
			defer m.SubscriberDisconnected("sse")
		}

		snapshot := datatypes.Event{
			Type: "snapshot",
			Data: map[string]any{"tasks": registry.List()},
		}
		if err := writeSSE(c.Writer, flusher, snapshot); err != nil {
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				slog.Info("sse client disconnected", "subscriber", id)
				return
			case ev := <-ch:
				if err := writeSSE(c.Writer, flusher, ev); err != nil {
					slog.Info("sse write failed, dropping client", "subscriber", id, "error", err)
					return
				}
			case <-ticker.C:
				if err := writeSSEKeepAlive(c.Writer, flusher); err != nil {
					return
				}
			}
		}
	}
}
