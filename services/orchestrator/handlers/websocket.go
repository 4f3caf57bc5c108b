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
	"github.com/gorilla/websocket"

	"github.com/haggleai/haggle/services/orchestrator/eventbus"
	"github.com/haggleai/haggle/services/orchestrator/observability"
	"github.com/haggleai/haggle/services/orchestrator/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsEvent is the frame shape pushed to websocket clients. Same payload
// as the SSE feed, with the event type inlined.
type wsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventsWebSocket is the websocket alternative to the SSE feed for
// clients behind proxies that buffer event streams. It sends the same
// snapshot-then-live sequence and closes when the client disconnects.
func EventsWebSocket(registry *store.Registry, bus *eventbus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		id, ch := bus.Subscribe()
		defer bus.Unsubscribe(id)
		slog.Info("websocket client connected", "subscriber", id)
		if m := observability.DefaultMetrics; m != nil {
			m.SubscriberConnected("websocket")
			defer m.SubscriberDisconnected("websocket")
		}

		if err := ws.WriteJSON(wsEvent{
			Type: "snapshot",
			Data: map[string]any{"tasks": registry.List()},
		}); err != nil {
			return
		}

		// Reads are discarded; their only purpose is noticing the close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				slog.Info("websocket client disconnected", "subscriber", id)
				return
			case ev := <-ch:
				if err := ws.WriteJSON(wsEvent{Type: string(ev.Type), Data: ev.Data}); err != nil {
					slog.Info("websocket write failed, dropping client", "subscriber", id, "error", err)
					return
				}
			}
		}
	}
}
