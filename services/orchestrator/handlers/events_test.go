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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

func TestStreamEventsSnapshotFirst(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()

	router := gin.New()
	router.GET("/api/events", StreamEvents(d.registry, d.bus))

	// A pre-cancelled request context: the handler writes the snapshot,
	// then exits its loop immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "event: snapshot\ndata: "), body)
	assert.Contains(t, body, "Comcast")
	assert.Contains(t, body, "Planet Fitness")
}

func TestEventsWebSocket(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()

	router := gin.New()
	router.GET("/api/events/ws", EventsWebSocket(d.registry, d.bus))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot wsEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	assert.Len(t, snapshot.Data["tasks"], 2)

	d.bus.Publish(datatypes.Event{
		Type: datatypes.EventTaskUpdated,
		Data: map[string]any{"message": "hello"},
	})

	var live wsEvent
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, string(datatypes.EventTaskUpdated), live.Type)
	assert.Equal(t, "hello", live.Data["message"])
}
