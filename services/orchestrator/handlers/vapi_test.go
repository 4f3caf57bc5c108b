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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Malformed payloads from the voice platform must still get HTTP 200;
// anything else stalls the live agent.
func TestHandleToolCallMalformed(t *testing.T) {
	d := newTestDeps(t)
	router := gin.New()
	router.POST("/api/vapi/tool-call", HandleToolCall(d.dispatcher))

	req := httptest.NewRequest(http.MethodPost, "/api/vapi/tool-call",
		strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())
}

func TestHandleToolCallDispatch(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()
	task := d.registry.List()[0]

	code, body := perform(t, http.MethodPost, "/api/vapi/tool-call", map[string]any{
		"message": map[string]any{
			"toolCallList": []map[string]any{{
				"id": "tc_1",
				"function": map[string]any{
					"name":      "search_task_context",
					"arguments": map[string]any{"task_id": task.ID},
				},
			}},
			"call": map[string]any{"id": "call_vapi01"},
		},
	}, func(r *gin.Engine) {
		r.POST("/api/vapi/tool-call", HandleToolCall(d.dispatcher))
	})
	require.Equal(t, http.StatusOK, code)

	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	result := results[0].(map[string]any)
	assert.Equal(t, "search_task_context", result["name"])
	assert.Equal(t, "tc_1", result["toolCallId"])
	assert.Contains(t, result["result"], task.Company)
	assert.NotContains(t, result["result"], "\n")
}

func TestHandleWebhookMalformed(t *testing.T) {
	d := newTestDeps(t)
	ing := newIngressForTest(d)
	router := gin.New()
	router.POST("/api/vapi/webhook", HandleWebhook(ing))

	req := httptest.NewRequest(http.MethodPost, "/api/vapi/webhook",
		bytes.NewReader([]byte("{bad")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleWebhookUnknownMessage(t *testing.T) {
	d := newTestDeps(t)
	ing := newIngressForTest(d)

	code, body := perform(t, http.MethodPost, "/api/vapi/webhook", map[string]any{
		"message": map[string]any{"type": "speech-update"},
	}, func(r *gin.Engine) {
		r.POST("/api/vapi/webhook", HandleWebhook(ing))
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}
