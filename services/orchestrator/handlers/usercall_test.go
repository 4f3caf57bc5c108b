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
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

func TestTriggerUserCallSimulated(t *testing.T) {
	d := newTestDeps(t)
	voice := gateway.NewVoice("", "", "", nil, "", slog.Default())

	code, body := perform(t, http.MethodPost, "/api/user/call",
		map[string]any{"user_name": "Dana"}, func(r *gin.Engine) {
			r.POST("/api/user/call", TriggerUserCall(
				d.registry, d.bus, d.orch, voice, d.graph, "+15551230000"))
		})
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "simulated", body["status"])
	assert.Contains(t, body["call_id"], "consult_")

	taskID := body["task_id"].(string)
	d.orch.Wait()

	task, err := d.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionConsultUser, task.Action)
	assert.Equal(t, "Dana", task.UserName)
	assert.Equal(t, datatypes.StatusCompleted, task.Status)

	// The billing summary from the graph context lands in the notes.
	assert.NotEmpty(t, task.Notes)
}
