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
)

func TestRunDemoSeedsEmptyRegistry(t *testing.T) {
	d := newTestDeps(t)

	code, body := perform(t, http.MethodPost, "/api/demo/run", nil, func(r *gin.Engine) {
		r.POST("/api/demo/run", RunDemo(d.registry, d.bus, d.orch))
	})
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "started", body["status"])
	assert.Len(t, body["task_ids"], 2)

	d.orch.Wait()
	for _, task := range d.registry.List() {
		assert.Equal(t, datatypes.StatusCompleted, task.Status, task.Company)
		require.NotNil(t, task.Savings)
		assert.Greater(t, *task.Savings, 0.0)
	}
}

func TestResetDemo(t *testing.T) {
	d := newTestDeps(t)
	_, err := d.registry.Create(datatypes.TaskCreate{
		Company: "Spectrum", Action: datatypes.ActionNegotiateRate, PhoneNumber: "+18005559999",
	})
	require.NoError(t, err)

	code, body := perform(t, http.MethodPost, "/api/demo/reset", nil, func(r *gin.Engine) {
		r.POST("/api/demo/reset", ResetDemo(d.registry, d.bus, d.graph))
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "reset", body["status"])
	assert.Equal(t, float64(2), body["tasks"])

	// Reset restores the seed tasks, dropping the extra one.
	assert.Len(t, d.registry.List(), 2)
}

func TestDemoStats(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()
	task := d.registry.List()[0]
	_, err := d.registry.Update(task.ID, datatypes.TaskUpdate{
		Status:  datatypes.StatusPtr(datatypes.StatusCompleted),
		Savings: datatypes.Float(20.0),
	})
	require.NoError(t, err)

	code, body := perform(t, http.MethodGet, "/api/demo/stats", nil, func(r *gin.Engine) {
		r.GET("/api/demo/stats", DemoStats(d.registry, d.graph))
	})
	require.Equal(t, http.StatusOK, code)

	tasks := body["tasks"].(map[string]any)
	assert.Equal(t, float64(2), tasks["total"])
	assert.Equal(t, float64(1), tasks["completed"])
	assert.Equal(t, float64(1), tasks["pending"])

	savings := body["savings"].(map[string]any)
	assert.Equal(t, 20.0, savings["monthly"])
	assert.Equal(t, 240.0, savings["annual"])

	// The unconfigured graph still serves its local seed data.
	graph := body["graph"].(map[string]any)
	assert.Greater(t, graph["nodes"], float64(0))
}

func TestRunConsultDemo(t *testing.T) {
	d := newTestDeps(t)

	code, body := perform(t, http.MethodPost, "/api/demo/user-consult",
		map[string]any{"user_name": "Dana"}, func(r *gin.Engine) {
			r.POST("/api/demo/user-consult", RunConsultDemo(d.registry, d.bus, d.orch))
		})
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "started", body["status"])
	taskID := body["task_id"].(string)
	assert.Contains(t, body["call_id"], "consult_")

	d.orch.Wait()
	task, err := d.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionConsultUser, task.Action)
	assert.Equal(t, datatypes.StatusCompleted, task.Status)
}

func TestRunFullDemoCreatesDefaultTask(t *testing.T) {
	d := newTestDeps(t)

	code, body := perform(t, http.MethodPost, "/api/demo/full", nil, func(r *gin.Engine) {
		r.POST("/api/demo/full", RunFullDemo(d.registry, d.bus, d.orch))
	})
	require.Equal(t, http.StatusAccepted, code)

	d.orch.Wait()
	task, err := d.registry.Get(body["task_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Comcast", task.Company)

	// The full demo hands off to a live call, so the task stays in the
	// calling state with a call linked.
	assert.Equal(t, datatypes.StatusCalling, task.Status)
	assert.NotEmpty(t, task.CallID)
}
