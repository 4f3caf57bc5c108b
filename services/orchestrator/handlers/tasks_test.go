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

func TestListTasks(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()

	code, body := perform(t, http.MethodGet, "/api/tasks", nil, func(r *gin.Engine) {
		r.GET("/api/tasks", ListTasks(d.registry))
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
}

func TestGetTask(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()
	task := d.registry.List()[0]

	register := func(r *gin.Engine) {
		r.GET("/api/tasks/:taskId", GetTask(d.registry))
	}

	code, body := perform(t, http.MethodGet, "/api/tasks/"+task.ID, nil, register)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, task.ID, body["id"])
	assert.Equal(t, task.Company, body["company"])

	code, _ = perform(t, http.MethodGet, "/api/tasks/task_missing", nil, register)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateTask(t *testing.T) {
	d := newTestDeps(t)
	register := func(r *gin.Engine) {
		r.POST("/api/tasks", CreateTask(d.registry, d.bus))
	}

	code, body := perform(t, http.MethodPost, "/api/tasks", map[string]any{
		"company":      "Spectrum",
		"action":       "negotiate_rate",
		"phone_number": "+18005559999",
		"current_rate": 90.0,
		"target_rate":  70.0,
	}, register)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Spectrum", body["company"])
	assert.Equal(t, string(datatypes.StatusPending), body["status"])
	assert.Len(t, d.registry.List(), 1)

	// Missing required fields.
	code, _ = perform(t, http.MethodPost, "/api/tasks", map[string]any{
		"company": "Spectrum",
	}, register)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTriggerTask(t *testing.T) {
	d := newTestDeps(t)
	d.registry.SeedDemoTasks()
	task := d.registry.List()[0]

	register := func(r *gin.Engine) {
		r.POST("/api/tasks/:taskId/run", TriggerTask(d.registry, d.orch))
	}

	code, _ := perform(t, http.MethodPost, "/api/tasks/task_missing/run", nil, register)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := perform(t, http.MethodPost, "/api/tasks/"+task.ID+"/run", nil, register)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, task.ID, body["task_id"])

	d.orch.Wait()
	done, err := d.registry.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, done.Status)

	// A completed task cannot be re-triggered.
	code, _ = perform(t, http.MethodPost, "/api/tasks/"+task.ID+"/run", nil, register)
	assert.Equal(t, http.StatusConflict, code)
}
