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

	"github.com/gin-gonic/gin"

	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

// GraphView returns the current knowledge graph for the dashboard
// force-directed view. Empty nodes/links when the graph store is down.
func GraphView(graph *gateway.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, graph.Data(c.Request.Context()))
	}
}

// Subscriptions returns the enriched billing analysis for a user:
// graph-backed subscription profile merged with catalog metadata and
// per-service savings estimates.
func Subscriptions(graph *gateway.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		userName := c.DefaultQuery("user", "Neel")
		c.JSON(http.StatusOK, gateway.BuildSubscriptionContext(c.Request.Context(), graph, userName))
	}
}
