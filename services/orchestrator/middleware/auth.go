// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the backend.
//
// # Demo Guard
//
// The public demo runs on shared infrastructure where a stray crawler
// hitting the run endpoints would place calls and burn API quota. The
// guard protects the costly POST endpoints with a shared secret in the
// X-Demo-Secret header:
//
//	Request
//	   │
//	   ▼
//	DemoGuard
//	   │
//	   ├─► secret unset            ─► pass (local development)
//	   ├─► header matches secret   ─► pass
//	   └─► otherwise               ─► 403
//
// Read-only endpoints and the voice platform callbacks are never
// guarded; Vapi cannot send custom headers.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecretHeader carries the shared demo secret.
const SecretHeader = "X-Demo-Secret"

// DemoGuard rejects requests whose X-Demo-Secret header does not match
// the configured secret. An empty secret disables the guard entirely.
func DemoGuard(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "demo secret required",
			})
			return
		}
		c.Next()
	}
}
