// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultFramePrompt = "Extract any financial announcements visible in this image: " +
	"rate changes, price increases, billing updates, service announcements, " +
	"stock movements, or economic data. Return structured JSON with fields: " +
	"company, change_type (rate_increase/rate_decrease/new_fee/announcement), " +
	"old_value, new_value, summary. If no financial data is visible, " +
	"return {\"financial_data\": false}."

// Vision is the Overshoot vision AI client. It watches financial news
// frames for rate-change announcements. The vendor ships a TypeScript
// SDK only, so this talks to the REST API directly.
type Vision struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewVision builds an Overshoot client.
func NewVision(apiKey, baseURL string, log *slog.Logger) *Vision {
	return &Vision{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Available reports whether vision monitoring is configured.
func (v *Vision) Available() bool { return v.apiKey != "" }

// AnalyzeFrame runs one image through the vision model.
func (v *Vision) AnalyzeFrame(ctx context.Context, imageURL, prompt string) map[string]any {
	if !v.Available() {
		return map[string]any{"status": "overshoot_unavailable"}
	}
	if prompt == "" {
		prompt = defaultFramePrompt
	}

	body, err := json.Marshal(map[string]any{
		"image_url": imageURL,
		"prompt":    prompt,
		"model":     "qwen3-vl-30b",
	})
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Error("frame analysis failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("overshoot status %d: %s", resp.StatusCode, raw)
		v.log.Error("frame analysis failed", "error", err)
		return map[string]any{"error": err.Error()}
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}

// MonitorBroadcast analyzes a broadcast frame and returns any
// financial events found. The demo passes a screenshot URL rather
// than a live stream.
func (v *Vision) MonitorBroadcast(ctx context.Context, videoSource string) []map[string]any {
	if !v.Available() {
		v.log.Debug("OVERSHOOT_API_KEY not set, vision monitoring disabled")
		return []map[string]any{}
	}

	result := v.AnalyzeFrame(ctx, videoSource, "")
	if _, failed := result["error"]; failed {
		return []map[string]any{}
	}

	data, hasInner := result["result"]
	if !hasInner {
		data = any(result)
	}

	events := []map[string]any{}
	switch d := data.(type) {
	case map[string]any:
		if fd, ok := d["financial_data"].(bool); !ok || fd {
			events = append(events, map[string]any{
				"source":       "overshoot_vision",
				"raw":          d,
				"video_source": videoSource,
			})
		}
	case string:
		if !strings.Contains(strings.ToLower(d), "financial_data") {
			events = append(events, map[string]any{
				"source":       "overshoot_vision",
				"raw":          d,
				"video_source": videoSource,
			})
		}
	}
	return events
}

// DemoDetection is the pre-built detection used when the API is not
// configured, keeping the demo flow deterministic.
func DemoDetection() map[string]any {
	return map[string]any{
		"source":  "overshoot_vision",
		"type":    "BILLING_INCREASE",
		"company": "Comcast",
		"summary": "Overshoot Vision AI detected Comcast rate increase announcement on financial broadcast",
		"details": map[string]any{
			"change_type": "rate_increase",
			"old_value":   "$55/month",
			"new_value":   "$85/month",
			"confidence":  0.94,
		},
	}
}
