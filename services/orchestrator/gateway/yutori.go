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
	"context"
	"fmt"
	"log/slog"
)

// Scout monitor types.
const (
	MonitorPriceChange  = "price_change"
	MonitorPolicyUpdate = "policy_update"
	MonitorNewFees      = "new_fees"
)

// ScoutDetection is a normalized scout webhook payload: a price
// change, policy update or new fee found on a provider's site.
type ScoutDetection struct {
	Provider      string         `json:"provider"`
	DetectionType string         `json:"detection_type"`
	Details       map[string]any `json:"details"`
	Confidence    float64        `json:"confidence"`
	ScreenshotURL string         `json:"screenshot_url,omitempty"`
}

// Scouts is the Yutori proactive web monitoring client. Without an API
// key it simulates a scout sweep with a one-off web search.
type Scouts struct {
	apiKey   string
	searcher *Searcher
	log      *slog.Logger
}

// NewScouts builds a scout client backed by the searcher for fallback
// sweeps.
func NewScouts(apiKey string, searcher *Searcher, log *slog.Logger) *Scouts {
	return &Scouts{apiKey: apiKey, searcher: searcher, log: log}
}

// Available reports whether persistent scouts are configured.
func (s *Scouts) Available() bool { return s.apiKey != "" }

// CreateScout registers a persistent monitor on a provider's site.
// Without credentials it runs a single search sweep instead, so the
// monitoring surface stays demonstrable.
func (s *Scouts) CreateScout(ctx context.Context, provider, providerURL, monitorType string) map[string]any {
	if !s.Available() {
		s.log.Info("scouts not configured, using search fallback", "provider", provider)
		return s.fallbackMonitor(ctx, provider, monitorType)
	}

	// TODO: wire to the Scout API once production credentials land.
	return map[string]any{
		"status":  "yutori_pending",
		"message": "API integration ready - awaiting credentials",
	}
}

// ListScouts lists active scouts. Empty without credentials.
func (s *Scouts) ListScouts(ctx context.Context) []map[string]any {
	return []map[string]any{}
}

// HandleScoutWebhook normalizes an incoming scout detection payload.
func HandleScoutWebhook(payload map[string]any) ScoutDetection {
	detection := ScoutDetection{
		Provider:      "Unknown",
		DetectionType: "unknown",
		Details:       map[string]any{},
	}
	if p, ok := payload["provider"].(string); ok && p != "" {
		detection.Provider = p
	}
	if t, ok := payload["detection_type"].(string); ok && t != "" {
		detection.DetectionType = t
	}
	if d, ok := payload["details"].(map[string]any); ok {
		detection.Details = d
	}
	if c, ok := payload["confidence"].(float64); ok {
		detection.Confidence = c
	}
	if u, ok := payload["screenshot_url"].(string); ok {
		detection.ScreenshotURL = u
	}
	return detection
}

func (s *Scouts) fallbackMonitor(ctx context.Context, provider, monitorType string) map[string]any {
	var query string
	switch monitorType {
	case MonitorPriceChange:
		query = fmt.Sprintf("%s price increase rate change 2025", provider)
	case MonitorPolicyUpdate:
		query = fmt.Sprintf("%s policy change cancellation update 2025", provider)
	case MonitorNewFees:
		query = fmt.Sprintf("%s new fees surcharges added 2025", provider)
	default:
		query = fmt.Sprintf("%s %s 2025", provider, monitorType)
	}

	return map[string]any{
		"source":       "tavily_fallback",
		"provider":     provider,
		"monitor_type": monitorType,
		"result":       s.searcher.Search(ctx, query),
	}
}
