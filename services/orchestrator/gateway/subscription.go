// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Subscription billing context.
//
// Builds the analysis object injected into the user-consult prompt and
// returned by the get_subscription_analysis tool. Live rates come from
// the knowledge graph; the metadata catalog supplies what the graph
// does not store (phone numbers, anomaly notes, competitor rates,
// recommended actions). A local fallback covers runs without a graph.
package gateway

import (
	"context"
	"fmt"
	"strings"
)

// serviceMeta is supplemental per-service metadata, keyed by lowercase
// service name.
type serviceMeta struct {
	PhoneNumber       string
	Anomaly           string
	CompetitorNote    string
	UsageNote         string
	DayPassCost       float64
	RecommendedAction string
	TargetSavingsPct  float64
}

var serviceMetadata = map[string]serviceMeta{
	"comcast": {
		PhoneNumber:       "+18005551234",
		Anomaly:           "54% billing increase detected - promotional rate expired",
		CompetitorNote:    "T-Mobile 5G Home at $50/mo, AT&T Fiber at $55/mo",
		RecommendedAction: "negotiate_rate",
		TargetSavingsPct:  0.24,
	},
	"planet fitness": {
		PhoneNumber:       "+18005555678",
		Anomaly:           "Rate jumped from $10 to $25/mo (Black Card upgrade)",
		DayPassCost:       10.0,
		UsageNote:         "No check-ins detected in last 3 months",
		RecommendedAction: "cancel_service",
		TargetSavingsPct:  1.0,
	},
}

// fallbackSubscriptions is used only when the graph is unavailable.
var fallbackSubscriptions = []Subscription{
	{Service: "Comcast", ServiceType: "internet", MonthlyCost: 85.0, PreviousCost: floatPtr(55.0)},
	{Service: "Planet Fitness", ServiceType: "gym", MonthlyCost: 25.0, PreviousCost: floatPtr(10.0)},
}

func floatPtr(v float64) *float64 { return &v }

// EnrichedSubscription is one subscription with its analysis fields.
type EnrichedSubscription struct {
	Service           string   `json:"service"`
	ServiceType       string   `json:"service_type"`
	MonthlyCost       float64  `json:"monthly_cost"`
	PreviousCost      *float64 `json:"previous_cost,omitempty"`
	Anomaly           string   `json:"anomaly"`
	RecommendedAction string   `json:"recommended_action"`
	PhoneNumber       string   `json:"phone_number"`
	PotentialSavings  float64  `json:"potential_savings"`
	DayPassCost       *float64 `json:"day_pass_cost,omitempty"`
	CompetitorNote    string   `json:"competitor_note"`
	UsageNote         string   `json:"usage_note"`
}

// SubscriptionContext is the full billing analysis.
type SubscriptionContext struct {
	UserName              string                 `json:"user_name"`
	Subscriptions         []EnrichedSubscription `json:"subscriptions"`
	TotalMonthly          float64                `json:"total_monthly"`
	TotalPotentialSavings float64                `json:"total_potential_savings"`
	Source                string                 `json:"source"`
	SummaryText           string                 `json:"summary_text"`
}

// ProfileSource yields a user's active subscriptions. The Graph client
// satisfies it; an empty result triggers the local fallback.
type ProfileSource interface {
	SubscriptionProfile(ctx context.Context, userName string) []Subscription
}

// BuildSubscriptionContext assembles the billing context used both in
// the consult prompt and by the get_subscription_analysis tool.
func BuildSubscriptionContext(ctx context.Context, source ProfileSource, userName string) SubscriptionContext {
	if userName == "" {
		userName = "Neel"
	}
	raw := source.SubscriptionProfile(ctx, userName)
	origin := "neo4j"
	if len(raw) == 0 {
		origin = "fallback"
		raw = fallbackSubscriptions
	}

	subs := make([]EnrichedSubscription, 0, len(raw))
	var totalMonthly, totalSavings float64
	for _, s := range raw {
		enriched := enrich(s)
		subs = append(subs, enriched)
		totalMonthly += enriched.MonthlyCost
		totalSavings += enriched.PotentialSavings
	}

	return SubscriptionContext{
		UserName:              userName,
		Subscriptions:         subs,
		TotalMonthly:          totalMonthly,
		TotalPotentialSavings: totalSavings,
		Source:                origin,
		SummaryText:           summaryText(userName, totalMonthly, totalSavings, subs),
	}
}

func enrich(raw Subscription) EnrichedSubscription {
	meta := serviceMetadata[strings.ToLower(raw.Service)]

	savingsPct := meta.TargetSavingsPct
	if savingsPct == 0 {
		savingsPct = 0.20
	}

	anomaly := meta.Anomaly
	if anomaly == "" && raw.PreviousCost != nil && *raw.PreviousCost < raw.MonthlyCost {
		pct := (raw.MonthlyCost - *raw.PreviousCost) / *raw.PreviousCost * 100
		anomaly = fmt.Sprintf("%.1f%% rate increase detected ($%.0f to $%.0f)", pct, *raw.PreviousCost, raw.MonthlyCost)
	}

	action := meta.RecommendedAction
	if action == "" {
		action = "negotiate_rate"
	}
	phone := meta.PhoneNumber
	if phone == "" {
		phone = "+18005551234"
	}
	serviceType := raw.ServiceType
	if serviceType == "" {
		serviceType = "subscription"
	}

	out := EnrichedSubscription{
		Service:           raw.Service,
		ServiceType:       serviceType,
		MonthlyCost:       raw.MonthlyCost,
		PreviousCost:      raw.PreviousCost,
		Anomaly:           anomaly,
		RecommendedAction: action,
		PhoneNumber:       phone,
		PotentialSavings:  round2(raw.MonthlyCost * savingsPct),
		CompetitorNote:    meta.CompetitorNote,
		UsageNote:         meta.UsageNote,
	}
	if meta.DayPassCost > 0 {
		cost := meta.DayPassCost
		out.DayPassCost = &cost
	}
	return out
}

func summaryText(userName string, totalMonthly, totalSavings float64, subs []EnrichedSubscription) string {
	lines := []string{
		fmt.Sprintf("SUBSCRIPTION ANALYSIS FOR %s (live from knowledge graph)", strings.ToUpper(userName)),
		fmt.Sprintf("Total monthly spend: $%.0f/mo", totalMonthly),
		fmt.Sprintf("Identified potential savings: $%.0f/mo ($%.0f/yr)", totalSavings, totalSavings*12),
		"",
		"ISSUES FOUND:",
	}
	for _, s := range subs {
		line := fmt.Sprintf("- %s: $%.0f/mo", s.Service, s.MonthlyCost)
		if s.Anomaly != "" {
			line += " | " + s.Anomaly
		}
		if s.UsageNote != "" {
			line += " | " + s.UsageNote
		}
		if s.CompetitorNote != "" {
			line += " | Competitors: " + s.CompetitorNote
		}
		if s.DayPassCost != nil {
			line += fmt.Sprintf(" | Day pass: $%.0f", *s.DayPassCost)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// SubscriptionByService fuzzily looks up one enriched subscription by
// name, matching in either direction so "comcast internet" still finds
// "Comcast".
func SubscriptionByService(ctx context.Context, source ProfileSource, serviceName string) (EnrichedSubscription, bool) {
	sctx := BuildSubscriptionContext(ctx, source, "")
	nameLower := strings.ToLower(serviceName)
	for _, s := range sctx.Subscriptions {
		serviceLower := strings.ToLower(s.Service)
		if strings.Contains(nameLower, serviceLower) || strings.Contains(serviceLower, nameLower) {
			return s, true
		}
	}
	return EnrichedSubscription{}, false
}
