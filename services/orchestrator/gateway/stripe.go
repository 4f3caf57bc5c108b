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
	"log/slog"
	"sort"
	"time"

	"github.com/stripe/stripe-go/v84"
)

// Anomaly detection types.
const (
	AnomalyBillingIncrease = "BILLING_INCREASE"
	AnomalyDuplicateCharge = "DUPLICATE_CHARGE"
	AnomalyRateIncrease    = "RATE_INCREASE"
)

// BillingAnomaly is one detected charge anomaly.
type BillingAnomaly struct {
	Type           string  `json:"type"`
	Merchant       string  `json:"merchant"`
	OldAmount      float64 `json:"old_amount,omitempty"`
	NewAmount      float64 `json:"new_amount,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	IncreasePct    float64 `json:"increase_pct,omitempty"`
	Classification string  `json:"classification,omitempty"`
	DetectedAt     float64 `json:"detected_at"`
	Source         string  `json:"source,omitempty"`
}

// Billing is the Stripe charge monitor. It pulls recent charges and
// flags rate hikes and duplicate charges.
type Billing struct {
	sc  *stripe.Client
	log *slog.Logger
}

// NewBilling builds a Stripe monitor.
func NewBilling(apiKey string, log *slog.Logger) *Billing {
	b := &Billing{log: log}
	if apiKey != "" {
		b.sc = stripe.NewClient(apiKey)
	}
	return b
}

// Available reports whether charge monitoring is configured.
func (b *Billing) Available() bool { return b.sc != nil }

func (b *Billing) recentCharges(ctx context.Context, days int) ([]*stripe.Charge, error) {
	params := &stripe.ChargeListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: time.Now().Unix() - int64(days)*86400,
		},
	}
	params.Limit = stripe.Int64(50)

	var charges []*stripe.Charge
	for charge, err := range b.sc.V1Charges.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		charges = append(charges, charge)
	}
	b.log.Info("fetched stripe charges", "count", len(charges), "days", days)
	return charges, nil
}

// DetectBillingAnomalies analyzes recent charges for rate hikes (a
// charge more than 10% above the previous one from the same merchant)
// and duplicate charges (same amount within 48 hours).
func (b *Billing) DetectBillingAnomalies(ctx context.Context, days int) []BillingAnomaly {
	if !b.Available() {
		b.log.Debug("STRIPE_API_KEY not set, charge monitoring disabled")
		return []BillingAnomaly{}
	}
	charges, err := b.recentCharges(ctx, days)
	if err != nil {
		b.log.Error("stripe charge fetch failed", "error", err)
		return []BillingAnomaly{}
	}
	anomalies := detectAnomalies(charges)
	b.log.Info("billing anomaly scan done", "anomalies", len(anomalies))
	return anomalies
}

func detectAnomalies(charges []*stripe.Charge) []BillingAnomaly {
	byMerchant := make(map[string][]*stripe.Charge)
	var merchants []string
	for _, c := range charges {
		merchant := c.Description
		if merchant == "" {
			merchant = c.StatementDescriptor
		}
		if merchant == "" {
			merchant = "unknown"
		}
		if _, seen := byMerchant[merchant]; !seen {
			merchants = append(merchants, merchant)
		}
		byMerchant[merchant] = append(byMerchant[merchant], c)
	}
	sort.Strings(merchants)

	now := float64(time.Now().Unix())
	anomalies := []BillingAnomaly{}
	for _, merchant := range merchants {
		mc := byMerchant[merchant]
		if len(mc) < 2 {
			continue
		}
		sort.Slice(mc, func(i, j int) bool { return mc[i].Created < mc[j].Created })

		last := float64(mc[len(mc)-1].Amount) / 100
		prev := float64(mc[len(mc)-2].Amount) / 100
		if last > prev*1.10 {
			anomalies = append(anomalies, BillingAnomaly{
				Type:        AnomalyBillingIncrease,
				Merchant:    merchant,
				OldAmount:   prev,
				NewAmount:   last,
				IncreasePct: round1((last - prev) / prev * 100),
				DetectedAt:  now,
			})
		}

		for i := 0; i < len(mc)-1; i++ {
			if mc[i+1].Created-mc[i].Created < 172800 && mc[i].Amount == mc[i+1].Amount {
				anomalies = append(anomalies, BillingAnomaly{
					Type:       AnomalyDuplicateCharge,
					Merchant:   merchant,
					Amount:     float64(mc[i].Amount) / 100,
					DetectedAt: now,
				})
				break
			}
		}
	}
	return anomalies
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
