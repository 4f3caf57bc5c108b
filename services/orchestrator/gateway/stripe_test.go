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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

func TestDetectAnomalies(t *testing.T) {
	charges := []*stripe.Charge{
		{Description: "Comcast", Amount: 5500, Created: 1000},
		{Description: "Comcast", Amount: 8500, Created: 2000},
		{Description: "Spotify", Amount: 1099, Created: 1500},
		{Description: "Spotify", Amount: 1099, Created: 1500 + 3600},
	}

	anomalies := detectAnomalies(charges)
	require.Len(t, anomalies, 2)

	assert.Equal(t, AnomalyBillingIncrease, anomalies[0].Type)
	assert.Equal(t, "Comcast", anomalies[0].Merchant)
	assert.Equal(t, 55.0, anomalies[0].OldAmount)
	assert.Equal(t, 85.0, anomalies[0].NewAmount)
	assert.InDelta(t, 54.5, anomalies[0].IncreasePct, 0.1)

	assert.Equal(t, AnomalyDuplicateCharge, anomalies[1].Type)
	assert.Equal(t, "Spotify", anomalies[1].Merchant)
	assert.Equal(t, 10.99, anomalies[1].Amount)
}

func TestDetectAnomalies_MerchantFallbacks(t *testing.T) {
	// Statement descriptor stands in when the description is empty, and
	// a lone charge never flags.
	charges := []*stripe.Charge{
		{StatementDescriptor: "PLANET FIT", Amount: 2500, Created: 1000},
		{StatementDescriptor: "PLANET FIT", Amount: 3500, Created: 2000},
		{Description: "Netflix", Amount: 1599, Created: 1500},
	}

	anomalies := detectAnomalies(charges)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "PLANET FIT", anomalies[0].Merchant)
}

func TestDetectBillingAnomaliesUnconfigured(t *testing.T) {
	b := NewBilling("", slog.Default())

	assert.False(t, b.Available())
	assert.Empty(t, b.DetectBillingAnomalies(context.Background(), 90))
}
