// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"fmt"
	"strings"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
	"github.com/haggleai/haggle/services/orchestrator/gateway"
)

// Summary generates the first-person agent narrative for a completed
// call. Competitor mentions found in the research context are cited as
// negotiation leverage.
func Summary(action datatypes.TaskAction, company, userName string, oldRate, newRate, savings float64, confirmation, researchContext string) gateway.AgentSummary {
	switch action {
	case datatypes.ActionNegotiateRate:
		return negotiationSummary(company, userName, oldRate, newRate, savings, confirmation, researchContext)
	case datatypes.ActionCancelService:
		return cancellationSummary(company, userName, savings, confirmation)
	default:
		return gateway.AgentSummary{
			Narrative: fmt.Sprintf(
				"I completed the %s task for %s on behalf of %s. Confirmation: %s.",
				strings.ReplaceAll(string(action), "_", " "), company, userName, confirmation),
			KeyPoints: []string{
				fmt.Sprintf("Task completed for %s", company),
				fmt.Sprintf("Confirmation #%s", confirmation),
			},
		}
	}
}

func negotiationSummary(company, userName string, oldRate, newRate, savings float64, confirmation, researchContext string) gateway.AgentSummary {
	var competitors []string
	lower := strings.ToLower(researchContext)
	if strings.Contains(lower, "t-mobile") {
		competitors = append(competitors, "T-Mobile 5G Home Internet at $50/mo")
	}
	if strings.Contains(lower, "at&t") {
		competitors = append(competitors, "AT&T Fiber at $55/mo")
	}
	if strings.Contains(lower, "verizon") {
		competitors = append(competitors, "Verizon FiOS at $49.99/mo")
	}

	competitorClause := ""
	leveragePoint := "Presented rate reduction request"
	if len(competitors) > 0 {
		competitorClause = fmt.Sprintf(
			" I cited %s as leverage to negotiate from a position of strength.",
			strings.Join(competitors, ", "))
		leveragePoint = "Cited competitor pricing as negotiation leverage"
	}

	narrative := fmt.Sprintf(
		"I called %s on behalf of %s and reached the customer retention department. "+
			"The representative confirmed the rate increase was due to a promotional period expiration.%s "+
			"After negotiation, %s applied a 12-month loyalty discount, reducing the monthly bill "+
			"from $%.0f to $%.0f, saving $%.0f/month ($%.0f/year). "+
			"Confirmation number %s was issued and the new rate takes effect next billing cycle.",
		company, userName, competitorClause, company,
		oldRate, newRate, savings, savings*12, confirmation)

	return gateway.AgentSummary{
		Narrative: narrative,
		KeyPoints: []string{
			fmt.Sprintf("Connected with %s retention department", company),
			leveragePoint,
			fmt.Sprintf("Secured $%.0f/month reduction, from $%.0f to $%.0f", savings, oldRate, newRate),
			"12-month loyalty discount applied",
			fmt.Sprintf("Confirmation #%s issued", confirmation),
		},
	}
}

func cancellationSummary(company, userName string, savings float64, confirmation string) gateway.AgentSummary {
	narrative := fmt.Sprintf(
		"I called %s on behalf of %s to process a membership cancellation. "+
			"The representative offered a reduced rate to retain the account, but I confirmed the decision to cancel. "+
			"The membership will end at the close of the current billing cycle with no further charges, "+
			"saving $%.0f/month ($%.0f/year). "+
			"Confirmation number %s was issued.",
		company, userName, savings, savings*12, confirmation)

	return gateway.AgentSummary{
		Narrative: narrative,
		KeyPoints: []string{
			fmt.Sprintf("Called %s and requested cancellation", company),
			"Declined retention offer",
			"Cancellation confirmed, ends current billing cycle",
			fmt.Sprintf("No further charges, saves $%.0f/month ($%.0f/year)", savings, savings*12),
			fmt.Sprintf("Confirmation #%s issued", confirmation),
		},
	}
}
