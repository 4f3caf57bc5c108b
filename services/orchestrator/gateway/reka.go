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

const rekaBaseURL = "https://api.reka.ai"

// BillReader is the Reka vision client. It reads bill and statement
// images for hidden fees, rate increases and negotiation leverage.
type BillReader struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewBillReader builds a Reka client.
func NewBillReader(apiKey string, log *slog.Logger) *BillReader {
	return &BillReader{
		apiKey:  apiKey,
		baseURL: rekaBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Available reports whether bill vision is configured.
func (b *BillReader) Available() bool { return b.apiKey != "" }

// rekaContent is one typed content part of a chat message.
type rekaContent map[string]string

func imagePart(url string) rekaContent { return rekaContent{"type": "image_url", "image_url": url} }
func pdfPart(url string) rekaContent   { return rekaContent{"type": "pdf_url", "pdf_url": url} }
func textPart(text string) rekaContent { return rekaContent{"type": "text", "text": text} }

func (b *BillReader) chat(ctx context.Context, parts []rekaContent) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": "reka-flash-3",
		"messages": []map[string]any{
			{"role": "user", "content": parts},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Api-Key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("reka status %d: %s", resp.StatusCode, raw)
	}

	var out struct {
		Responses []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Responses) == 0 {
		return "", fmt.Errorf("reka returned no responses")
	}
	return out.Responses[0].Message.Content, nil
}

// parseJSONResponse decodes a model reply, stripping markdown fences.
// Non-JSON replies come back under raw_analysis instead of failing.
func parseJSONResponse(content string) map[string]any {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```json") {
		text = text[7:]
	} else if strings.HasPrefix(text, "```") {
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return map[string]any{"raw_analysis": content}
	}
	return out
}

func rekaUnavailable() map[string]any {
	return map[string]any{"status": "reka_unavailable", "error": "Reka API key not configured"}
}

// AnalyzeBillImage extracts structured charges, fees and anomalies
// from a single bill image.
func (b *BillReader) AnalyzeBillImage(ctx context.Context, imageURL string) map[string]any {
	if !b.Available() {
		return rekaUnavailable()
	}
	content, err := b.chat(ctx, []rekaContent{
		imagePart(imageURL),
		textPart("Analyze this bill or statement image. Extract and return as JSON with these fields:\n" +
			`- "provider_name": string, the service provider` + "\n" +
			`- "total_amount": string, total amount due with $ sign` + "\n" +
			`- "line_items": array of {"description": string, "amount": string} for each charge` + "\n" +
			`- "fees": array of {"description": string, "amount": string} for surcharges, regulatory fees, taxes` + "\n" +
			`- "previous_amount": string or null, previous bill amount if visible` + "\n" +
			`- "price_change": string or null, increase/decrease amount if detectable` + "\n" +
			`- "promotional_expiry": string or null, any promo expiration dates` + "\n" +
			`- "hidden_fees": array of strings, any fees that seem unusual or recently added` + "\n" +
			"Return ONLY valid JSON, no markdown formatting."),
	})
	if err != nil {
		b.log.Error("bill analysis failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	return parseJSONResponse(content)
}

// CompareBills diffs two bills from the same provider, older first.
func (b *BillReader) CompareBills(ctx context.Context, oldImageURL, newImageURL string) map[string]any {
	if !b.Available() {
		return rekaUnavailable()
	}
	content, err := b.chat(ctx, []rekaContent{
		imagePart(oldImageURL),
		imagePart(newImageURL),
		textPart("Compare these two bills from the same provider (first is older, second is newer). " +
			"Return as JSON:\n" +
			`- "provider_name": string` + "\n" +
			`- "old_total": string with $` + "\n" +
			`- "new_total": string with $` + "\n" +
			`- "price_change": string with +/- and $` + "\n" +
			`- "change_percentage": string with %` + "\n" +
			`- "new_fees": array of strings for any new fees or charges added` + "\n" +
			`- "removed_discounts": array of strings for any discounts that expired` + "\n" +
			`- "action_recommended": string, what the consumer should do about changes` + "\n" +
			"Return ONLY valid JSON."),
	})
	if err != nil {
		b.log.Error("bill comparison failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	return parseJSONResponse(content)
}

// AnalyzeDocument reads a financial document (statement, contract,
// terms of service) for negotiation leverage.
func (b *BillReader) AnalyzeDocument(ctx context.Context, documentURL, docType string) map[string]any {
	if !b.Available() {
		return rekaUnavailable()
	}
	part := imagePart(documentURL)
	if docType == "pdf" {
		part = pdfPart(documentURL)
	}
	content, err := b.chat(ctx, []rekaContent{
		part,
		textPart("Analyze this financial document thoroughly. Extract as JSON:\n" +
			`- "document_type": string (bill, contract, terms, statement)` + "\n" +
			`- "provider_name": string` + "\n" +
			`- "monthly_charges": array of {"item": string, "amount": string}` + "\n" +
			`- "contract_term": string or null (e.g., "24 months")` + "\n" +
			`- "contract_expiry": string or null` + "\n" +
			`- "early_termination_fee": string or null` + "\n" +
			`- "promotional_rates": array of {"rate": string, "expires": string}` + "\n" +
			`- "consumer_leverage_points": array of strings (clauses that favor the consumer for negotiation)` + "\n" +
			"Return ONLY valid JSON."),
	})
	if err != nil {
		b.log.Error("document analysis failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	return parseJSONResponse(content)
}
