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

// Knowledge is the Senso grounded-knowledge client. It holds the
// ingested compliance docs and answers verified-context queries
// before and during calls.
type Knowledge struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewKnowledge builds a Senso client.
func NewKnowledge(apiKey, baseURL string, log *slog.Logger) *Knowledge {
	return &Knowledge{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// Available reports whether the knowledge base is configured.
func (k *Knowledge) Available() bool { return k.apiKey != "" }

func (k *Knowledge) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", k.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("senso status %d: %s", resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ingest uploads one compliance doc or resolution script.
func (k *Knowledge) Ingest(ctx context.Context, title, text string) map[string]any {
	if !k.Available() {
		return map[string]any{"status": "senso_unavailable"}
	}
	var out map[string]any
	err := k.post(ctx, "/content/raw", map[string]any{
		"title": title, "summary": title, "text": text,
	}, &out)
	if err != nil {
		k.log.Error("knowledge ingest failed", "title", title, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return out
}

// Search queries the verified knowledge base. The answer is a single
// line with up to two source titles appended, or empty when the base
// is unavailable or has nothing relevant.
func (k *Knowledge) Search(ctx context.Context, query string, maxResults int) string {
	if !k.Available() {
		return ""
	}
	var out struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	err := k.post(ctx, "/search", map[string]any{
		"query": query, "max_results": maxResults,
	}, &out)
	if err != nil {
		k.log.Error("knowledge search failed", "error", err)
		return ""
	}

	answer := out.Answer
	if len(out.Results) > 0 {
		titles := make([]string, 0, 2)
		for _, r := range out.Results {
			if len(titles) == 2 {
				break
			}
			titles = append(titles, r.Title)
		}
		answer = fmt.Sprintf("%s [Sources: %s]", answer, strings.Join(titles, " | "))
	}
	return strings.TrimSpace(strings.ReplaceAll(answer, "\n", " "))
}

// GenerateScript asks for a call script grounded in the ingested docs.
func (k *Knowledge) GenerateScript(ctx context.Context, company, action, context_ string) string {
	if !k.Available() {
		return ""
	}
	instructions := fmt.Sprintf(
		"Generate a professional phone call script for a representative calling "+
			"%s to %s. "+
			"The script should be concise, cite specific policies where available, "+
			"and include fallback strategies if the first approach is refused. "+
			"Additional context: %s",
		company, strings.ReplaceAll(action, "_", " "), context_)

	var out struct {
		Content string `json:"content"`
	}
	err := k.post(ctx, "/generate", map[string]any{
		"content_type": "call_script",
		"instructions": instructions,
		"max_results":  3,
	}, &out)
	if err != nil {
		k.log.Error("script generation failed", "error", err)
		return ""
	}
	return out.Content
}

// ClassifyThreat runs a text snippet through the trigger classifier.
func (k *Knowledge) ClassifyThreat(ctx context.Context, text string) string {
	if !k.Available() {
		return "unknown"
	}
	var out struct {
		Classification string `json:"classification"`
	}
	if err := k.post(ctx, "/triggers", map[string]any{"text": text}, &out); err != nil {
		k.log.Error("threat classification failed", "error", err)
		return "unknown"
	}
	return out.Classification
}

// SeedComplianceDocs ingests the startup knowledge pack: the retention
// playbook, the cancellation policy and the generic negotiation
// framework the call scripts lean on.
func (k *Knowledge) SeedComplianceDocs(ctx context.Context) {
	if !k.Available() {
		k.log.Warn("SENSO_API_KEY not set, grounded knowledge disabled")
		return
	}
	docs := []struct{ title, text string }{
		{
			title: "Comcast Retention Playbook",
			text: "Comcast retention department has authority to offer: 1) Promotional rate " +
				"matching for existing customers, typically $20-30/month discount for 12 months. " +
				"2) Free speed upgrade to match competitor offerings. 3) Waived equipment fees " +
				"for 6-12 months. Key leverage: mention T-Mobile 5G Home Internet at $50/month " +
				"or AT&T Fiber promotional rates. If first rep refuses, ask to speak with " +
				"retention specialist. Average call time: 15-25 minutes. Success rate for " +
				"rate reduction: approximately 73% when competitor rates are cited.",
		},
		{
			title: "Planet Fitness Cancellation Policy",
			text: "Planet Fitness cancellation requires: 1) Written letter sent to home club via " +
				"certified mail, OR 2) In-person visit to home club to fill out cancellation form. " +
				"Phone cancellation is NOT officially supported but some clubs accept it when " +
				"pressed. Annual fee ($49) is non-refundable if charged within 30 days. " +
				"Monthly dues stop after next billing cycle. If calling: request manager, " +
				"cite FTC guidelines on subscription cancellation, reference your state's " +
				"consumer protection laws. Keep confirmation number and rep name.",
		},
		{
			title: "General Bill Negotiation Framework",
			text: "Step 1: State current rate and desired rate clearly. " +
				"Step 2: Cite specific competitor offers with prices. " +
				"Step 3: If refused, ask to speak with retention/loyalty department. " +
				"Step 4: If still refused, state intent to cancel service. " +
				"Step 5: Accept any counter-offer within 15% of target rate. " +
				"Step 6: Always get confirmation number and effective date. " +
				"Step 7: Verify changes will appear on next billing statement. " +
				"Key phrases: 'I've been a loyal customer for X years', " +
				"'I've found a better rate with [competitor]', " +
				"'Can you match this offer or should I proceed with cancellation?'",
		},
	}
	for _, doc := range docs {
		result := k.Ingest(ctx, doc.title, doc.text)
		k.log.Info("knowledge doc ingested", "title", doc.title, "result", result)
	}
}
