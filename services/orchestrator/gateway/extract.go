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
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

// NegotiationResult is the structured outcome pulled from a full call
// transcript after the call ends.
type NegotiationResult struct {
	Company       string `json:"company"`
	OriginalRate  string `json:"original_rate"`
	NewRate       string `json:"new_rate"`
	Confirmation  string `json:"confirmation"`
	EffectiveDate string `json:"effective_date"`
	Duration      string `json:"duration"`
	Outcome       string `json:"outcome"`
}

// Extractor pulls financial entities and structured negotiation
// results out of transcripts through an OpenAI-compatible endpoint.
// A pattern-based pass covers the highest-value entity types when no
// endpoint is configured.
type Extractor struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// NewExtractor builds a transcript extractor. An empty apiKey yields a
// pattern-only extractor.
func NewExtractor(apiKey, baseURL, model string, log *slog.Logger) *Extractor {
	e := &Extractor{model: model, log: log}
	if apiKey == "" {
		log.Warn("EXTRACT_API_KEY not set, transcript extraction runs pattern-only")
		return e
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

// Available reports whether model-backed extraction is configured.
func (e *Extractor) Available() bool { return e.client != nil }

const negotiationExtractionPrompt = `Extract the structured negotiation outcome from this call transcript. Return ONLY valid JSON with fields:
- "company": service provider or company name
- "original_rate": original monthly rate before negotiation
- "new_rate": new negotiated monthly rate
- "confirmation": confirmation or reference number given by rep
- "effective_date": when the new rate takes effect
- "duration": how long the promotional rate lasts
- "outcome": one of "success", "partial", "failed"
Use empty strings for fields not present in the transcript.`

// ExtractNegotiationResult pulls the structured negotiation outcome
// from a full transcript. Returns false when extraction is not
// configured or failed.
func (e *Extractor) ExtractNegotiationResult(ctx context.Context, transcript string) (NegotiationResult, bool) {
	if !e.Available() {
		return NegotiationResult{}, false
	}
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: negotiationExtractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		e.log.Error("negotiation extraction failed", "error", err)
		return NegotiationResult{}, false
	}
	if len(resp.Choices) == 0 {
		return NegotiationResult{}, false
	}

	var result NegotiationResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		e.log.Error("negotiation extraction returned invalid json", "error", err)
		return NegotiationResult{}, false
	}
	return result, true
}

// =============================================================================
// Pattern fallback
// =============================================================================

var (
	confirmationPattern = regexp.MustCompile(`\b(?:CNF|XR|REF|CONF)[-_ ]?\d{4}[-_]?[0-9A-F]{0,4}\b`)
	dollarPattern       = regexp.MustCompile(`\$\d+(?:\.\d{2})?`)
	accountPattern      = regexp.MustCompile(`\baccount (?:number )?(?:is )?([0-9]{6,12})\b`)
)

// ExtractEntities runs the pattern pass over a transcript chunk and
// returns typed entities for the live dashboard. The extract_entities
// tool routes through here mid-call, where a model round-trip would be
// too slow anyway.
func (e *Extractor) ExtractEntities(text, callID string) []datatypes.ExtractedEntity {
	var out []datatypes.ExtractedEntity
	add := func(entityType datatypes.EntityType, value string) {
		out = append(out, datatypes.ExtractedEntity{
			EntityType: entityType,
			Value:      value,
			Context:    snippet(text),
			CallID:     callID,
		})
	}

	for _, m := range confirmationPattern.FindAllString(text, -1) {
		add(datatypes.EntityConfirmationNumber, m)
	}
	for _, m := range dollarPattern.FindAllString(text, -1) {
		add(datatypes.EntityDollarAmount, m)
	}
	for _, m := range accountPattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		add(datatypes.EntityAccountNumber, m[1])
	}
	return out
}

func snippet(text string) string {
	if len(text) > 120 {
		return text[:120]
	}
	return text
}
