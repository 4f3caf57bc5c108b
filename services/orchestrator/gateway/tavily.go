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

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

const tavilyBaseURL = "https://api.tavily.com"

// Research is the outcome of pre-call web research.
type Research struct {
	Context string   `json:"context"`
	Sources []string `json:"sources"`
}

// Searcher is the Tavily web search client. An empty API key disables
// it; Search then returns an explanatory fallback line.
type Searcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewSearcher builds a Tavily client.
func NewSearcher(apiKey string, log *slog.Logger) *Searcher {
	if apiKey == "" {
		log.Warn("TAVILY_API_KEY not set, search features disabled")
	}
	return &Searcher{
		apiKey:  apiKey,
		baseURL: tavilyBaseURL,
		client:  &http.Client{Timeout: 20 * time.Second},
		log:     log,
	}
}

// Available reports whether search is configured.
func (s *Searcher) Available() bool { return s.apiKey != "" }

type tavilyRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
	Topic         string `json:"topic,omitempty"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *Searcher) search(ctx context.Context, req tavilyRequest) (*tavilyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily status %d: %s", resp.StatusCode, raw)
	}
	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search answers a mid-call query. The result is always a single line;
// the voice platform breaks on embedded newlines.
func (s *Searcher) Search(ctx context.Context, query string) string {
	if !s.Available() {
		return "Web search unavailable. Query was: " + query
	}
	resp, err := s.search(ctx, tavilyRequest{
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    3,
		IncludeAnswer: true,
		Topic:         "general",
	})
	if err != nil {
		s.log.Error("search failed", "error", err)
		return "Search failed: " + err.Error()
	}

	answer := resp.Answer
	if answer == "" && len(resp.Results) > 0 {
		top := resp.Results[0]
		content := top.Content
		if len(content) > 300 {
			content = content[:300]
		}
		answer = top.Title + ": " + content
	}
	return strings.TrimSpace(strings.ReplaceAll(answer, "\n", " "))
}

// ResearchQuery builds the pre-call query for a task action.
func ResearchQuery(company string, action datatypes.TaskAction, serviceType string) string {
	switch action {
	case datatypes.ActionCancelService:
		return fmt.Sprintf("%s cancellation policy 2025 how to cancel", company)
	case datatypes.ActionNegotiateRate:
		return fmt.Sprintf("%s competitor rates %s 2025 retention deals", company, serviceType)
	case datatypes.ActionUpdateStatus:
		return fmt.Sprintf("%s account status check policy", company)
	default:
		return fmt.Sprintf("%s customer service tips 2025", company)
	}
}

// ResearchForTask runs the deeper pre-call search and returns the
// summary plus up to three source URLs.
func (s *Searcher) ResearchForTask(ctx context.Context, company string, action datatypes.TaskAction, serviceType string) Research {
	if !s.Available() {
		return Research{Context: "Research unavailable", Sources: []string{}}
	}
	resp, err := s.search(ctx, tavilyRequest{
		Query:         ResearchQuery(company, action, serviceType),
		SearchDepth:   "advanced",
		MaxResults:    5,
		IncludeAnswer: true,
	})
	if err != nil {
		s.log.Error("research failed", "error", err)
		return Research{Context: "Research failed: " + err.Error(), Sources: []string{}}
	}

	context := resp.Answer
	if context == "" {
		context = "No summary available."
	}
	sources := make([]string, 0, 3)
	for _, r := range resp.Results {
		if len(sources) == 3 {
			break
		}
		sources = append(sources, r.URL)
	}
	return Research{
		Context: strings.ReplaceAll(context, "\n", " "),
		Sources: sources,
	}
}
