// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads service configuration from environment variables.
//
// Every external integration is optional: an empty key means the
// integration is not configured and the service degrades to local
// behavior. Only the HTTP port has a hard default.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven setting for the backend.
type Config struct {
	Port       string `envconfig:"PORT" default:"8080"`
	BackendURL string `envconfig:"BACKEND_URL" default:"http://localhost:8080"`

	// Demo protection. When set, costly POST endpoints require the
	// X-Demo-Secret header to match.
	DemoSecret string `envconfig:"DEMO_SECRET"`

	// Voice platform.
	VapiAPIKey        string   `envconfig:"VAPI_API_KEY"`
	VapiAssistantID   string   `envconfig:"VAPI_ASSISTANT_ID"`
	VapiPhoneNumberID string   `envconfig:"VAPI_PHONE_NUMBER_ID"`
	VapiToolIDs       []string `envconfig:"VAPI_TOOL_IDS"`

	// Phone the consult agent calls. Empty means simulation only.
	UserPhoneNumber string `envconfig:"USER_PHONE_NUMBER"`

	// Knowledge graph.
	Neo4jURI      string `envconfig:"NEO4J_URI"`
	Neo4jUser     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD"`

	// Web search.
	TavilyAPIKey string `envconfig:"TAVILY_API_KEY"`

	// Grounded knowledge.
	SensoAPIKey  string `envconfig:"SENSO_API_KEY"`
	SensoBaseURL string `envconfig:"SENSO_BASE_URL" default:"https://sdk.senso.ai/api/v1"`

	// Voice analytics.
	ModulateAPIKey string `envconfig:"MODULATE_API_KEY"`

	// Vision.
	RekaAPIKey        string `envconfig:"REKA_API_KEY"`
	OvershootAPIKey   string `envconfig:"OVERSHOOT_API_KEY"`
	OvershootBaseURL  string `envconfig:"OVERSHOOT_BASE_URL" default:"https://api.overshoot.ai"`

	// Proactive web scouts.
	YutoriAPIKey string `envconfig:"YUTORI_API_KEY"`

	// Billing monitor.
	StripeAPIKey string `envconfig:"STRIPE_API_KEY"`

	// Messaging.
	SlackBotToken  string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannelID string `envconfig:"SLACK_CHANNEL_ID"`

	// Summary mail (plain SMTP with an app password).
	MailSender    string `envconfig:"MAIL_SENDER_EMAIL"`
	MailPassword  string `envconfig:"MAIL_APP_PASSWORD"`
	MailRecipient string `envconfig:"MAIL_RECIPIENT_EMAIL"`
	SMTPAddr      string `envconfig:"SMTP_ADDR" default:"smtp.gmail.com:465"`

	// Transcript re-extraction through an OpenAI-compatible endpoint.
	ExtractAPIKey  string `envconfig:"EXTRACT_API_KEY"`
	ExtractBaseURL string `envconfig:"EXTRACT_BASE_URL"`
	ExtractModel   string `envconfig:"EXTRACT_MODEL" default:"gpt-4o-mini"`

	// Durable call log. Empty disables Postgres logging.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Tracing collector.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load decodes the configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
