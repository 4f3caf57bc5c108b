// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// User notification: Slack alerts and HTML summary mail.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/haggleai/haggle/services/orchestrator/datatypes"
)

// Notifier sends Slack alerts and summary emails. Both channels are
// optional and skip silently when unconfigured.
type Notifier struct {
	slackToken   string
	slackChannel string

	mailSender    string
	mailPassword  string
	mailRecipient string
	smtpAddr      string
	dashboardURL  string

	client *http.Client
	log    *slog.Logger

	// slackURL is swapped by tests.
	slackURL string
}

// NewNotifier builds a notifier.
func NewNotifier(slackToken, slackChannel, mailSender, mailPassword, mailRecipient, smtpAddr, dashboardURL string, log *slog.Logger) *Notifier {
	return &Notifier{
		slackToken:    slackToken,
		slackChannel:  slackChannel,
		mailSender:    mailSender,
		mailPassword:  mailPassword,
		mailRecipient: mailRecipient,
		smtpAddr:      smtpAddr,
		dashboardURL:  dashboardURL,
		client:        &http.Client{Timeout: 10 * time.Second},
		log:           log,
		slackURL:      "https://slack.com/api/chat.postMessage",
	}
}

// SlackAvailable reports whether Slack alerting is configured.
func (n *Notifier) SlackAvailable() bool { return n.slackToken != "" && n.slackChannel != "" }

// MailAvailable reports whether summary mail is configured.
func (n *Notifier) MailAvailable() bool { return n.mailSender != "" && n.mailRecipient != "" }

// =============================================================================
// Slack
// =============================================================================

// SendSlackAlert posts a message to the configured channel.
func (n *Notifier) SendSlackAlert(ctx context.Context, message string) map[string]any {
	if !n.SlackAvailable() {
		n.log.Debug("slack not configured, alert skipped")
		return map[string]any{"status": "slack_unavailable"}
	}

	body, _ := json.Marshal(map[string]string{"channel": n.slackChannel, "text": message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.slackURL, bytes.NewReader(body))
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+n.slackToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("slack alert failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	defer resp.Body.Close()

	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		Ts    string `json:"ts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return map[string]any{"error": err.Error()}
	}
	if !out.OK {
		n.log.Error("slack api error", "error", out.Error)
		return map[string]any{"error": out.Error}
	}
	return map[string]any{"status": "sent", "ts": out.Ts}
}

// SendTaskSummary posts a formatted task completion message.
func (n *Notifier) SendTaskSummary(ctx context.Context, company, outcome string, savings float64) map[string]any {
	emoji := ":white_check_mark:"
	if savings > 0 {
		emoji = ":moneybag:"
	}
	msg := fmt.Sprintf("%s *Haggle Task Complete*\n*Company:* %s\n*Outcome:* %s\n", emoji, company, outcome)
	if savings > 0 {
		msg += fmt.Sprintf("*Savings:* $%.2f/month ($%.2f/year)\n", savings, savings*12)
	}
	return n.SendSlackAlert(ctx, msg)
}

// =============================================================================
// Mail
// =============================================================================

// SendEmail delivers an HTML email over SMTPS using the app password.
func (n *Notifier) SendEmail(to, subject, htmlBody string) map[string]any {
	recipient := to
	if recipient == "" {
		recipient = n.mailRecipient
	}
	if recipient == "" || n.mailSender == "" {
		n.log.Debug("mail recipient/sender not configured, email skipped")
		return map[string]any{"status": "skipped"}
	}

	host, _, err := net.SplitHostPort(n.smtpAddr)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: Haggle <%s>\r\n", n.mailSender)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(htmlBody)

	// Port 465 is implicit TLS, so dial first and hand the conn to smtp.
	conn, err := tls.Dial("tcp", n.smtpAddr, &tls.Config{ServerName: host})
	if err != nil {
		n.log.Error("smtp dial failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return map[string]any{"error": err.Error()}
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", n.mailSender, n.mailPassword, host)); err != nil {
		n.log.Error("smtp auth failed", "error", err)
		return map[string]any{"error": err.Error()}
	}
	if err := client.Mail(n.mailSender); err != nil {
		return map[string]any{"error": err.Error()}
	}
	if err := client.Rcpt(recipient); err != nil {
		return map[string]any{"error": err.Error()}
	}
	w, err := client.Data()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		w.Close()
		return map[string]any{"error": err.Error()}
	}
	if err := w.Close(); err != nil {
		return map[string]any{"error": err.Error()}
	}
	_ = client.Quit()

	n.log.Info("email sent", "to", recipient, "subject", subject)
	return map[string]any{"status": "sent", "method": "smtp"}
}

// AgentSummary is the narrative block attached to the summary mail.
type AgentSummary struct {
	Narrative string   `json:"narrative"`
	KeyPoints []string `json:"key_points"`
}

// SendCallSummary mails the user the outcome of a completed call:
// savings, confirmation, the agent's narrative, any imminent billing
// threats, and the transcript.
func (n *Notifier) SendCallSummary(task *datatypes.Task, transcript []TranscriptTurn, transcriptText string, summary *AgentSummary, threats []map[string]any) map[string]any {
	actionLabel := titleCase(strings.ReplaceAll(string(task.Action), "_", " "))
	savings := 0.0
	if task.Savings != nil {
		savings = *task.Savings
	}
	outcome := task.Outcome
	if outcome == "" {
		outcome = "Call completed"
	}

	subject := fmt.Sprintf("Haggle: %s %s", task.Company, actionLabel)
	if savings > 0 {
		subject = fmt.Sprintf("Haggle: Saved $%d/mo on %s %s", int(savings), task.Company, actionLabel)
	}

	// Only imminent billing increases go in the mail; informational
	// competitor detections would just be noise there.
	var imminent []map[string]any
	for _, d := range threats {
		if t, _ := d["type"].(string); t == AnomalyBillingIncrease || t == AnomalyRateIncrease {
			imminent = append(imminent, d)
		}
	}

	body := n.callSummaryHTML(task.Company, actionLabel, task.UserName, outcome, savings,
		task.ConfirmationNumber, transcript, transcriptText, summary, imminent)
	return n.SendEmail(n.mailRecipient, subject, body)
}

// SendThreatAlert mails the proactive monitoring alert.
func (n *Notifier) SendThreatAlert(detections []map[string]any) map[string]any {
	if len(detections) == 0 {
		return map[string]any{"status": "no_detections"}
	}

	plural := ""
	if len(detections) > 1 {
		plural = "s"
	}
	subject := fmt.Sprintf("Haggle Alert: %d financial threat%s detected", len(detections), plural)
	for _, d := range detections {
		if t, _ := d["type"].(string); t == AnomalyBillingIncrease || t == AnomalyRateIncrease {
			if company := detectionCompany(d); company != "Unknown" {
				subject += fmt.Sprintf(" - %s rate increase", company)
			}
			break
		}
	}

	return n.SendEmail(n.mailRecipient, subject, n.threatAlertHTML(detections))
}

// =============================================================================
// HTML builders
// =============================================================================

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func detectionCompany(d map[string]any) string {
	if c, _ := d["company"].(string); c != "" {
		return c
	}
	if m, _ := d["merchant"].(string); m != "" {
		return m
	}
	return "Unknown"
}

func (n *Notifier) header() string {
	return `<div style="background:#0f0f14;border:1px solid #1f2937;border-radius:16px;padding:24px;margin-bottom:16px;text-align:center;">
  <div style="font-size:22px;font-weight:800;color:#ffffff;">Hag<span style="color:#3b82f6;">gle</span></div>
  <div style="color:#6b7280;font-size:12px;margin-top:4px;">Autonomous Consumer Advocacy Agent</div>
</div>`
}

func (n *Notifier) page(inner string) string {
	return `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;background:#111827;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;">
  <div style="max-width:600px;margin:0 auto;padding:24px 16px;">
` + inner + `
  </div>
</body>
</html>`
}

func (n *Notifier) callSummaryHTML(company, action, userName, outcome string, savings float64, confirmation string, transcript []TranscriptTurn, transcriptText string, summary *AgentSummary, threats []map[string]any) string {
	var b strings.Builder
	b.WriteString(n.header())

	b.WriteString(`<div style="background:#111827;border:1px solid #1f2937;border-radius:16px;padding:24px;margin-bottom:16px;">`)
	b.WriteString(`<div style="color:#4ade80;font-size:11px;font-weight:700;text-transform:uppercase;margin-bottom:16px;">Call Completed</div>`)
	fmt.Fprintf(&b, `<h2 style="color:#ffffff;font-size:20px;margin:0 0 4px;">%s</h2>`, html.EscapeString(company))
	fmt.Fprintf(&b, `<div style="color:#6b7280;font-size:13px;margin-bottom:16px;">%s &middot; %s's account</div>`,
		html.EscapeString(action), html.EscapeString(userName))

	if savings > 0 {
		fmt.Fprintf(&b, `<div style="background:#052e16;border:1px solid #166534;border-radius:8px;padding:16px 20px;margin:16px 0;text-align:center;">
  <div style="color:#4ade80;font-size:28px;font-weight:700;">$%.0f<span style="font-size:16px;font-weight:400;">/month saved</span></div>
  <div style="color:#86efac;font-size:13px;margin-top:4px;">$%.0f/year &middot; starts next billing cycle</div>
</div>`, savings, savings*12)
	}

	b.WriteString(`<table style="width:100%;border-collapse:collapse;margin:16px 0;color:#f3f4f6;font-size:13px;">`)
	fmt.Fprintf(&b, `<tr><td style="padding:8px 0;color:#9ca3af;">Outcome</td><td style="padding:8px 0;">%s</td></tr>`, html.EscapeString(outcome))
	if confirmation != "" {
		fmt.Fprintf(&b, `<tr><td style="padding:8px 0;color:#9ca3af;">Confirmation</td><td style="padding:8px 0;font-family:monospace;font-weight:600;">%s</td></tr>`, html.EscapeString(confirmation))
	}
	fmt.Fprintf(&b, `<tr><td style="padding:8px 0;color:#9ca3af;">Account holder</td><td style="padding:8px 0;">%s</td></tr>`, html.EscapeString(userName))
	b.WriteString(`</table></div>`)

	if summary != nil {
		b.WriteString(`<div style="background:#0c1a2e;border:1px solid #1e3a5f;border-radius:12px;padding:20px 24px;margin:16px 0;">
<div style="color:#93c5fd;font-size:11px;font-weight:700;text-transform:uppercase;margin-bottom:12px;">Agent Summary</div>`)
		fmt.Fprintf(&b, `<p style="color:#e5e7eb;font-size:14px;line-height:1.7;margin:0 0 14px;">%s</p>`, html.EscapeString(summary.Narrative))
		b.WriteString(`<ul style="margin:0;padding:0;list-style:none;">`)
		for _, pt := range summary.KeyPoints {
			fmt.Fprintf(&b, `<li style="padding:3px 0;color:#d1d5db;font-size:13px;">&#10003;&nbsp; %s</li>`, html.EscapeString(pt))
		}
		b.WriteString(`</ul></div>`)
	}

	if len(threats) > 0 {
		plural := ""
		if len(threats) > 1 {
			plural = "s"
		}
		fmt.Fprintf(&b, `<div style="background:#1c0a0a;border:1px solid #7f1d1d;border-radius:12px;padding:16px 20px;margin:16px 0;">
<div style="color:#fca5a5;font-size:11px;font-weight:700;text-transform:uppercase;margin-bottom:10px;">%d Imminent Billing Increase%s Detected</div>`,
			len(threats), plural)
		for _, d := range threats {
			fmt.Fprintf(&b, `<div style="padding:10px 0;border-bottom:1px solid #2d1515;color:#f3f4f6;font-size:13px;font-weight:600;">%s`,
				html.EscapeString(detectionCompany(d)))
			if old, new_ := d["old_amount"], d["new_amount"]; old != nil && new_ != nil {
				fmt.Fprintf(&b, ` <span style="color:#ef4444;font-weight:700;">$%v to $%v</span>`, old, new_)
			}
			if s, _ := d["summary"].(string); s != "" {
				fmt.Fprintf(&b, `<div style="color:#9ca3af;font-size:11px;margin-top:3px;font-weight:400;">%s</div>`, html.EscapeString(s))
			}
			b.WriteString(`</div>`)
		}
		b.WriteString(`<div style="color:#6b7280;font-size:11px;margin-top:10px;">Haggle is monitoring these. Check your dashboard to take action.</div></div>`)
	}

	if len(transcript) > 0 {
		b.WriteString(`<div style="margin:24px 0;">
<h3 style="color:#6b7280;font-size:11px;font-weight:600;text-transform:uppercase;margin:0 0 12px;">Call Transcript</h3>
<div style="background:#0f0f14;border:1px solid #1f2937;border-radius:12px;padding:16px;">`)
		for _, turn := range transcript {
			if turn.Text == "" {
				continue
			}
			label, bg, color := "Customer Rep", "#1f2937", "#d1d5db"
			if turn.Role == "agent" {
				label, bg, color = "Haggle Agent", "#1e3a5f", "#93c5fd"
			}
			fmt.Fprintf(&b, `<div style="margin:8px 0;"><div style="display:inline-block;max-width:80%%;background:%s;border-radius:12px;padding:10px 14px;">
<div style="color:%s;font-size:10px;font-weight:600;margin-bottom:4px;text-transform:uppercase;">%s</div>
<div style="color:#e5e7eb;font-size:13px;line-height:1.5;">%s</div></div></div>`,
				bg, color, label, html.EscapeString(turn.Text))
		}
		b.WriteString(`</div></div>`)
	} else if transcriptText != "" {
		text := transcriptText
		if len(text) > 3000 {
			text = text[:3000]
		}
		fmt.Fprintf(&b, `<div style="margin:24px 0;">
<h3 style="color:#6b7280;font-size:11px;font-weight:600;text-transform:uppercase;margin:0 0 12px;">Call Transcript</h3>
<div style="background:#0f0f14;border:1px solid #1f2937;border-radius:12px;padding:16px;font-family:monospace;font-size:12px;color:#9ca3af;white-space:pre-wrap;line-height:1.6;">%s</div>
</div>`, html.EscapeString(text))
	}

	fmt.Fprintf(&b, `<div style="text-align:center;margin:24px 0;">
<a href="%s" style="background:#3b82f6;color:#ffffff;text-decoration:none;padding:12px 32px;border-radius:8px;font-weight:600;font-size:14px;display:inline-block;">View Dashboard</a>
</div>
<p style="color:#374151;font-size:11px;text-align:center;margin-top:24px;">
Haggle automatically made this call on your behalf.<br>
You can review all call recordings and transcripts in your dashboard.
</p>`, n.dashboardURL)

	return n.page(b.String())
}

func (n *Notifier) threatAlertHTML(detections []map[string]any) string {
	sourceLabels := map[string]string{
		"airbyte_stripe":   "Stripe",
		"overshoot_vision": "Overshoot Vision",
		"tavily_search":    "Web Monitor",
	}

	var b strings.Builder
	b.WriteString(n.header())

	count := len(detections)
	billing := 0
	for _, d := range detections {
		if t, _ := d["type"].(string); t == AnomalyBillingIncrease || t == AnomalyRateIncrease {
			billing++
		}
	}
	plural := ""
	if count > 1 {
		plural = "s"
	}
	action := "Review and take action from your dashboard"
	if billing > 0 {
		bplural := ""
		if billing > 1 {
			bplural = "s"
		}
		action = fmt.Sprintf("%d billing increase%s require immediate action", billing, bplural)
	}
	fmt.Fprintf(&b, `<div style="background:#1c0a0a;border:1px solid #7f1d1d;border-radius:12px;padding:16px 20px;margin-bottom:20px;">
<div style="color:#fca5a5;font-weight:700;font-size:14px;">%d financial threat%s detected</div>
<div style="color:#7f1d1d;font-size:12px;margin-top:2px;">%s</div>
</div>`, count, plural, action)

	for _, d := range detections {
		src, _ := d["source"].(string)
		label := sourceLabels[src]
		if label == "" {
			label = "Monitor"
		}
		dType, _ := d["type"].(string)
		dType = titleCase(strings.ToLower(strings.ReplaceAll(dType, "_", " ")))

		fmt.Fprintf(&b, `<div style="background:#111827;border-left:3px solid #ef4444;border-radius:12px;padding:16px;margin-bottom:12px;">
<div style="color:#6b7280;font-size:10px;text-transform:uppercase;margin-bottom:8px;">%s &middot; %s</div>
<div style="color:#ffffff;font-size:15px;font-weight:600;">%s</div>`,
			html.EscapeString(label), html.EscapeString(dType), html.EscapeString(detectionCompany(d)))
		if old, new_ := d["old_amount"], d["new_amount"]; old != nil && new_ != nil {
			fmt.Fprintf(&b, `<div style="margin:8px 0;"><span style="color:#ef4444;font-size:16px;font-weight:700;">$%v to $%v</span>`, old, new_)
			if pct := d["increase_pct"]; pct != nil {
				fmt.Fprintf(&b, ` <span style="color:#ef4444;font-size:12px;">(+%v%%)</span>`, pct)
			}
			b.WriteString(`</div>`)
		}
		if s, _ := d["summary"].(string); s != "" {
			fmt.Fprintf(&b, `<div style="color:#9ca3af;font-size:12px;margin-top:6px;">%s</div>`, html.EscapeString(s))
		}
		b.WriteString(`</div>`)
	}

	fmt.Fprintf(&b, `<div style="background:#0c1a2e;border:1px solid #1e3a5f;border-radius:12px;padding:16px 20px;margin:20px 0;">
<div style="color:#93c5fd;font-size:12px;font-weight:600;margin-bottom:8px;">What Haggle can do right now</div>
<ul style="margin:0;padding-left:16px;color:#9ca3af;font-size:13px;line-height:1.8;">
<li>Call %s and negotiate your rate back down</li>
<li>Research competitor rates and prepare leverage arguments</li>
<li>Get a confirmation number and update your knowledge graph</li>
<li>Send you a follow-up summary with exact savings</li>
</ul>
</div>
<div style="text-align:center;margin:24px 0;">
<a href="%s" style="background:#ef4444;color:#ffffff;text-decoration:none;padding:14px 40px;border-radius:8px;font-weight:700;font-size:15px;display:inline-block;">Handle It Now</a>
</div>`, html.EscapeString(detectionCompany(detections[0])), n.dashboardURL)

	return n.page(b.String())
}
