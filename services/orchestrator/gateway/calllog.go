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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CallLog is the durable Postgres audit log for completed calls and
// bill scans. The in-memory registry remains the real-time source of
// truth; this only records history. Every method degrades to a no-op
// when Postgres is not configured.
type CallLog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewCallLog connects the pool and ensures the tables exist. An empty
// databaseURL, or a failed connection, yields a disabled logger.
func NewCallLog(ctx context.Context, databaseURL string, log *slog.Logger) *CallLog {
	cl := &CallLog{log: log}
	if databaseURL == "" {
		log.Warn("DATABASE_URL not set, call logging disabled")
		return cl
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		log.Error("postgres config parse failed", "error", err)
		return cl
	}
	cfg.MinConns = 1
	cfg.MaxConns = 3

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		return cl
	}
	cl.pool = pool
	if err := cl.createTables(ctx); err != nil {
		log.Error("postgres table creation failed", "error", err)
		pool.Close()
		cl.pool = nil
		return cl
	}
	log.Info("postgres connected, call logging enabled")
	return cl
}

// Available reports whether durable logging is enabled.
func (cl *CallLog) Available() bool { return cl.pool != nil }

// Close releases the pool.
func (cl *CallLog) Close() {
	if cl.pool != nil {
		cl.pool.Close()
		cl.pool = nil
	}
}

func (cl *CallLog) createTables(ctx context.Context) error {
	if _, err := cl.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS call_logs (
			id SERIAL PRIMARY KEY,
			call_id TEXT UNIQUE,
			task_id TEXT,
			company TEXT,
			action TEXT,
			outcome TEXT,
			savings REAL DEFAULT 0,
			confirmation TEXT,
			transcript TEXT,
			modulate_analysis JSONB,
			duration_seconds REAL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return err
	}
	if _, err := cl.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bill_scans (
			id SERIAL PRIMARY KEY,
			provider TEXT,
			total_amount TEXT,
			price_change TEXT,
			line_items JSONB,
			fees JSONB,
			hidden_fees JSONB,
			task_created TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return err
	}
	cl.log.Info("postgres tables ensured")
	return nil
}

// CallRecord is one durable call log entry.
type CallRecord struct {
	CallID          string
	TaskID          string
	Company         string
	Action          string
	Outcome         string
	Savings         float64
	Confirmation    string
	Transcript      string
	VoiceAnalysis   any
	DurationSeconds float64
}

// InsertCallLog upserts a call record keyed by call id, so repeated
// end-of-call reports refresh the same row.
func (cl *CallLog) InsertCallLog(ctx context.Context, rec CallRecord) {
	if !cl.Available() {
		return
	}
	var analysis []byte
	if rec.VoiceAnalysis != nil {
		analysis, _ = json.Marshal(rec.VoiceAnalysis)
	}
	_, err := cl.pool.Exec(ctx, `
		INSERT INTO call_logs (call_id, task_id, company, action, outcome, savings, confirmation, transcript, modulate_analysis, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
		ON CONFLICT (call_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			savings = EXCLUDED.savings,
			confirmation = EXCLUDED.confirmation,
			transcript = EXCLUDED.transcript,
			modulate_analysis = EXCLUDED.modulate_analysis,
			duration_seconds = EXCLUDED.duration_seconds
	`, rec.CallID, rec.TaskID, rec.Company, rec.Action, rec.Outcome, rec.Savings,
		rec.Confirmation, rec.Transcript, analysis, rec.DurationSeconds)
	if err != nil {
		cl.log.Error("call log insert failed", "call_id", rec.CallID, "error", err)
	}
}

// InsertBillScan records one bill vision scan result.
func (cl *CallLog) InsertBillScan(ctx context.Context, result map[string]any, taskID string) {
	if !cl.Available() {
		return
	}
	str := func(key string) string {
		if s, ok := result[key].(string); ok {
			return s
		}
		return ""
	}
	jsonb := func(key string) []byte {
		v, ok := result[key]
		if !ok {
			v = []any{}
		}
		raw, _ := json.Marshal(v)
		return raw
	}
	_, err := cl.pool.Exec(ctx, `
		INSERT INTO bill_scans (provider, total_amount, price_change, line_items, fees, hidden_fees, task_created)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7)
	`, str("provider_name"), str("total_amount"), str("price_change"),
		jsonb("line_items"), jsonb("fees"), jsonb("hidden_fees"), taskID)
	if err != nil {
		cl.log.Error("bill scan insert failed", "error", err)
	}
}

// CallHistoryEntry is one row of the recent call history.
type CallHistoryEntry struct {
	CallID       string  `json:"call_id"`
	Company      string  `json:"company"`
	Action       string  `json:"action"`
	Outcome      string  `json:"outcome"`
	Savings      float64 `json:"savings"`
	Confirmation string  `json:"confirmation"`
	Duration     float64 `json:"duration"`
	Date         string  `json:"date"`
}

// CallHistory returns the most recent calls, newest first.
func (cl *CallLog) CallHistory(ctx context.Context, limit int) []CallHistoryEntry {
	if !cl.Available() {
		return []CallHistoryEntry{}
	}
	rows, err := cl.pool.Query(ctx, `
		SELECT call_id, company, action, outcome, savings, confirmation, duration_seconds, created_at
		FROM call_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		cl.log.Error("call history query failed", "error", err)
		return []CallHistoryEntry{}
	}
	defer rows.Close()

	out := []CallHistoryEntry{}
	for rows.Next() {
		var (
			entry     CallHistoryEntry
			savings   *float32
			duration  *float32
			createdAt *time.Time
		)
		if err := rows.Scan(&entry.CallID, &entry.Company, &entry.Action, &entry.Outcome,
			&savings, &entry.Confirmation, &duration, &createdAt); err != nil {
			cl.log.Error("call history scan failed", "error", err)
			continue
		}
		if savings != nil {
			entry.Savings = float64(*savings)
		}
		if duration != nil {
			entry.Duration = float64(*duration)
		}
		if createdAt != nil {
			entry.Date = createdAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return out
}
