// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway wraps every external integration behind small
// clients that degrade gracefully. A gateway with no credentials, or
// one whose backend is down, reports a fallback result instead of an
// error that would abort a workflow; callers only consult the fallback
// markers when they need to know.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphResult is the generic outcome of a graph mutation. Status is
// empty on success, "neo4j_unavailable" when the graph is down, and
// "not_found" when the match failed.
type GraphResult struct {
	Status  string  `json:"status,omitempty"`
	Service string  `json:"service,omitempty"`
	Person  string  `json:"person,omitempty"`
	Savings float64 `json:"savings,omitempty"`
	Updated bool    `json:"updated,omitempty"`
}

// GraphNode is one node of the visualization payload.
type GraphNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties"`
}

// GraphLink is one relationship of the visualization payload.
type GraphLink struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// GraphData is the full graph visualization payload.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// Subscription is one active subscription from the knowledge graph.
type Subscription struct {
	Service      string   `json:"service"`
	ServiceType  string   `json:"service_type"`
	MonthlyCost  float64  `json:"monthly_cost"`
	PreviousCost *float64 `json:"previous_cost,omitempty"`
	Since        string   `json:"since,omitempty"`
}

// Graph is the Neo4j knowledge graph client. A nil driver means the
// graph is not configured; every method then returns its unavailable
// fallback.
type Graph struct {
	driver neo4j.DriverWithContext
	log    *slog.Logger
}

// NewGraph connects to Neo4j. An empty uri, or a failed connectivity
// check, yields a disabled client rather than an error.
func NewGraph(ctx context.Context, uri, user, password string, log *slog.Logger) *Graph {
	g := &Graph{log: log}
	if uri == "" {
		log.Warn("NEO4J_URI not set, graph features disabled")
		return g
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		log.Error("neo4j driver init failed", "error", err)
		return g
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j connection failed", "error", err)
		_ = driver.Close(ctx)
		return g
	}
	g.driver = driver
	log.Info("connected to neo4j")
	return g
}

// Available reports whether the graph backend is reachable.
func (g *Graph) Available() bool { return g.driver != nil }

// Close releases the driver. Safe on a disabled client.
func (g *Graph) Close(ctx context.Context) {
	if g.driver != nil {
		_ = g.driver.Close(ctx)
	}
}

func unavailable() GraphResult { return GraphResult{Status: "neo4j_unavailable"} }

// SeedDemoData pre-populates the graph with the demo scenario.
func (g *Graph) SeedDemoData(ctx context.Context) {
	if !g.Available() {
		return
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (user:Person {name: 'Neel'})
			MERGE (comcast:Service {name: 'Comcast', type: 'internet', monthlyRate: 85})
			MERGE (planet:Service {name: 'Planet Fitness', type: 'gym', monthlyRate: 25})
			MERGE (user)-[:SUBSCRIBES_TO {since: '2023-01-15', status: 'active'}]->(comcast)
			MERGE (user)-[:SUBSCRIBES_TO {since: '2022-06-01', status: 'active'}]->(planet)
		`, nil)
	})
	if err != nil {
		g.log.Error("graph seed failed", "error", err)
		return
	}
	g.log.Info("demo graph seeded")
}

// UpdateServiceRate records a negotiated rate change and the
// Negotiation node tied to its confirmation number.
func (g *Graph) UpdateServiceRate(ctx context.Context, serviceName string, oldRate, newRate float64, confirmation string) GraphResult {
	if !g.Available() {
		return unavailable()
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (s:Service {name: $name}) "+
				"SET s.monthlyRate = $new_rate, s.previousRate = $old_rate "+
				"MERGE (n:Negotiation {confirmation: $conf}) "+
				"SET n.date = datetime(), n.oldRate = $old_rate, "+
				"    n.newRate = $new_rate, n.savings = $old_rate - $new_rate "+
				"MERGE (s)<-[:NEGOTIATED]-(n) "+
				"RETURN s.name AS service, n.savings AS savings",
			map[string]any{"name": serviceName, "old_rate": oldRate, "new_rate": newRate, "conf": confirmation})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		service, _ := record.Get("service")
		savings, _ := record.Get("savings")
		return GraphResult{Service: asString(service), Savings: asFloat(savings)}, nil
	})
	if err != nil {
		g.log.Warn("rate update not recorded", "service", serviceName, "error", err)
		return GraphResult{Status: "not_found"}
	}
	return out.(GraphResult)
}

// CancelService marks the user's subscription relationship cancelled.
func (g *Graph) CancelService(ctx context.Context, userName, serviceName, confirmation string) GraphResult {
	if !g.Available() {
		return unavailable()
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (p:Person {name: $user})-[r:SUBSCRIBES_TO]->(s:Service {name: $service}) "+
				"SET r.status = 'cancelled', r.cancelledAt = datetime(), "+
				"    r.confirmation = $conf "+
				"RETURN p.name AS person, s.name AS service",
			map[string]any{"user": userName, "service": serviceName, "conf": confirmation})
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		person, _ := record.Get("person")
		service, _ := record.Get("service")
		return GraphResult{Person: asString(person), Service: asString(service)}, nil
	})
	if err != nil {
		g.log.Warn("cancellation not recorded", "service", serviceName, "error", err)
		return GraphResult{Status: "not_found"}
	}
	return out.(GraphResult)
}

// UpdateStatus stamps a service node with a free-form detail string.
func (g *Graph) UpdateStatus(ctx context.Context, serviceName, details string) GraphResult {
	if !g.Available() {
		return unavailable()
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			"MATCH (s:Service {name: $name}) "+
				"SET s.lastUpdate = datetime(), s.details = $details "+
				"RETURN s.name AS service",
			map[string]any{"name": serviceName, "details": details})
	})
	if err != nil {
		g.log.Warn("status update failed", "service", serviceName, "error", err)
		return GraphResult{Status: "not_found"}
	}
	return GraphResult{Service: serviceName, Updated: true}
}

// AddEntity intentionally does not create graph nodes. Entity values
// live on the task record; polluting the graph with one node per
// extracted value made the visualization useless.
func (g *Graph) AddEntity(entityType, value, context, callID string) map[string]any {
	return map[string]any{"entity": value, "type": entityType, "note": "stored on task only"}
}

// Data returns Person, Service and Negotiation nodes with their
// relationships for the dashboard graph view.
func (g *Graph) Data(ctx context.Context) GraphData {
	empty := GraphData{Nodes: []GraphNode{}, Links: []GraphLink{}}
	if !g.Available() {
		return empty
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (n) WHERE n:Person OR n:Service OR n:Negotiation "+
				"OPTIONAL MATCH (n)-[r]->(m) WHERE m:Person OR m:Service OR m:Negotiation "+
				"RETURN n, labels(n) AS labels, r, type(r) AS rel_type, "+
				"       m, labels(m) AS m_labels", nil)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		data := GraphData{Nodes: []GraphNode{}, Links: []GraphLink{}}
		addNode := func(node neo4j.Node, labels []any) string {
			id := node.GetElementId()
			if seen[id] {
				return id
			}
			seen[id] = true
			label := "Node"
			if len(labels) > 0 {
				label = asString(labels[0])
			}
			name := asString(node.Props["name"])
			if name == "" {
				name = asString(node.Props["value"])
			}
			if name == "" {
				name = label
			}
			data.Nodes = append(data.Nodes, GraphNode{
				ID: id, Label: label, Name: name, Properties: stringProps(node.Props),
			})
			return id
		}

		for result.Next(ctx) {
			record := result.Record()
			nVal, _ := record.Get("n")
			labels, _ := record.Get("labels")
			node, ok := nVal.(neo4j.Node)
			if !ok {
				continue
			}
			nID := addNode(node, asList(labels))

			mVal, _ := record.Get("m")
			if m, ok := mVal.(neo4j.Node); ok {
				mLabels, _ := record.Get("m_labels")
				mID := addNode(m, asList(mLabels))
				rVal, _ := record.Get("r")
				if rel, ok := rVal.(neo4j.Relationship); ok {
					relType, _ := record.Get("rel_type")
					data.Links = append(data.Links, GraphLink{
						Source: nID, Target: mID,
						Type:       asString(relType),
						Properties: stringProps(rel.Props),
					})
				}
			}
		}
		return data, result.Err()
	})
	if err != nil {
		g.log.Warn("graph read failed", "error", err)
		return empty
	}
	return out.(GraphData)
}

// SubscriptionProfile returns the user's active subscriptions. An
// empty slice means the graph is unavailable and the caller should use
// its local catalog instead.
func (g *Graph) SubscriptionProfile(ctx context.Context, userName string) []Subscription {
	if !g.Available() {
		return nil
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (p:Person {name: $user})-[r:SUBSCRIBES_TO]->(s:Service) "+
				"WHERE r.status = 'active' "+
				"RETURN s.name AS service, s.type AS service_type, "+
				"       s.monthlyRate AS monthly_cost, s.previousRate AS previous_cost, "+
				"       r.since AS since",
			map[string]any{"user": userName})
		if err != nil {
			return nil, err
		}
		var subs []Subscription
		for result.Next(ctx) {
			record := result.Record()
			service, _ := record.Get("service")
			serviceType, _ := record.Get("service_type")
			monthly, _ := record.Get("monthly_cost")
			previous, _ := record.Get("previous_cost")
			since, _ := record.Get("since")

			sub := Subscription{
				Service:     asString(service),
				ServiceType: asString(serviceType),
				MonthlyCost: asFloat(monthly),
				Since:       asString(since),
			}
			if sub.ServiceType == "" {
				sub.ServiceType = "subscription"
			}
			if previous != nil {
				v := asFloat(previous)
				sub.PreviousCost = &v
			}
			subs = append(subs, sub)
		}
		return subs, result.Err()
	})
	if err != nil {
		g.log.Warn("subscription profile read failed", "error", err)
		return nil
	}
	return out.([]Subscription)
}

// Reset wipes every node so a demo run starts clean, then re-seeds.
func (g *Graph) Reset(ctx context.Context) {
	if !g.Available() {
		return
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	})
	session.Close(ctx)
	if err != nil {
		g.log.Error("graph reset failed", "error", err)
		return
	}
	g.SeedDemoData(ctx)
}

// =============================================================================
// Record coercion helpers
// =============================================================================

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func stringProps(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = asString(v)
	}
	return out
}
