// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	serverURL  string // Backend base URL
	demoSecret string // Demo guard secret, sent as X-Demo-Secret
)

func client() *apiClient {
	return newAPIClient(serverURL, demoSecret)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "haggctl",
	Short: "Operator CLI for the Haggle backend",
	Long: `haggctl drives the Haggle backend over its HTTP API.

Examples:
  haggctl status                       # Integration status
  haggctl tasks list                   # All tracked tasks
  haggctl tasks create --company Comcast --action negotiate_rate --phone +18005551234
  haggctl tasks trigger task_a1b2c3d4  # Run the phase pipeline
  haggctl demo run                     # Run the full seeded demo
  haggctl demo stats                   # Scoreboard
  haggctl consult --user Neel          # Scripted user consult
  haggctl scan                         # Billing anomaly scan`,
}

func init() {
	defaultServer := os.Getenv("HAGGLE_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Backend base URL (env HAGGLE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&demoSecret, "secret", os.Getenv("DEMO_SECRET"),
		"Demo guard secret (env DEMO_SECRET)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(callsCmd)
}

// =============================================================================
// STATUS
// =============================================================================

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which external integrations are configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodGet, "/api/status", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

// =============================================================================
// TASKS
// =============================================================================

var (
	taskCompany     string
	taskAction      string
	taskPhone       string
	taskServiceType string
	taskCurrentRate float64
	taskTargetRate  float64
	taskUserName    string
	taskNotes       string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tracked task",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodGet, "/api/tasks", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new task",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{
			"company":      taskCompany,
			"action":       taskAction,
			"phone_number": taskPhone,
		}
		if taskServiceType != "" {
			body["service_type"] = taskServiceType
		}
		if taskCurrentRate > 0 {
			body["current_rate"] = taskCurrentRate
		}
		if taskTargetRate > 0 {
			body["target_rate"] = taskTargetRate
		}
		if taskUserName != "" {
			body["user_name"] = taskUserName
		}
		if taskNotes != "" {
			body["notes"] = taskNotes
		}
		out, err := client().do(http.MethodPost, "/api/tasks", body)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var tasksTriggerCmd = &cobra.Command{
	Use:   "trigger <task-id>",
	Short: "Run the full phase pipeline for an existing task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodPost, "/api/tasks/"+args[0]+"/run", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	tasksCreateCmd.Flags().StringVar(&taskCompany, "company", "", "Company to contact")
	tasksCreateCmd.Flags().StringVar(&taskAction, "action", "",
		"Task action (negotiate_rate, cancel_service)")
	tasksCreateCmd.Flags().StringVar(&taskPhone, "phone", "", "Company phone number")
	tasksCreateCmd.Flags().StringVar(&taskServiceType, "service-type", "", "Service type")
	tasksCreateCmd.Flags().Float64Var(&taskCurrentRate, "current-rate", 0, "Current monthly rate")
	tasksCreateCmd.Flags().Float64Var(&taskTargetRate, "target-rate", 0, "Target monthly rate")
	tasksCreateCmd.Flags().StringVar(&taskUserName, "user", "", "User the task belongs to")
	tasksCreateCmd.Flags().StringVar(&taskNotes, "notes", "", "Free-form notes")
	_ = tasksCreateCmd.MarkFlagRequired("company")
	_ = tasksCreateCmd.MarkFlagRequired("action")
	_ = tasksCreateCmd.MarkFlagRequired("phone")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksCreateCmd)
	tasksCmd.AddCommand(tasksTriggerCmd)
}

// =============================================================================
// DEMO
// =============================================================================

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Drive the seeded demo scenarios",
}

var demoRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the phase pipeline for every pending seeded task",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodPost, "/api/demo/run", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var demoResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the pre-demo state",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodPost, "/api/demo/reset", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var demoStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the demo scoreboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodGet, "/api/demo/stats", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	demoCmd.AddCommand(demoRunCmd)
	demoCmd.AddCommand(demoResetCmd)
	demoCmd.AddCommand(demoStatsCmd)
}

// =============================================================================
// CONSULT
// =============================================================================

var consultUser string

var consultCmd = &cobra.Command{
	Use:   "consult",
	Short: "Run the scripted user consult, dispatching confirmed actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if consultUser != "" {
			body["user_name"] = consultUser
		}
		out, err := client().do(http.MethodPost, "/api/demo/user-consult", body)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	consultCmd.Flags().StringVar(&consultUser, "user", "", "User name for the consult")
}

// =============================================================================
// MONITORING
// =============================================================================

var scanDemo bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan recent charges for billing anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/monitor/scan"
		if scanDemo {
			path = "/api/monitor/demo"
		}
		out, err := client().do(http.MethodPost, path, nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanDemo, "demo", false,
		"Replay the canned detection batch instead of scanning live data")
}

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Show the most recent call log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := client().do(http.MethodGet, "/api/calls/history", nil)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}
