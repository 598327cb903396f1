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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	rootCmd = &cobra.Command{
		Use:   "copilotctl",
		Short: "A cli to inspect and exercise the CompliancePilot core",
		Long: `copilotctl works offline against the embedded trigger table
				(triggers, classify, render) and online against a running
				copilot server (ask, audit verify).`,
	}

	// --- Trigger Table ---
	triggersCmd = &cobra.Command{
		Use:   "triggers",
		Short: "Inspect the trigger table embedded in this binary",
	}
	triggersVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Print the SHA256 fingerprint of the embedded trigger table",
		Run:   verifyTriggers, // Defined in cmd_triggers.go
	}
	triggersDumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the embedded trigger table YAML",
		Run:   dumpTriggers, // Defined in cmd_triggers.go
	}

	// --- Classification ---
	classifyCmd = &cobra.Command{
		Use:   "classify [query]",
		Short: "Classify a query locally using the embedded trigger table",
		Args:  cobra.ExactArgs(1),
		Run:   runClassify, // Defined in cmd_classify.go
	}

	// --- Rendering ---
	renderCmd = &cobra.Command{
		Use:   "render [evidence.json]",
		Short: "Render a tool evidence file into the deterministic template (reads stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runRender, // Defined in cmd_render.go
	}

	// --- Online Commands ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Send a question to a running copilot server",
		Args:  cobra.ExactArgs(1),
		Run:   runAsk, // Defined in cmd_ask.go
	}
	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Audit trail operations against a running copilot server",
	}
	auditVerifyCmd = &cobra.Command{
		Use:   "verify [session_id]",
		Short: "Verify a session's audit hash chain",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditVerify, // Defined in cmd_ask.go
	}
)

func init() {
	triggersVerifyCmd.Flags().BoolVar(&triggersVerifyJSON, "json", false,
		"Output as JSON")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false,
		"Output as JSON")
	renderCmd.Flags().IntVar(&renderTopK, "top-k", 0,
		"Maximum records to render (0 uses the server default)")
	askCmd.Flags().StringVar(&askSessionID, "session", "",
		"Session identifier (generated if empty)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0,
		"Maximum evidence records to retrieve")
	askCmd.Flags().BoolVar(&askJSON, "json", false,
		"Output the full response as JSON")

	triggersCmd.AddCommand(triggersVerifyCmd, triggersDumpCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(triggersCmd, classifyCmd, renderCmd, askCmd, auditCmd)
}
