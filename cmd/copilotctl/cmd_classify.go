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
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/CompliancePilot/services/copilot/intent"
	"github.com/AleutianAI/CompliancePilot/services/trigger_engine"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var classifyJSON bool

// =============================================================================
// CLASSIFY COMMAND
// =============================================================================

// runClassify classifies a query locally using the embedded trigger
// table, without contacting a server. Useful for tuning trigger phrases
// and checking what a query will route to before it ships.
//
// # Exit Codes
//
//   - 0: Query classified to at least one in-scope intent
//   - 1: Query is out of scope
//   - 2: Error
func runClassify(cmd *cobra.Command, args []string) {
	query := args[0]

	engine, err := trigger_engine.NewTriggerEngine()
	if err != nil {
		OutputError(classifyJSON, "Failed to load the embedded trigger table", err)
		os.Exit(CLIExitError)
	}

	classification := intent.NewRouter(engine).Classify(query)
	outOfScope := classification.IsOutOfScope()

	if classifyJSON {
		result := ClassifyResult{
			Query:      query,
			Intents:    classification.IntentStrings(),
			Confidence: classification.Confidence,
			Reason:     classification.Reason,
			InScope:    !outOfScope,
		}
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
	} else {
		fmt.Printf("Intents:    %s\n", strings.Join(classification.IntentStrings(), ", "))
		fmt.Printf("Confidence: %.2f\n", classification.Confidence)
		fmt.Printf("Reason:     %s\n", classification.Reason)
	}

	if outOfScope {
		os.Exit(CLIExitFindings)
	}
	os.Exit(CLIExitSuccess)
}
