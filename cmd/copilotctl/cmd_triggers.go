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
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/AleutianAI/CompliancePilot/services/trigger_engine"
	"github.com/AleutianAI/CompliancePilot/services/trigger_engine/enforcement"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var triggersVerifyJSON bool

// =============================================================================
// TRIGGERS VERIFY COMMAND
// =============================================================================

// verifyTriggers is the CLI handler for "copilotctl triggers verify".
//
// It retrieves the raw bytes of the embedded trigger table from the
// enforcement package and calculates a SHA256 checksum.
//
// This allows operators to cryptographically verify that the binary they
// are running contains the expected version of the intent triggers,
// ensuring the table was not tampered with or accidentally swapped
// during the build process.
//
// # Exit Codes
//
//   - 0: Trigger table verified successfully
//   - 2: Error (embedded table failed to compile)
func verifyTriggers(cmd *cobra.Command, args []string) {
	data := enforcement.IntentTriggerPatterns
	hash := sha256.Sum256(data)
	hashStr := fmt.Sprintf("sha256:%x", hash)

	engine, err := trigger_engine.NewTriggerEngine()
	if err != nil {
		OutputError(triggersVerifyJSON, "Embedded trigger table failed to compile", err)
		os.Exit(CLIExitError)
	}

	if triggersVerifyJSON {
		result := TriggerVerifyResult{
			Valid:    true,
			Hash:     hashStr,
			ByteSize: len(data),
			Version:  engine.Version(),
		}
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		os.Exit(CLIExitSuccess)
	}

	fmt.Println("--- Embedded Trigger Table Verification ---")
	fmt.Printf("Table version: %s\n", engine.Version())
	fmt.Printf("Table byte size: %d bytes\n", len(data))
	fmt.Printf("SHA256 Fingerprint: %x\n", hash)
	fmt.Println("-------------------------------------------")
}

// =============================================================================
// TRIGGERS DUMP COMMAND
// =============================================================================

// dumpTriggers outputs the embedded trigger table YAML.
func dumpTriggers(cmd *cobra.Command, args []string) {
	fmt.Println(string(enforcement.IntentTriggerPatterns))
}
