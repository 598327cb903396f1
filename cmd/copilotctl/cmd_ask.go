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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/CompliancePilot/pkg/ux"
	"github.com/AleutianAI/CompliancePilot/services/copilot/audit"
	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	askSessionID string
	askTopK      int
	askJSON      bool
)

const defaultServerURL = "http://localhost:8610"

var askHTTPClient = &http.Client{Timeout: 60 * time.Second}

// serverURL returns the copilot server base URL from COPILOT_URL.
func serverURL() string {
	if url := strings.TrimSuffix(os.Getenv("COPILOT_URL"), "/"); url != "" {
		return url
	}
	return defaultServerURL
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// runAsk sends a question to a running copilot server and prints the
// answer.
//
// # Exit Codes
//
//   - 0: Answer received
//   - 2: Error (server unreachable or rejected the request)
func runAsk(cmd *cobra.Command, args []string) {
	sessionID := askSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reqBody, err := json.Marshal(datatypes.AskRequest{
		SessionID: sessionID,
		Query:     args[0],
		TopK:      askTopK,
	})
	if err != nil {
		OutputError(askJSON, "Failed to encode request", err)
		os.Exit(CLIExitError)
	}

	resp, err := askHTTPClient.Post(serverURL()+"/v1/ask",
		"application/json", bytes.NewReader(reqBody))
	if err != nil {
		OutputError(askJSON, "Failed to reach the copilot server", err)
		os.Exit(CLIExitError)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		OutputError(askJSON, "Failed to read response", err)
		os.Exit(CLIExitError)
	}
	if resp.StatusCode != http.StatusOK {
		OutputError(askJSON, "Server rejected the request",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
		os.Exit(CLIExitError)
	}

	var answer datatypes.AskResponse
	if err := json.Unmarshal(body, &answer); err != nil {
		OutputError(askJSON, "Failed to parse response", err)
		os.Exit(CLIExitError)
	}

	if askJSON {
		if err := OutputJSON(answer, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		os.Exit(CLIExitSuccess)
	}

	fmt.Println(answer.Answer)
	fmt.Println()
	ux.Muted(fmt.Sprintf("[session=%s intents=%s outcome=%s %dms]",
		answer.SessionID,
		strings.Join(answer.Intents, ","),
		answer.Outcome,
		answer.ProcessingTimeMs,
	))
}

// =============================================================================
// AUDIT VERIFY COMMAND
// =============================================================================

// runAuditVerify asks a running copilot server to verify a session's
// audit hash chain.
//
// # Exit Codes
//
//   - 0: Chain verified intact
//   - 1: Chain verification failed (tampering detected)
//   - 2: Error
func runAuditVerify(cmd *cobra.Command, args []string) {
	sessionID := args[0]

	resp, err := askHTTPClient.Get(
		fmt.Sprintf("%s/v1/audit/%s/verify", serverURL(), sessionID))
	if err != nil {
		OutputError(false, "Failed to reach the copilot server", err)
		os.Exit(CLIExitError)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		OutputError(false, "Failed to read response", err)
		os.Exit(CLIExitError)
	}
	if resp.StatusCode != http.StatusOK {
		OutputError(false, "Server rejected the request",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
		os.Exit(CLIExitError)
	}

	var result audit.VerifySessionResult
	if err := json.Unmarshal(body, &result); err != nil {
		OutputError(false, "Failed to parse response", err)
		os.Exit(CLIExitError)
	}

	fmt.Printf("Session:   %s\n", result.SessionID)
	fmt.Printf("Records:   %d\n", result.RecordCount)
	if result.ChainHash != "" {
		fmt.Printf("ChainHash: %s\n", result.ChainHash)
	}

	if !result.Verified {
		ux.Error("Audit chain verification FAILED")
		if result.ErrorDetails != "" {
			fmt.Printf("Details:   %s\n", result.ErrorDetails)
		}
		os.Exit(CLIExitFindings)
	}
	ux.Success("Audit chain intact")
	os.Exit(CLIExitSuccess)
}
