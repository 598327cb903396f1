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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/copilot/render"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var renderTopK int

// =============================================================================
// RENDER COMMAND
// =============================================================================

// runRender renders a tool evidence JSON file into the deterministic
// template, exactly as the server's fallback path would. Reads stdin
// when no file argument is given.
//
// The input is one ToolResult object as returned by the tool service,
// for example:
//
//	copilotctl render evidence.json
//	curl -s http://copilot-tools:8600/v1/tools/aml/search -d '...' | copilotctl render
//
// # Exit Codes
//
//   - 0: Rendered successfully
//   - 2: Error (unreadable or malformed input)
func runRender(cmd *cobra.Command, args []string) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		OutputError(false, "Failed to read evidence input", err)
		os.Exit(CLIExitError)
	}

	var evidence datatypes.ToolResult
	if err := json.Unmarshal(data, &evidence); err != nil {
		OutputError(false, "Failed to parse evidence JSON", err)
		os.Exit(CLIExitError)
	}

	fmt.Println(render.Render(&evidence, renderTopK))
}
