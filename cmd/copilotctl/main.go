// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command copilotctl is the operator CLI for the CompliancePilot core.
//
// It works offline against the trigger table embedded in the binary
// (triggers, classify, render) and online against a running copilot
// server (ask, audit verify).
//
// # Environment Variables
//
//   - COPILOT_URL: Base URL of a running copilot server for the online
//     commands (default: http://localhost:8610)
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
