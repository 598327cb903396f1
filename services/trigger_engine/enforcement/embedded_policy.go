// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file serves as the bridge between the build system and the runtime logic. It utilizes the Go
embed package to bake the intent_trigger_patterns.yaml file directly into the compiled binary.
This ensures that the routing table is immutable at runtime and travels with the executable.
*/

package enforcement

import (
	_ "embed"
)

// IntentTriggerPatterns holds the raw byte content of the 'intent_trigger_patterns.yaml' file.
//
// This variable is populated at compile-time using the Go 'embed' directive. By baking the
// YAML directly into the binary, we ensure that the trigger table used for intent routing
// is immutable and cannot be tampered with on the host filesystem without recompiling the
// application. Operators can verify the running table with `copilotctl triggers verify`,
// which prints its SHA-256 fingerprint.
//
// Usage:
//
//	// Pass these bytes directly to yaml.Unmarshal
//	err := yaml.Unmarshal(enforcement.IntentTriggerPatterns, &targetStruct)
//
//go:embed intent_trigger_patterns.yaml
var IntentTriggerPatterns []byte
