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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerURL_Default(t *testing.T) {
	t.Setenv("COPILOT_URL", "")
	assert.Equal(t, "http://localhost:8610", serverURL())
}

func TestServerURL_FromEnvironment(t *testing.T) {
	t.Setenv("COPILOT_URL", "http://copilot.internal:9000")
	assert.Equal(t, "http://copilot.internal:9000", serverURL())
}

func TestServerURL_StripsTrailingSlash(t *testing.T) {
	t.Setenv("COPILOT_URL", "http://copilot.internal:9000/")
	assert.Equal(t, "http://copilot.internal:9000", serverURL())
}
