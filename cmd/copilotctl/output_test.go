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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResult_CarriesReason(t *testing.T) {
	result := ClassifyResult{
		Query:      "draft sar for T028",
		Intents:    []string{"SAR_DRAFT"},
		Confidence: 0.9,
		Reason:     `Matched SAR trigger "draft sar"`,
		InScope:    true,
	}

	out, err := json.Marshal(result)
	require.NoError(t, err)

	var echo map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &echo))
	assert.Contains(t, echo, "reason")
	assert.Contains(t, echo, "confidence")
	assert.Contains(t, echo, "in_scope")
}
