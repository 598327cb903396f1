// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Intent is one of the five routing targets for an analyst query.
type Intent string

const (
	IntentPIISearch  Intent = "PII_SEARCH"
	IntentAMLSearch  Intent = "AML_SEARCH"
	IntentRegSearch  Intent = "REG_SEARCH"
	IntentSARDraft   Intent = "SAR_DRAFT"
	IntentOutOfScope Intent = "OUT_OF_SCOPE"
)

// ClassificationResult is the router's verdict for one query.
//
// # Fields
//
//   - Intents: One or more intent tags. OUT_OF_SCOPE never co-occurs
//     with any other tag.
//   - Confidence: Score in [0.1, 0.9] after ambiguity penalties. For
//     OUT_OF_SCOPE the score sits in roughly [0.2, 0.6] and reflects how
//     many intent categories had zero trigger hits.
//   - Reason: Human-readable explanation quoting the matched trigger
//     phrases verbatim from the query. Stored in the audit record.
//   - AmbiguitySignals: Ids of the stoplist markers found in the query,
//     each of which subtracted one penalty step from the confidence.
type ClassificationResult struct {
	Intents          []Intent `json:"intents"`
	Confidence       float64  `json:"confidence"`
	Reason           string   `json:"reason"`
	AmbiguitySignals []string `json:"ambiguity_signals,omitempty"`
}

// HasIntent reports whether the given tag was assigned.
func (c *ClassificationResult) HasIntent(intent Intent) bool {
	for _, i := range c.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

// IsOutOfScope reports whether the query was declined as out of scope.
func (c *ClassificationResult) IsOutOfScope() bool {
	return len(c.Intents) == 1 && c.Intents[0] == IntentOutOfScope
}

// IntentStrings returns the tags as plain strings for logging and
// metrics labels.
func (c *ClassificationResult) IntentStrings() []string {
	out := make([]string, len(c.Intents))
	for i, intent := range c.Intents {
		out[i] = string(intent)
	}
	return out
}
