// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent routes analyst queries to compliance domains using the
// embedded trigger table. Classification is deterministic keyword
// matching only; it never infers a domain from semantic proximity.
package intent

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/trigger_engine"
)

// =============================================================================
// Confidence Scoring Constants
// =============================================================================

const (
	// baseMultiWord is the starting confidence when at least one exact
	// multi-word trigger phrase matched.
	baseMultiWord = 0.9

	// baseSingleWord is the starting confidence when only single-word
	// phrases or regex patterns matched.
	baseSingleWord = 0.8

	// ambiguityPenalty is subtracted once per distinct ambiguity signal
	// (negation, definition question, quoted trigger word).
	ambiguityPenalty = 0.1

	// confidenceFloor is the lowest confidence ever reported for a
	// matched classification.
	confidenceFloor = 0.1
)

// contextVocabulary marks a query as plausibly compliance-related even
// when no trigger fires. An out-of-scope verdict on such a query gets a
// weaker confidence than one on clearly unrelated text.
var contextVocabulary = []string{
	"transaction", "customer", "account", "bank", "compliance",
	"regulation", "report", "risk", "audit", "payment",
}

// Router classifies queries against the immutable trigger table. It is
// stateless beyond the shared read-only engine and safe for concurrent
// use.
type Router struct {
	engine *trigger_engine.TriggerEngine
}

// NewRouter wraps a loaded trigger engine.
func NewRouter(engine *trigger_engine.TriggerEngine) *Router {
	return &Router{engine: engine}
}

// Classify maps a query to one or more intent tags.
//
// # Description
//
// Applies the routing rules in precedence order:
//  1. Any SAR trigger includes SAR_DRAFT. SAR phrasing suppresses
//     AML_SEARCH entirely, so an identifier or typology word occurring
//     alongside a drafting request does not also fan out to AML search.
//  2. Otherwise an AML trigger phrase or a bare transaction-style
//     identifier adds AML_SEARCH.
//  3. PII and REG triggers fire independently of 1-2 and combine with
//     whatever else matched.
//  4. Nothing matched: OUT_OF_SCOPE, alone.
//
// Confidence starts at 0.9 when an exact multi-word phrase matched
// (0.8 for single-word or regex matches only), loses 0.1 per distinct
// ambiguity signal, and never drops below 0.1. The reason string quotes
// the matched query text verbatim.
//
// # Thread Safety
//
// Pure. Never returns an error; an unmatched query yields OUT_OF_SCOPE.
func (r *Router) Classify(query string) datatypes.ClassificationResult {
	hits := r.engine.MatchQuery(query)
	signals := r.engine.AmbiguitySignals(query)

	byIntent := make(map[string][]trigger_engine.TriggerHit)
	for _, h := range hits {
		byIntent[h.Intent] = append(byIntent[h.Intent], h)
	}

	sarFired := len(byIntent["SAR_DRAFT"]) > 0

	// Hits arrive in table priority order (SAR, AML, PII, REG), which
	// fixes the tag order of multi-tag results.
	var intents []datatypes.Intent
	var kept []trigger_engine.TriggerHit
	appendIntent := func(tag datatypes.Intent, tagHits []trigger_engine.TriggerHit) {
		if len(tagHits) == 0 {
			return
		}
		intents = append(intents, tag)
		kept = append(kept, tagHits...)
	}

	appendIntent(datatypes.IntentSARDraft, byIntent["SAR_DRAFT"])
	if !sarFired {
		appendIntent(datatypes.IntentAMLSearch, byIntent["AML_SEARCH"])
	}
	appendIntent(datatypes.IntentPIISearch, byIntent["PII_SEARCH"])
	appendIntent(datatypes.IntentRegSearch, byIntent["REG_SEARCH"])

	if len(intents) == 0 {
		return outOfScopeResult(query, signals)
	}

	return datatypes.ClassificationResult{
		Intents:          intents,
		Confidence:       scoreConfidence(kept, signals),
		Reason:           buildReason(kept),
		AmbiguitySignals: signals,
	}
}

// scoreConfidence applies the base-and-penalty scheme described on
// Classify.
func scoreConfidence(hits []trigger_engine.TriggerHit, signals []string) float64 {
	base := baseSingleWord
	for _, h := range hits {
		if h.MultiWord {
			base = baseMultiWord
			break
		}
	}
	score := base - ambiguityPenalty*float64(len(signals))
	if score < confidenceFloor {
		score = confidenceFloor
	}
	return score
}

// buildReason quotes every matched trigger verbatim, grouped by intent,
// e.g. `matched "structuring" (AML_SEARCH), "NRIC" (PII_SEARCH)`.
func buildReason(hits []trigger_engine.TriggerHit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("%q (%s)", h.Matched, h.Intent))
	}
	return "matched " + strings.Join(parts, ", ")
}

// outOfScopeResult grades how plausible the unmatched query looked.
// Queries carrying general compliance vocabulary sit in the 0.4-0.6
// band; clearly unrelated text bottoms out at 0.2.
func outOfScopeResult(query string, signals []string) datatypes.ClassificationResult {
	lower := strings.ToLower(query)
	contextHits := 0
	for _, word := range contextVocabulary {
		if strings.Contains(lower, word) {
			contextHits++
		}
	}
	confidence := 0.2
	switch {
	case contextHits >= 2:
		confidence = 0.6
	case contextHits == 1:
		confidence = 0.4
	}
	return datatypes.ClassificationResult{
		Intents:          []datatypes.Intent{datatypes.IntentOutOfScope},
		Confidence:       confidence,
		Reason:           "no trigger phrases matched",
		AmbiguitySignals: signals,
	}
}
