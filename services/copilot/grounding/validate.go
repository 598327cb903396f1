// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grounding checks generated text against the structured
// evidence it claims to describe. The validator is deliberately
// conservative: any ambiguity is a failure. A false positive costs one
// template fallback; a false negative puts an invented fact in front of
// an analyst.
package grounding

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/copilot/render"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	// identifierPattern matches record-id shaped tokens: a letter prefix,
	// an optional underscore, then digits (T028, MSG_034, P123).
	identifierPattern = regexp.MustCompile(`\b[A-Za-z]+_?\d+\b`)

	// numberPattern matches numeric tokens including thousands separators
	// and decimals.
	numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

	// datePattern marks ISO-style dates, which are excluded from numeric
	// checking. Dates are free text fields, not quantities.
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// countPhrasePatterns each capture a claimed result total N.
	countPhrasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d+)\s+total\b`),
		regexp.MustCompile(`(?i)\bshowing top \d+ of (\d+)\b`),
		regexp.MustCompile(`(?i)\b(\d+)\s+(?:matches|hits|transactions|obligations)\b`),
	}

	// maskedSpanPattern captures quoted spans introduced by a masking
	// marker. Those spans must be byte-identical to a stored field.
	maskedSpanPattern = regexp.MustCompile(`(?i)(?:masked|narrative|excerpt)[^"\n]{0,20}"([^"]*)"`)

	// Field assertion patterns for provenance checking.
	ownerPattern    = regexp.MustCompile(`Owner:\s*([^|\n]+)`)
	deadlinePattern = regexp.MustCompile(`Deadline:\s*([^|\n]+)`)
	tagsPattern     = regexp.MustCompile(`Tags:\s*([^|\n]+)`)
	typologyPattern = regexp.MustCompile(`Typology:\s*([^|\n]+)`)
)

// numericMarkers name a number as a quantity the evidence must back:
// currency codes and the risk/score vocabulary. The "/10" scale marker
// is detected separately on the token itself.
var numericMarkers = map[string]bool{
	"$": true, "s$": true, "sgd": true, "usd": true, "eur": true,
	"risk": true, "score": true,
}

// numericWindow is how many tokens away a marker may sit from the number
// it qualifies.
const numericWindow = 4

// Validate checks a generated response against its evidence.
//
// # Description
//
// Runs every integrity check and returns all violations found, not just
// the first, so the audit record carries the full reason for a fallback.
// Empty evidence is decided by the empty-evidence guard alone: the only
// valid response is the exact no-results sentinel.
//
// # Inputs
//
//   - response: Untrusted generator output.
//   - evidence: The dispatcher result the response claims to describe.
//
// # Outputs
//
//   - datatypes.ValidationReport: Passed() only with zero violations.
//
// # Thread Safety
//
// Pure. Safe for concurrent use.
func Validate(response string, evidence *datatypes.ToolResult) datatypes.ValidationReport {
	var report datatypes.ValidationReport

	if evidence == nil || evidence.Count == 0 {
		if response != render.NoResultsSentinel {
			report.Violations = append(report.Violations, datatypes.Violation{
				Kind:   datatypes.ViolationSpuriousContent,
				Detail: "evidence is empty but the response is not the no-results sentinel",
			})
		}
		return report
	}

	idx := buildIndex(evidence)
	checkIdentifiers(&report, response, idx)
	checkNumbers(&report, response, idx)
	checkCounts(&report, response, evidence.Count)
	checkMasking(&report, response, idx)
	checkFieldProvenance(&report, response, idx)
	return report
}

// =============================================================================
// Evidence Index
// =============================================================================

// evidenceIndex precomputes the lookup sets the checks run against.
type evidenceIndex struct {
	ids         map[string]bool
	numbersByID map[string]map[string]bool
	allNumbers  map[string]bool
	maskedSpans map[string]bool
	owners      map[string]bool
	deadlines   map[string]bool
	tags        map[string]bool
	haystack    []string
}

func buildIndex(evidence *datatypes.ToolResult) *evidenceIndex {
	idx := &evidenceIndex{
		ids:         make(map[string]bool),
		numbersByID: make(map[string]map[string]bool),
		allNumbers:  make(map[string]bool),
		maskedSpans: make(map[string]bool),
		owners:      make(map[string]bool),
		deadlines:   make(map[string]bool),
		tags:        make(map[string]bool),
	}
	addNumber := func(id, raw string) {
		n := normalizeNumber(raw)
		if n == "" {
			return
		}
		idx.allNumbers[n] = true
		if id != "" {
			if idx.numbersByID[id] == nil {
				idx.numbersByID[id] = make(map[string]bool)
			}
			idx.numbersByID[id][n] = true
		}
	}
	// Numbers embedded in a record's own text fields count as found in
	// that record.
	addTextNumbers := func(id, text string) {
		for _, num := range numberPattern.FindAllString(text, -1) {
			addNumber(id, num)
		}
	}

	for _, h := range evidence.PIIHits {
		idx.ids[h.MessageID] = true
		idx.maskedSpans[h.MaskedText] = true
		addTextNumbers(h.MessageID, h.MaskedText)
		idx.haystack = append(idx.haystack, h.MessageID, h.MaskedText, h.RiskFlag)
		idx.haystack = append(idx.haystack, h.Entities...)
	}
	for _, m := range evidence.AMLMatches {
		idx.ids[m.TransactionID] = true
		idx.maskedSpans[m.MaskedNarrative] = true
		addNumber(m.TransactionID, render.FormatAmount(m.Amount))
		addNumber(m.TransactionID, render.FormatRisk(m.RiskScore))
		addTextNumbers(m.TransactionID, m.MaskedNarrative)
		for _, tag := range m.Tags {
			idx.tags[tag] = true
		}
		idx.haystack = append(idx.haystack, m.TransactionID, m.MaskedNarrative, m.Date)
		idx.haystack = append(idx.haystack, m.Tags...)
	}
	for _, m := range evidence.RegMatches {
		if m.ParagraphID != "" {
			idx.ids[m.ParagraphID] = true
		}
		idx.maskedSpans[m.Excerpt] = true
		addNumber(m.ParagraphID, strconv.Itoa(m.RowIndex))
		addTextNumbers(m.ParagraphID, m.Excerpt)
		if m.Owner != "" {
			idx.owners[m.Owner] = true
		}
		for _, bu := range m.BusinessUnits {
			idx.owners[bu] = true
		}
		if len(m.BusinessUnits) > 0 {
			idx.owners[strings.Join(m.BusinessUnits, ", ")] = true
		}
		if m.Deadline != "" {
			idx.deadlines[m.Deadline] = true
		}
		idx.haystack = append(idx.haystack, m.ParagraphID, m.SourceDocument,
			m.Regulation, m.Article, m.Owner, m.Deadline, m.Excerpt)
		idx.haystack = append(idx.haystack, m.BusinessUnits...)
	}
	if evidence.SAR != nil {
		idx.ids[evidence.SAR.TransactionID] = true
		addTextNumbers(evidence.SAR.TransactionID, evidence.SAR.DraftText)
		idx.haystack = append(idx.haystack, evidence.SAR.TransactionID, evidence.SAR.DraftText)
	}
	return idx
}

// =============================================================================
// Checks
// =============================================================================

// checkIdentifiers flags record-id shaped tokens absent from the
// evidence. A token is accepted when it is a known record id or occurs
// inside any evidence text field, which covers quoted excerpts and
// source-document names like mas610.pdf.
func checkIdentifiers(report *datatypes.ValidationReport, response string, idx *evidenceIndex) {
	seen := make(map[string]bool)
	for _, token := range identifierPattern.FindAllString(response, -1) {
		if seen[token] {
			continue
		}
		seen[token] = true
		if idx.ids[token] || idx.inHaystack(token) {
			continue
		}
		report.Violations = append(report.Violations, datatypes.Violation{
			Kind:       datatypes.ViolationUnknownIdentifier,
			Identifier: token,
			Detail:     "identifier " + token + " does not exist in the evidence",
		})
	}
}

func (idx *evidenceIndex) inHaystack(token string) bool {
	for _, field := range idx.haystack {
		if field != "" && strings.Contains(field, token) {
			return true
		}
	}
	return false
}

// checkNumbers verifies every marker-qualified number. When a line names
// exactly one evidence record, its numbers must come from that record;
// otherwise any evidence number is accepted.
func checkNumbers(report *datatypes.ValidationReport, response string, idx *evidenceIndex) {
	for _, line := range strings.Split(response, "\n") {
		allowed := idx.allNumbers
		scope := "evidence"
		if id := singleKnownID(line, idx); id != "" {
			if perID := idx.numbersByID[id]; len(perID) > 0 {
				allowed = perID
				scope = "record " + id
			}
		}

		tokens := strings.Fields(line)
		for i, token := range tokens {
			if !markerNearby(tokens, i) {
				continue
			}
			// "out of 10" is a scale, same as "/10"
			if strings.Trim(token, "*()\",.;:") == "10" && i > 0 &&
				strings.EqualFold(strings.Trim(tokens[i-1], "*()\",.;:"), "of") {
				continue
			}
			for _, num := range extractNumbers(token) {
				n := normalizeNumber(num)
				if n == "" || allowed[n] {
					continue
				}
				report.Violations = append(report.Violations, datatypes.Violation{
					Kind:   datatypes.ViolationNumericMismatch,
					Detail: "number " + num + " near a quantity marker has no match in " + scope,
				})
			}
		}
	}
}

// singleKnownID returns the record id when the line mentions exactly one
// known identifier, otherwise empty.
func singleKnownID(line string, idx *evidenceIndex) string {
	found := ""
	for _, token := range identifierPattern.FindAllString(line, -1) {
		if !idx.ids[token] {
			continue
		}
		if found != "" && found != token {
			return ""
		}
		found = token
	}
	return found
}

// markerNearby reports whether a quantity marker sits within the token
// window around position i. A "/10" scale inside the token itself also
// qualifies.
func markerNearby(tokens []string, i int) bool {
	lo := i - numericWindow
	if lo < 0 {
		lo = 0
	}
	hi := i + numericWindow
	if hi >= len(tokens) {
		hi = len(tokens) - 1
	}
	for j := lo; j <= hi; j++ {
		t := strings.ToLower(strings.Trim(tokens[j], "*()\",.;:"))
		if numericMarkers[t] || strings.Contains(t, "/10") {
			return true
		}
		if strings.HasPrefix(t, "$") || strings.HasPrefix(t, "s$") {
			return true
		}
	}
	return false
}

// extractNumbers pulls the numeric substrings out of one token, skipping
// dates and the literal 10 of a "/10" scale.
func extractNumbers(token string) []string {
	trimmed := strings.Trim(token, "*()\",.;:")
	if datePattern.MatchString(trimmed) {
		return nil
	}
	var nums []string
	for _, loc := range numberPattern.FindAllStringIndex(token, -1) {
		if loc[0] > 0 && token[loc[0]-1] == '/' {
			continue
		}
		nums = append(nums, token[loc[0]:loc[1]])
	}
	return nums
}

// checkCounts verifies every claimed result total against the true
// evidence count.
func checkCounts(report *datatypes.ValidationReport, response string, count int) {
	want := strconv.Itoa(count)
	for _, pattern := range countPhrasePatterns {
		for _, m := range pattern.FindAllStringSubmatch(response, -1) {
			if m[1] == want {
				continue
			}
			report.Violations = append(report.Violations, datatypes.Violation{
				Kind:   datatypes.ViolationCountMismatch,
				Detail: "claimed total " + m[1] + " but the evidence count is " + want,
			})
		}
	}
}

// checkMasking verifies that quoted masked spans are byte-identical to a
// stored field. Re-masking, partial unmasking, or any edit fails.
func checkMasking(report *datatypes.ValidationReport, response string, idx *evidenceIndex) {
	for _, m := range maskedSpanPattern.FindAllStringSubmatch(response, -1) {
		span := m[1]
		if idx.maskedSpans[span] {
			continue
		}
		report.Violations = append(report.Violations, datatypes.Violation{
			Kind:   datatypes.ViolationMaskingViolation,
			Detail: "quoted span \"" + span + "\" is not byte-identical to any stored masked field",
		})
	}
}

// checkFieldProvenance verifies asserted owners, deadlines, tags, and
// typologies against the evidence. The renderer's explicit
// missing-value markers are the only non-evidence values accepted.
func checkFieldProvenance(report *datatypes.ValidationReport, response string, idx *evidenceIndex) {
	addViolation := func(field, value string) {
		report.Violations = append(report.Violations, datatypes.Violation{
			Kind:   datatypes.ViolationInventedField,
			Detail: field + " " + strconv.Quote(value) + " appears in no evidence record",
		})
	}

	for _, m := range ownerPattern.FindAllStringSubmatch(response, -1) {
		value := strings.TrimSpace(m[1])
		if value == "" || value == "Unassigned" || idx.owners[value] {
			continue
		}
		addViolation("owner", value)
	}
	for _, m := range deadlinePattern.FindAllStringSubmatch(response, -1) {
		value := strings.TrimSpace(m[1])
		if value == "" || value == "(not provided)" || idx.deadlines[value] {
			continue
		}
		addViolation("deadline", value)
	}
	for _, pattern := range []*regexp.Regexp{tagsPattern, typologyPattern} {
		for _, m := range pattern.FindAllStringSubmatch(response, -1) {
			value := strings.TrimSpace(m[1])
			if value == "" || value == "(not provided)" {
				continue
			}
			for _, tag := range strings.Split(value, ",") {
				tag = strings.TrimSpace(tag)
				if tag == "" || idx.tags[tag] {
					continue
				}
				addViolation("tag", tag)
			}
		}
	}
}

// normalizeNumber strips thousands separators and trailing-zero decimal
// formatting so "50,000", "50000" and "50000.00" compare equal.
func normalizeNumber(raw string) string {
	cleaned := strings.ReplaceAll(raw, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
