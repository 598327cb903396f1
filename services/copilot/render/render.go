// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render produces the deterministic, always-correct text for an
// evidence set. The renderer is the fallback whenever generated text
// fails grounding validation and the reference for what a correct answer
// may claim: every fact it prints comes straight from an evidence field.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
)

// =============================================================================
// Sentinels and Layout Constants
// =============================================================================

const (
	// NoResultsSentinel is emitted for any evidence with count zero,
	// regardless of domain. Bit-exact contract with the validator's
	// empty-evidence guard.
	NoResultsSentinel = "No results found for your query."

	piiHeader = "**PII Matches Found:**"
	amlHeader = "**High-Risk Transactions:**"
	regHeader = "**Regulatory Obligations:**"

	// notProvided fills any field the evidence does not carry. Fields
	// are never invented.
	notProvided = "(not provided)"

	// DefaultTopK caps displayed rows when the caller passes no limit.
	DefaultTopK = 10

	// Display truncation lengths per domain. Applies to rendered rows
	// only; stored evidence fields are never modified.
	piiExcerptRunes = 140
	amlExcerptRunes = 160
	regExcerptRunes = 200
)

// Render produces the canonical text for an evidence set.
//
// # Description
//
// Total, pure, and deterministic: the same evidence always yields
// byte-identical output. Rows are sorted by the domain ordering policy
// (PII by risk severity, AML by risk score then amount), capped at topK
// displayed rows, while the header states the true total count. A topK
// of zero or less means DefaultTopK.
//
// # Thread Safety
//
// Pure. The evidence slices are copied before sorting, so a shared
// ToolResult is never mutated.
func Render(evidence *datatypes.ToolResult, topK int) string {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if evidence == nil || evidence.Count == 0 {
		return NoResultsSentinel
	}

	switch evidence.Domain {
	case datatypes.DomainPII:
		return renderPII(evidence, topK)
	case datatypes.DomainAML:
		return renderAML(evidence, topK)
	case datatypes.DomainReg:
		return renderReg(evidence, topK)
	case datatypes.DomainSAR:
		return renderSAR(evidence)
	default:
		// General evidence carries no renderable records.
		return NoResultsSentinel
	}
}

// =============================================================================
// Domain Layouts
// =============================================================================

func renderPII(evidence *datatypes.ToolResult, topK int) string {
	hits := make([]datatypes.PIIHit, len(evidence.PIIHits))
	copy(hits, evidence.PIIHits)
	datatypes.SortPIIHits(hits)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d total)\n", piiHeader, evidence.Count)
	b.WriteString(riskDistributionLine(hits))

	shown := hits
	if len(shown) > topK {
		shown = shown[:topK]
	}
	for _, h := range shown {
		fmt.Fprintf(&b, "\n• %s | Risk: %s | Entities: %s\n",
			h.MessageID, orNotProvided(h.RiskFlag), joinOrNotProvided(h.Entities))
		fmt.Fprintf(&b, "  Masked: \"%s\"\n", truncateRunes(h.MaskedText, piiExcerptRunes))
	}
	writeTruncationFooter(&b, len(shown), evidence.Count)
	return strings.TrimRight(b.String(), "\n")
}

// riskDistributionLine counts hits per severity band. Derived from the
// evidence only, so the validator can cross-check every number on it.
func riskDistributionLine(hits []datatypes.PIIHit) string {
	counts := map[string]int{}
	for _, h := range hits {
		counts[h.RiskFlag]++
	}
	return fmt.Sprintf("Critical: %d, High: %d, Medium: %d, Low: %d\n",
		counts["Critical"], counts["High"], counts["Medium"], counts["Low"])
}

func renderAML(evidence *datatypes.ToolResult, topK int) string {
	matches := make([]datatypes.AMLMatch, len(evidence.AMLMatches))
	copy(matches, evidence.AMLMatches)
	datatypes.SortAMLMatches(matches)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d total)\n", amlHeader, evidence.Count)

	shown := matches
	if len(shown) > topK {
		shown = shown[:topK]
	}
	for _, m := range shown {
		fmt.Fprintf(&b, "\n• %s | SGD %s | Risk: **%s/10** | %s\n",
			m.TransactionID, FormatAmount(m.Amount), FormatRisk(m.RiskScore), orNotProvided(m.Date))
		fmt.Fprintf(&b, "  Tags: %s\n", joinOrNotProvided(m.Tags))
		fmt.Fprintf(&b, "  Narrative: \"%s\"\n", truncateRunes(m.MaskedNarrative, amlExcerptRunes))
	}
	writeTruncationFooter(&b, len(shown), evidence.Count)
	return strings.TrimRight(b.String(), "\n")
}

func renderReg(evidence *datatypes.ToolResult, topK int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d total)\n", regHeader, evidence.Count)

	shown := evidence.RegMatches
	if len(shown) > topK {
		shown = shown[:topK]
	}
	for _, m := range shown {
		fmt.Fprintf(&b, "\n• %s | Owner: %s | Deadline: %s\n",
			regTitle(m), regOwner(m), orNotProvided(m.Deadline))
		if m.Excerpt != "" {
			fmt.Fprintf(&b, "  %s\n", truncateRunes(m.Excerpt, regExcerptRunes))
		}
		fmt.Fprintf(&b, "  %s\n", Citation(m))
	}
	writeTruncationFooter(&b, len(shown), evidence.Count)
	return strings.TrimRight(b.String(), "\n")
}

func regTitle(m datatypes.RegMatch) string {
	switch {
	case m.Regulation != "" && m.Article != "":
		return m.Regulation + " Article " + m.Article
	case m.Regulation != "":
		return m.Regulation
	default:
		return m.ParagraphID
	}
}

// regOwner falls back from the named owner to the business units, then
// to an explicit Unassigned marker.
func regOwner(m datatypes.RegMatch) string {
	if m.Owner != "" {
		return m.Owner
	}
	if len(m.BusinessUnits) > 0 {
		return strings.Join(m.BusinessUnits, ", ")
	}
	return "Unassigned"
}

// Citation renders the bit-exact citation contract shared with the
// validator: paragraph citations when the match carries a paragraph id,
// row-index citations otherwise.
func Citation(m datatypes.RegMatch) string {
	if m.ParagraphID != "" {
		return fmt.Sprintf("(source: %s — paragraph %s)", m.SourceDocument, m.ParagraphID)
	}
	return fmt.Sprintf("(source: %s row_index %d)", m.SourceDocument, m.RowIndex)
}

func renderSAR(evidence *datatypes.ToolResult) string {
	if evidence.SAR != nil && evidence.SAR.DraftText != "" {
		// Pre-built drafts are reproduced exactly, never paraphrased.
		return fmt.Sprintf("**SAR Drafted for %s**\n\n%s",
			evidence.SAR.TransactionID, evidence.SAR.DraftText)
	}
	if len(evidence.AMLMatches) > 0 {
		return synthesizeSAR(evidence.AMLMatches[0])
	}
	return NoResultsSentinel
}

// synthesizeSAR composes the fixed SAR body from structured AML fields
// when the upstream tool returned no pre-built draft. Missing fields
// render the not-provided marker rather than a guess.
func synthesizeSAR(m datatypes.AMLMatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**SAR Drafted for %s**\n\n", m.TransactionID)
	b.WriteString("SUSPICIOUS ACTIVITY REPORT (DRAFT)\n")
	fmt.Fprintf(&b, "Transaction: %s\n", m.TransactionID)
	if m.Amount > 0 {
		fmt.Fprintf(&b, "Amount: SGD %s\n", FormatAmount(m.Amount))
	} else {
		fmt.Fprintf(&b, "Amount: %s\n", notProvided)
	}
	fmt.Fprintf(&b, "Typology: %s\n", joinOrNotProvided(m.Tags))
	if m.RiskScore > 0 {
		fmt.Fprintf(&b, "Risk: %s/10\n", FormatRisk(m.RiskScore))
	} else {
		fmt.Fprintf(&b, "Risk: %s\n", notProvided)
	}
	if m.MaskedNarrative != "" {
		fmt.Fprintf(&b, "Narrative: \"%s\"\n", m.MaskedNarrative)
	} else {
		fmt.Fprintf(&b, "Narrative: %s\n", notProvided)
	}
	fmt.Fprintf(&b, "Date: %s\n", orNotProvided(m.Date))
	b.WriteString("\nThis draft was assembled from structured transaction evidence and requires analyst review before filing.")
	return b.String()
}

// =============================================================================
// Formatting Helpers
// =============================================================================

// FormatAmount renders a monetary amount without trailing zeros, e.g.
// 50000 -> "50000", 9900.5 -> "9900.5". Shared with the validator's
// numeric normalization.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// FormatRisk renders a risk score with one decimal place, e.g.
// 8.5 -> "8.5", 7 -> "7.0".
func FormatRisk(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}

func writeTruncationFooter(b *strings.Builder, shown, total int) {
	if total > shown {
		fmt.Fprintf(b, "\nShowing top %d of %d.\n", shown, total)
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func orNotProvided(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}

func joinOrNotProvided(items []string) string {
	if len(items) == 0 {
		return notProvided
	}
	return strings.Join(items, ", ")
}
