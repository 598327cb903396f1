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

import (
	"encoding/json"
	"fmt"
	"sort"
)

// =============================================================================
// Domains
// =============================================================================

// Domain identifies which evidence shape a ToolResult carries.
type Domain string

const (
	DomainPII     Domain = "pii"
	DomainAML     Domain = "aml"
	DomainReg     Domain = "reg"
	DomainSAR     Domain = "sar"
	DomainGeneral Domain = "general"
)

// =============================================================================
// Evidence Record Types
// =============================================================================

// PIIHit is one masked personal-data exposure found in message records.
// MaskedText is already masked by the upstream store; this service never
// unmasks and treats the bytes as opaque.
type PIIHit struct {
	MessageID  string   `json:"message_id"`
	MaskedText string   `json:"masked_text"`
	Entities   []string `json:"entities"`
	RiskFlag   string   `json:"risk_flag"`
}

// AMLMatch is one suspicious transaction returned by the AML search tool.
type AMLMatch struct {
	TransactionID   string   `json:"transaction_id"`
	MaskedNarrative string   `json:"masked_narrative"`
	Tags            []string `json:"tags"`
	RiskScore       float64  `json:"risk_score"`
	Amount          float64  `json:"amount"`
	Date            string   `json:"date"`
}

// RegMatch is one regulatory obligation paragraph or table row.
type RegMatch struct {
	ParagraphID    string   `json:"paragraph_id"`
	SourceDocument string   `json:"source_document"`
	Regulation     string   `json:"regulation"`
	Article        string   `json:"article"`
	Owner          string   `json:"owner"`
	BusinessUnits  []string `json:"business_units"`
	Deadline       string   `json:"deadline"`
	Excerpt        string   `json:"excerpt"`
	RowIndex       int      `json:"row_index"`
}

// SARDraft is a pre-built suspicious activity report draft for one
// transaction. DraftText is emitted verbatim, never paraphrased.
type SARDraft struct {
	TransactionID string `json:"transaction_id"`
	DraftText     string `json:"draft_text"`
}

// =============================================================================
// ToolResult Union
// =============================================================================

// ToolResult is the tagged union returned by the tool dispatcher.
//
// # Description
//
// Exactly one of the evidence slices (or the SAR pointer) is populated,
// selected by Domain. Count is the true total of matching records, which
// may exceed the number of rows present when the upstream store truncates.
// Contradictory marks evidence sets the upstream tools flagged as
// mutually inconsistent; the assembler answers those with a fixed
// sentinel and never shows the rows.
//
// # Wire Format
//
// The JSON shape follows the upstream tool contract:
//
//	pii:  {"domain":"pii","count":N,"hits":[...]}
//	aml:  {"domain":"aml","count":N,"matches":[...]}
//	reg:  {"domain":"reg","count":N,"matches":[...]}
//	sar:  {"domain":"sar","count":1,"transaction_id":"T028","sar_draft":"..."}
//
// SAR results without a pre-built draft instead carry the source
// transaction under "matches" (AMLMatch shape); the renderer synthesizes
// the draft body from those fields.
//
// AML and REG share the "matches" key; Domain disambiguates, which is why
// this type carries custom JSON marshalling.
//
// # Thread Safety
//
// ToolResult is treated as immutable after the dispatcher returns it.
// The ordering helpers sort in place and must be called before the
// result is shared.
type ToolResult struct {
	Domain        Domain
	Count         int
	Contradictory bool
	PIIHits       []PIIHit
	AMLMatches    []AMLMatch
	RegMatches    []RegMatch
	SAR           *SARDraft
}

// toolResultWire is the envelope used for JSON encoding. RawMatches
// holds the domain-dependent "matches" payload until Domain is known.
type toolResultWire struct {
	Domain        Domain          `json:"domain"`
	Count         int             `json:"count"`
	Contradictory bool            `json:"contradictory,omitempty"`
	Hits          []PIIHit        `json:"hits,omitempty"`
	RawMatches    json.RawMessage `json:"matches,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	SARDraft      string          `json:"sar_draft,omitempty"`
}

func (t *ToolResult) MarshalJSON() ([]byte, error) {
	wire := toolResultWire{
		Domain:        t.Domain,
		Count:         t.Count,
		Contradictory: t.Contradictory,
	}
	switch t.Domain {
	case DomainPII:
		wire.Hits = t.PIIHits
	case DomainAML:
		if t.AMLMatches != nil {
			raw, err := json.Marshal(t.AMLMatches)
			if err != nil {
				return nil, err
			}
			wire.RawMatches = raw
		}
	case DomainReg:
		if t.RegMatches != nil {
			raw, err := json.Marshal(t.RegMatches)
			if err != nil {
				return nil, err
			}
			wire.RawMatches = raw
		}
	case DomainSAR:
		if t.SAR != nil {
			wire.TransactionID = t.SAR.TransactionID
			wire.SARDraft = t.SAR.DraftText
		}
		if t.AMLMatches != nil {
			raw, err := json.Marshal(t.AMLMatches)
			if err != nil {
				return nil, err
			}
			wire.RawMatches = raw
		}
	case DomainGeneral:
		// no evidence payload
	default:
		return nil, fmt.Errorf("unknown evidence domain %q", t.Domain)
	}
	return json.Marshal(wire)
}

func (t *ToolResult) UnmarshalJSON(data []byte) error {
	var wire toolResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Domain = wire.Domain
	t.Count = wire.Count
	t.Contradictory = wire.Contradictory
	t.PIIHits = nil
	t.AMLMatches = nil
	t.RegMatches = nil
	t.SAR = nil

	switch wire.Domain {
	case DomainPII:
		t.PIIHits = wire.Hits
	case DomainAML:
		if len(wire.RawMatches) > 0 {
			if err := json.Unmarshal(wire.RawMatches, &t.AMLMatches); err != nil {
				return fmt.Errorf("failed to decode aml matches: %w", err)
			}
		}
	case DomainReg:
		if len(wire.RawMatches) > 0 {
			if err := json.Unmarshal(wire.RawMatches, &t.RegMatches); err != nil {
				return fmt.Errorf("failed to decode reg matches: %w", err)
			}
		}
	case DomainSAR:
		if wire.TransactionID != "" || wire.SARDraft != "" {
			t.SAR = &SARDraft{
				TransactionID: wire.TransactionID,
				DraftText:     wire.SARDraft,
			}
		}
		// Draftless SAR evidence carries its source transaction as AML
		// fields under "matches".
		if len(wire.RawMatches) > 0 {
			if err := json.Unmarshal(wire.RawMatches, &t.AMLMatches); err != nil {
				return fmt.Errorf("failed to decode sar matches: %w", err)
			}
		}
	case DomainGeneral:
		// nothing to decode
	default:
		return fmt.Errorf("unknown evidence domain %q", wire.Domain)
	}
	return nil
}

// IsEmpty reports whether the result carries no matching records.
func (t *ToolResult) IsEmpty() bool {
	return t.Count == 0
}

// Identifiers returns the record identifiers present in the evidence
// (message ids, transaction ids, paragraph ids). Used by the grounding
// validator to detect identifiers the generator invented.
func (t *ToolResult) Identifiers() []string {
	var ids []string
	for _, h := range t.PIIHits {
		ids = append(ids, h.MessageID)
	}
	for _, m := range t.AMLMatches {
		ids = append(ids, m.TransactionID)
	}
	for _, m := range t.RegMatches {
		ids = append(ids, m.ParagraphID)
	}
	if t.SAR != nil {
		ids = append(ids, t.SAR.TransactionID)
	}
	return ids
}

// =============================================================================
// Ordering Helpers
// =============================================================================

// severityRank orders PII risk flags from most to least severe. Unknown
// flags sort last, after Low.
var severityRank = map[string]int{
	"Critical": 0,
	"High":     1,
	"Medium":   2,
	"Low":      3,
}

func rankOf(flag string) int {
	if r, ok := severityRank[flag]; ok {
		return r
	}
	return len(severityRank)
}

// SortPIIHits orders hits by risk severity (Critical > High > Medium >
// Low), preserving the original order within each severity band.
func SortPIIHits(hits []PIIHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return rankOf(hits[i].RiskFlag) < rankOf(hits[j].RiskFlag)
	})
}

// SortAMLMatches orders matches by risk score descending, then amount
// descending, preserving the original order on full ties.
func SortAMLMatches(matches []AMLMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].RiskScore != matches[j].RiskScore {
			return matches[i].RiskScore > matches[j].RiskScore
		}
		return matches[i].Amount > matches[j].Amount
	})
}
