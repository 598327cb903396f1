// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import (
	"testing"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/copilot/render"
)

func amlEvidence() *datatypes.ToolResult {
	return &datatypes.ToolResult{
		Domain: datatypes.DomainAML,
		Count:  1,
		AMLMatches: []datatypes.AMLMatch{
			{
				TransactionID:   "T005",
				MaskedNarrative: "wire to [MASKED] via Batam",
				Tags:            []string{"layering"},
				RiskScore:       8.5,
				Amount:          50000,
				Date:            "2025-11-02",
			},
		},
	}
}

func hasKind(report datatypes.ValidationReport, kind datatypes.ViolationKind) bool {
	for _, v := range report.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func TestValidate_GroundedResponsePasses(t *testing.T) {
	response := `Transaction T005 scored a risk of 8.5/10 with an amount of SGD 50000.
Tags: layering
Narrative: "wire to [MASKED] via Batam"
1 total`
	report := Validate(response, amlEvidence())
	if !report.Passed() {
		t.Errorf("Expected a pass, got violations: %+v", report.Violations)
	}
}

func TestValidate_UnknownIdentifier(t *testing.T) {
	report := Validate("Transaction T999 looks suspicious.", amlEvidence())
	if !hasKind(report, datatypes.ViolationUnknownIdentifier) {
		t.Errorf("Expected UnknownIdentifier, got: %+v", report.Violations)
	}
}

func TestValidate_NumericMismatch(t *testing.T) {
	// The end-to-end safety property: a claimed risk of 9.0 against a
	// stored 8.5 must fail.
	report := Validate("T005 carries a risk of 9.0/10.", amlEvidence())
	if !hasKind(report, datatypes.ViolationNumericMismatch) {
		t.Errorf("Expected NumericMismatch, got: %+v", report.Violations)
	}
}

func TestValidate_NumericNormalization(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantPass bool
	}{
		{"Thousands separator accepted", "T005 moved SGD 50,000 offshore.", true},
		{"Trailing zero decimal accepted", "T005 risk score 8.50 out of 10.", true},
		{"Wrong amount rejected", "T005 moved SGD 51,000 offshore.", false},
		{"Unmarked number ignored", "T005 was reviewed 3 times this week.", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := Validate(tc.response, amlEvidence())
			if report.Passed() != tc.wantPass {
				t.Errorf("Passed()=%v, want %v (violations: %+v)", report.Passed(), tc.wantPass, report.Violations)
			}
		})
	}
}

func TestValidate_PerRecordNumberScope(t *testing.T) {
	evidence := amlEvidence()
	evidence.Count = 2
	evidence.AMLMatches = append(evidence.AMLMatches, datatypes.AMLMatch{
		TransactionID: "T009",
		RiskScore:     6.0,
		Amount:        12000,
	})

	// T009's amount attributed to T005 must fail even though 12000
	// exists somewhere in the evidence.
	report := Validate("T005 involved SGD 12000.", evidence)
	if !hasKind(report, datatypes.ViolationNumericMismatch) {
		t.Errorf("Expected NumericMismatch for a cross-record amount, got: %+v", report.Violations)
	}

	// The same amount attributed to the right record passes.
	report = Validate("T009 involved SGD 12000.", evidence)
	if hasKind(report, datatypes.ViolationNumericMismatch) {
		t.Errorf("Correct attribution flagged: %+v", report.Violations)
	}
}

func TestValidate_CountMismatch(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantFail bool
	}{
		{"Paren total wrong", "Results (3 total): T005.", true},
		{"Paren total right", "Results (1 total): T005.", false},
		{"Showing-top wrong", "Showing top 1 of 4.", true},
		{"Unit phrase wrong", "Found 2 transactions.", true},
		{"Unit phrase right", "Found 1 transactions.", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report := Validate(tc.response, amlEvidence())
			if got := hasKind(report, datatypes.ViolationCountMismatch); got != tc.wantFail {
				t.Errorf("CountMismatch=%v, want %v (violations: %+v)", got, tc.wantFail, report.Violations)
			}
		})
	}
}

func TestValidate_MaskingViolation(t *testing.T) {
	// Any edit to a quoted masked span fails, including unmasking.
	report := Validate(`Narrative: "wire to Alice via Batam"`, amlEvidence())
	if !hasKind(report, datatypes.ViolationMaskingViolation) {
		t.Errorf("Expected MaskingViolation, got: %+v", report.Violations)
	}

	report = Validate(`Narrative: "wire to [MASKED] via Batam"`, amlEvidence())
	if hasKind(report, datatypes.ViolationMaskingViolation) {
		t.Errorf("Byte-identical span flagged: %+v", report.Violations)
	}
}

func TestValidate_InventedField(t *testing.T) {
	evidence := &datatypes.ToolResult{
		Domain: datatypes.DomainReg,
		Count:  1,
		RegMatches: []datatypes.RegMatch{
			{
				ParagraphID:    "P123",
				SourceDocument: "mas610.pdf",
				Regulation:     "MAS 610",
				Owner:          "Finance Ops",
				Deadline:       "2026-01-31",
				Excerpt:        "Banks shall report liquidity positions monthly.",
			},
		},
	}

	report := Validate("Owner: John Tan is responsible.", evidence)
	if !hasKind(report, datatypes.ViolationInventedField) {
		t.Errorf("Expected InventedField for an invented owner, got: %+v", report.Violations)
	}

	report = Validate("Owner: Finance Ops | Deadline: 2026-01-31", evidence)
	if hasKind(report, datatypes.ViolationInventedField) {
		t.Errorf("Evidence-backed fields flagged: %+v", report.Violations)
	}

	report = Validate("Deadline: next quarter", evidence)
	if !hasKind(report, datatypes.ViolationInventedField) {
		t.Errorf("Expected InventedField for an invented deadline, got: %+v", report.Violations)
	}
}

func TestValidate_InventedTag(t *testing.T) {
	report := Validate("Tags: layering, smurfing", amlEvidence())
	if !hasKind(report, datatypes.ViolationInventedField) {
		t.Errorf("Expected InventedField for the invented smurfing tag, got: %+v", report.Violations)
	}
}

func TestValidate_CitationIdentifiersAllowed(t *testing.T) {
	evidence := &datatypes.ToolResult{
		Domain: datatypes.DomainReg,
		Count:  1,
		RegMatches: []datatypes.RegMatch{
			{
				ParagraphID:    "P123",
				SourceDocument: "mas610.pdf",
				Regulation:     "MAS 610",
				Excerpt:        "Banks shall report liquidity positions monthly.",
			},
		},
	}
	// mas610 matches the identifier shape but lives inside the source
	// document name; it must not be flagged.
	response := "Reporting is monthly. (source: mas610.pdf — paragraph P123)"
	report := Validate(response, evidence)
	if hasKind(report, datatypes.ViolationUnknownIdentifier) {
		t.Errorf("Citation tokens flagged as unknown identifiers: %+v", report.Violations)
	}
}

func TestValidate_EmptyEvidenceGuard(t *testing.T) {
	empty := &datatypes.ToolResult{Domain: datatypes.DomainPII, Count: 0}

	report := Validate(render.NoResultsSentinel, empty)
	if !report.Passed() {
		t.Errorf("Exact sentinel must pass, got: %+v", report.Violations)
	}

	report = Validate("I found 3 PII exposures.", empty)
	if !hasKind(report, datatypes.ViolationSpuriousContent) {
		t.Errorf("Expected SpuriousContent, got: %+v", report.Violations)
	}

	report = Validate(render.NoResultsSentinel+" ", empty)
	if report.Passed() {
		t.Error("Sentinel with trailing whitespace must not pass")
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	response := `T777 moved SGD 99999 (4 total).
Narrative: "something invented"`
	report := Validate(response, amlEvidence())

	for _, kind := range []datatypes.ViolationKind{
		datatypes.ViolationUnknownIdentifier,
		datatypes.ViolationNumericMismatch,
		datatypes.ViolationCountMismatch,
		datatypes.ViolationMaskingViolation,
	} {
		if !hasKind(report, kind) {
			t.Errorf("Missing %s in collected violations: %+v", kind, report.Violations)
		}
	}
}
