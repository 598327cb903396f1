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
	"testing"
)

func TestToolResult_WireShape(t *testing.T) {
	// AML and REG share the "matches" key on the wire; the Domain tag
	// decides which element type it decodes into.
	amlJSON := `{
		"domain": "aml",
		"count": 2,
		"matches": [
			{"transaction_id": "T028", "masked_narrative": "wire to [MASKED]", "tags": ["structuring"], "risk_score": 8.5, "amount": 9900, "date": "2025-11-02"},
			{"transaction_id": "T031", "masked_narrative": "cash deposit", "tags": ["smurfing"], "risk_score": 7.0, "amount": 4000, "date": "2025-11-03"}
		]
	}`
	var aml ToolResult
	if err := json.Unmarshal([]byte(amlJSON), &aml); err != nil {
		t.Fatalf("Failed to decode AML result: %v", err)
	}
	if aml.Domain != DomainAML || len(aml.AMLMatches) != 2 || aml.AMLMatches[0].TransactionID != "T028" {
		t.Errorf("AML result decoded wrong: %+v", aml)
	}
	if aml.PIIHits != nil || aml.RegMatches != nil || aml.SAR != nil {
		t.Error("AML decode populated a foreign domain slice")
	}

	regJSON := `{
		"domain": "reg",
		"count": 1,
		"matches": [
			{"paragraph_id": "P123", "source_document": "mas610.pdf", "regulation": "MAS 610", "article": "4.2", "owner": "Finance Ops", "business_units": ["Treasury"], "deadline": "2026-01-31", "excerpt": "Banks shall report...", "row_index": 0}
		]
	}`
	var reg ToolResult
	if err := json.Unmarshal([]byte(regJSON), &reg); err != nil {
		t.Fatalf("Failed to decode REG result: %v", err)
	}
	if reg.Domain != DomainReg || len(reg.RegMatches) != 1 || reg.RegMatches[0].ParagraphID != "P123" {
		t.Errorf("REG result decoded wrong: %+v", reg)
	}

	sarJSON := `{"domain": "sar", "count": 1, "transaction_id": "T028", "sar_draft": "SUSPICIOUS ACTIVITY REPORT..."}`
	var sar ToolResult
	if err := json.Unmarshal([]byte(sarJSON), &sar); err != nil {
		t.Fatalf("Failed to decode SAR result: %v", err)
	}
	if sar.SAR == nil || sar.SAR.TransactionID != "T028" {
		t.Errorf("SAR result decoded wrong: %+v", sar)
	}

	// Round-trip: marshalling must restore the same wire keys
	out, err := json.Marshal(&aml)
	if err != nil {
		t.Fatalf("Failed to marshal AML result: %v", err)
	}
	var echo map[string]json.RawMessage
	if err := json.Unmarshal(out, &echo); err != nil {
		t.Fatalf("Marshal produced invalid JSON: %v", err)
	}
	if _, ok := echo["matches"]; !ok {
		t.Errorf("AML marshal lost the 'matches' key: %s", out)
	}
	if _, ok := echo["hits"]; ok {
		t.Errorf("AML marshal emitted a PII 'hits' key: %s", out)
	}
}

func TestToolResult_SARWireWithMatches(t *testing.T) {
	// A draftless SAR result carries its source transaction under
	// "matches"; those fields must survive decoding so the renderer can
	// synthesize the draft body.
	sarJSON := `{
		"domain": "sar",
		"count": 1,
		"matches": [
			{"transaction_id": "T028", "masked_narrative": "wire to [MASKED]", "tags": ["structuring"], "risk_score": 8.5, "amount": 9900, "date": "2025-11-02"}
		]
	}`
	var sar ToolResult
	if err := json.Unmarshal([]byte(sarJSON), &sar); err != nil {
		t.Fatalf("Failed to decode draftless SAR result: %v", err)
	}
	if sar.SAR != nil {
		t.Errorf("Draftless SAR decode invented a draft: %+v", sar.SAR)
	}
	if len(sar.AMLMatches) != 1 || sar.AMLMatches[0].TransactionID != "T028" {
		t.Fatalf("SAR decode dropped the source transaction: %+v", sar)
	}
	if sar.AMLMatches[0].RiskScore != 8.5 || sar.AMLMatches[0].Tags[0] != "structuring" {
		t.Errorf("SAR source transaction fields decoded wrong: %+v", sar.AMLMatches[0])
	}

	out, err := json.Marshal(&sar)
	if err != nil {
		t.Fatalf("Failed to marshal draftless SAR result: %v", err)
	}
	var echo map[string]json.RawMessage
	if err := json.Unmarshal(out, &echo); err != nil {
		t.Fatalf("Marshal produced invalid JSON: %v", err)
	}
	if _, ok := echo["matches"]; !ok {
		t.Errorf("SAR marshal lost the 'matches' key: %s", out)
	}
	if _, ok := echo["sar_draft"]; ok {
		t.Errorf("SAR marshal emitted an empty draft key: %s", out)
	}
}

func TestToolResult_UnknownDomain(t *testing.T) {
	var tr ToolResult
	err := json.Unmarshal([]byte(`{"domain": "weather", "count": 3}`), &tr)
	if err == nil {
		t.Error("Expected an error for an unknown domain, got nil")
	}
}

func TestToolResult_Identifiers(t *testing.T) {
	tr := ToolResult{
		Domain: DomainAML,
		Count:  2,
		AMLMatches: []AMLMatch{
			{TransactionID: "T028"},
			{TransactionID: "T031"},
		},
	}
	ids := tr.Identifiers()
	if len(ids) != 2 || ids[0] != "T028" || ids[1] != "T031" {
		t.Errorf("Unexpected identifiers: %v", ids)
	}

	empty := ToolResult{Domain: DomainGeneral}
	if got := empty.Identifiers(); len(got) != 0 {
		t.Errorf("Expected no identifiers for empty evidence, got %v", got)
	}
	if !empty.IsEmpty() {
		t.Error("Count 0 result should report empty")
	}
}

func TestSortPIIHits(t *testing.T) {
	hits := []PIIHit{
		{MessageID: "MSG_001", RiskFlag: "Low"},
		{MessageID: "MSG_002", RiskFlag: "Critical"},
		{MessageID: "MSG_003", RiskFlag: "Medium"},
		{MessageID: "MSG_004", RiskFlag: "Critical"},
		{MessageID: "MSG_005", RiskFlag: "High"},
	}
	SortPIIHits(hits)

	want := []string{"MSG_002", "MSG_004", "MSG_005", "MSG_003", "MSG_001"}
	for i, id := range want {
		if hits[i].MessageID != id {
			t.Fatalf("Position %d: expected %s, got %s (order %+v)", i, id, hits[i].MessageID, hits)
		}
	}
}

func TestSortPIIHits_UnknownFlagSortsLast(t *testing.T) {
	hits := []PIIHit{
		{MessageID: "MSG_001", RiskFlag: "Unrated"},
		{MessageID: "MSG_002", RiskFlag: "Low"},
	}
	SortPIIHits(hits)
	if hits[0].MessageID != "MSG_002" {
		t.Errorf("Unknown severity should sort after Low, got %+v", hits)
	}
}

func TestSortAMLMatches(t *testing.T) {
	matches := []AMLMatch{
		{TransactionID: "T001", RiskScore: 7.0, Amount: 1000},
		{TransactionID: "T002", RiskScore: 9.0, Amount: 500},
		{TransactionID: "T003", RiskScore: 7.0, Amount: 5000},
		{TransactionID: "T004", RiskScore: 7.0, Amount: 5000},
	}
	SortAMLMatches(matches)

	// Risk desc, then amount desc, stable on full ties
	want := []string{"T002", "T003", "T004", "T001"}
	for i, id := range want {
		if matches[i].TransactionID != id {
			t.Fatalf("Position %d: expected %s, got %s (order %+v)", i, id, matches[i].TransactionID, matches)
		}
	}
}

func TestValidationReport(t *testing.T) {
	report := ValidationReport{}
	if !report.Passed() {
		t.Error("Empty report must pass")
	}

	report.Violations = append(report.Violations,
		Violation{Kind: ViolationNumericMismatch, Identifier: "T028", Detail: "risk 9.0 vs 8.5"},
		Violation{Kind: ViolationNumericMismatch, Identifier: "T031", Detail: "amount 100 vs 4000"},
		Violation{Kind: ViolationUnknownIdentifier, Identifier: "T999", Detail: "not in evidence"},
	)
	if report.Passed() {
		t.Error("Report with violations must not pass")
	}
	kinds := report.Kinds()
	if len(kinds) != 2 || kinds[0] != "NumericMismatch" || kinds[1] != "UnknownIdentifier" {
		t.Errorf("Kinds should be deduplicated in first-seen order, got %v", kinds)
	}
}
