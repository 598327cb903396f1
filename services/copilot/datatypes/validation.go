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

// ViolationKind labels one class of grounding failure.
type ViolationKind string

const (
	// ViolationUnknownIdentifier means the response names a record id
	// that does not exist in the evidence.
	ViolationUnknownIdentifier ViolationKind = "UnknownIdentifier"

	// ViolationNumericMismatch means a money amount, risk score, or count
	// in the response does not equal any number in the evidence.
	ViolationNumericMismatch ViolationKind = "NumericMismatch"

	// ViolationCountMismatch means a stated result total disagrees with
	// the evidence count.
	ViolationCountMismatch ViolationKind = "CountMismatch"

	// ViolationMaskingViolation means a quoted masked span is not
	// byte-identical to the stored masked field.
	ViolationMaskingViolation ViolationKind = "MaskingViolation"

	// ViolationInventedField means an asserted field value (owner,
	// deadline, tag, typology) appears in no evidence record.
	ViolationInventedField ViolationKind = "InventedField"

	// ViolationSpuriousContent means the evidence was empty but the
	// response claims results anyway.
	ViolationSpuriousContent ViolationKind = "SpuriousContent"
)

// Violation is one grounding failure found in a generated response.
type Violation struct {
	Kind ViolationKind `json:"kind"`

	// Identifier is the record id the violation concerns, when one
	// applies.
	Identifier string `json:"identifier,omitempty"`

	// Detail quotes the offending response text and what the evidence
	// holds instead.
	Detail string `json:"detail"`
}

// ValidationReport is the validator's verdict on one generated response.
// It carries every violation found, not just the first, so the audit
// record explains the full reason for a fallback.
type ValidationReport struct {
	Violations []Violation `json:"violations"`
}

// Passed reports whether the response is fully grounded. Only a report
// with zero violations passes.
func (r *ValidationReport) Passed() bool {
	return len(r.Violations) == 0
}

// Kinds returns the distinct violation kinds in order of first
// appearance, for metrics labels and the audit record.
func (r *ValidationReport) Kinds() []ViolationKind {
	seen := make(map[ViolationKind]bool)
	var kinds []ViolationKind
	for _, v := range r.Violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}
