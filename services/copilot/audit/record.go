// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists one tamper-evident record per emitted response.
//
// Records within a session form a hash chain: each record carries a
// SHA-256 hash of its own content and a chain hash linking it to the
// previous record. Re-computing the chain over the stored records
// detects any modification, insertion, or reordering after the fact.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one audit trail entry, written after a response is emitted.
//
// # Description
//
// Captures what the analyst asked, how the request was classified, which
// path produced the answer, and the answer itself. RecordHash covers
// every field except the two hash fields; ChainHash binds the record to
// its predecessor in the same session.
//
// # Fields
//
//   - RecordID: Unique ID for this entry (UUIDv4).
//   - SessionID: Session the request belonged to.
//   - RequestID: The request this record describes.
//   - Timestamp: Unix milliseconds when the response was emitted.
//   - Query: The raw analyst query.
//   - Intents: All intents the router assigned.
//   - Confidence: Router confidence for the classification.
//   - PrimaryDomain: Domain of the highest-priority intent.
//   - SecondaryDomains: Remaining domains, when the query matched more
//     than one.
//   - Outcome: Which path produced the answer (generated, template,
//     sentinel, clarification).
//   - ViolationKinds: Grounding violation kinds that forced a fallback,
//     empty when the generated answer passed.
//   - Answer: The emitted response text, verbatim.
//   - ProcessingTimeMs: End-to-end handling time.
//   - RecordHash: SHA-256 over the canonical record content.
//   - ChainHash: SHA-256 over the previous chain hash plus RecordHash.
type Record struct {
	RecordID         string   `json:"record_id"`
	SessionID        string   `json:"session_id"`
	RequestID        string   `json:"request_id"`
	Timestamp        int64    `json:"timestamp"`
	Query            string   `json:"query"`
	Intents          []string `json:"intents"`
	Confidence       float64  `json:"confidence"`
	PrimaryDomain    string   `json:"primary_domain"`
	SecondaryDomains []string `json:"secondary_domains,omitempty"`
	Outcome          string   `json:"outcome"`
	ViolationKinds   []string `json:"violation_kinds,omitempty"`
	Answer           string   `json:"answer"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	RecordHash       string   `json:"record_hash"`
	ChainHash        string   `json:"chain_hash"`
}

// ComputeRecordHash computes the SHA-256 hash of the record content.
//
// # Description
//
// Serializes the record with both hash fields cleared and hashes the
// canonical JSON. The result is stable for a given record content
// because struct field order fixes the JSON key order.
//
// # Outputs
//
//   - string: 64-char hex digest.
func (r *Record) ComputeRecordHash() (string, error) {
	clone := *r
	clone.RecordHash = ""
	clone.ChainHash = ""
	payload, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("failed to serialize record for hashing: %w", err)
	}
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:]), nil
}

// ComputeChainHash links a record hash to its predecessor.
//
// # Description
//
// Computes SHA256(prevChainHash || recordHash). The first record in a
// session uses an empty previous hash, so its chain hash is simply
// SHA256(recordHash).
//
// # Inputs
//
//   - prevChainHash: Chain hash of the preceding record, empty for the
//     first record in a session.
//   - recordHash: Hash of the current record's content.
//
// # Outputs
//
//   - string: 64-char hex digest.
func ComputeChainHash(prevChainHash, recordHash string) string {
	digest := sha256.Sum256([]byte(prevChainHash + recordHash))
	return hex.EncodeToString(digest[:])
}

// Seal populates RecordHash and ChainHash in place.
//
// # Inputs
//
//   - prevChainHash: Chain hash of the session's previous record,
//     empty when this is the first.
func (r *Record) Seal(prevChainHash string) error {
	recordHash, err := r.ComputeRecordHash()
	if err != nil {
		return err
	}
	r.RecordHash = recordHash
	r.ChainHash = ComputeChainHash(prevChainHash, recordHash)
	return nil
}

// Validate performs basic sanity checks before a record is persisted.
func (r *Record) Validate() error {
	var missing []string
	if r.RecordID == "" {
		missing = append(missing, "record_id")
	}
	if r.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if r.Outcome == "" {
		missing = append(missing, "outcome")
	}
	if len(missing) > 0 {
		return fmt.Errorf("audit record missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
