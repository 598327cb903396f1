// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"fmt"
	"time"
)

// VerifySessionResult is the outcome of a hash chain verification.
//
// # Description
//
// Returned by VerifyChain and exposed through the verification
// endpoint. This lets compliance reviewers cryptographically confirm a
// session's audit trail has not been tampered with.
//
// # Fields
//
//   - SessionID: The session that was verified.
//   - Verified: Whether every record and link checked out.
//   - RecordCount: Number of records verified.
//   - ChainHash: Chain hash of the newest record, empty for an empty
//     session.
//   - VerifiedAt: Unix milliseconds when verification ran.
//   - RecordHashes: Hash of each record, 1-indexed in append order.
//   - ErrorDetails: Description of the first mismatch when verification
//     failed.
type VerifySessionResult struct {
	SessionID    string         `json:"session_id"`
	Verified     bool           `json:"verified"`
	RecordCount  int            `json:"record_count"`
	ChainHash    string         `json:"chain_hash,omitempty"`
	VerifiedAt   int64          `json:"verified_at"`
	RecordHashes map[int]string `json:"record_hashes,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
}

// VerifyChain recomputes a session's hash chain over stored records.
//
// # Description
//
// For each record in append order, recomputes the content hash and the
// chain link, comparing both against the stored values. A single
// mismatch anywhere fails the whole session: a modified record changes
// its own hash, and an inserted, removed, or reordered record breaks
// every link after it.
//
// An empty record list verifies trivially with an empty chain hash.
//
// # Inputs
//
//   - sessionID: Session the records belong to.
//   - records: Records in append order, as returned by
//     Store.ListBySession.
//
// # Outputs
//
//   - *VerifySessionResult: Verification outcome with per-record hashes.
func VerifyChain(sessionID string, records []Record) *VerifySessionResult {
	result := &VerifySessionResult{
		SessionID:    sessionID,
		Verified:     true,
		RecordCount:  len(records),
		VerifiedAt:   time.Now().UnixMilli(),
		RecordHashes: make(map[int]string, len(records)),
	}

	prev := ""
	for i := range records {
		record := &records[i]

		recordHash, err := record.ComputeRecordHash()
		if err != nil {
			result.Verified = false
			result.ErrorDetails = fmt.Sprintf("record %d: %v", i+1, err)
			return result
		}
		result.RecordHashes[i+1] = recordHash

		if recordHash != record.RecordHash {
			result.Verified = false
			result.ErrorDetails = fmt.Sprintf(
				"record %d (%s): content hash mismatch, stored %s, computed %s",
				i+1, record.RecordID, record.RecordHash, recordHash,
			)
			return result
		}

		chainHash := ComputeChainHash(prev, recordHash)
		if chainHash != record.ChainHash {
			result.Verified = false
			result.ErrorDetails = fmt.Sprintf(
				"record %d (%s): chain hash mismatch, stored %s, computed %s",
				i+1, record.RecordID, record.ChainHash, chainHash,
			)
			return result
		}
		prev = chainHash
	}

	result.ChainHash = prev
	return result
}
