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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestRecord(sessionID, requestID string) *Record {
	return &Record{
		RecordID:         "rec-" + requestID,
		SessionID:        sessionID,
		RequestID:        requestID,
		Timestamp:        time.Now().UnixMilli(),
		Query:            "show high-risk transactions",
		Intents:          []string{"AML_SEARCH"},
		Confidence:       0.9,
		PrimaryDomain:    "aml",
		Outcome:          "template",
		Answer:           "**High-Risk Transactions:** (1 total)",
		ProcessingTimeMs: 42,
	}
}

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore(InMemoryConfig())
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecord_SealDeterministic(t *testing.T) {
	a := newTestRecord("sess-1", "req-1")
	b := newTestRecord("sess-1", "req-1")
	b.Timestamp = a.Timestamp

	if err := a.Seal(""); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if err := b.Seal(""); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if a.RecordHash != b.RecordHash {
		t.Errorf("Identical content produced different record hashes: %s vs %s", a.RecordHash, b.RecordHash)
	}
	if a.ChainHash != b.ChainHash {
		t.Errorf("Identical content produced different chain hashes")
	}
	if len(a.RecordHash) != 64 {
		t.Errorf("Expected a 64-char hex digest, got %q", a.RecordHash)
	}
}

func TestRecord_HashExcludesHashFields(t *testing.T) {
	r := newTestRecord("sess-1", "req-1")
	first, err := r.ComputeRecordHash()
	if err != nil {
		t.Fatalf("ComputeRecordHash failed: %v", err)
	}
	if err := r.Seal("some-prev"); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	second, err := r.ComputeRecordHash()
	if err != nil {
		t.Fatalf("ComputeRecordHash failed: %v", err)
	}
	if first != second {
		t.Error("Sealing changed the content hash; hash fields must be excluded")
	}
}

func TestRecord_ValidateMissingFields(t *testing.T) {
	r := &Record{RecordID: "rec-1"}
	if err := r.Validate(); err == nil {
		t.Error("Expected validation error for missing session_id and outcome")
	}
}

func TestBadgerStore_AppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	prev := ""
	for i := 1; i <= 3; i++ {
		r := newTestRecord("sess-1", fmt.Sprintf("req-%d", i))
		if err := r.Seal(prev); err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		prev = r.ChainHash
	}

	records, err := store.ListBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		want := fmt.Sprintf("req-%d", i+1)
		if r.RequestID != want {
			t.Errorf("Record %d out of order: got %s, want %s", i, r.RequestID, want)
		}
	}

	last, err := store.LastChainHash(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LastChainHash failed: %v", err)
	}
	if last != prev {
		t.Errorf("LastChainHash = %s, want %s", last, prev)
	}
}

func TestBadgerStore_SessionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, session := range []string{"sess-a", "sess-b"} {
		r := newTestRecord(session, "req-1")
		if err := r.Seal(""); err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := store.ListBySession(ctx, "sess-a")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "sess-a" {
		t.Errorf("Session isolation broken: %+v", records)
	}
}

func TestBadgerStore_RejectsUnsealedRecord(t *testing.T) {
	store := openTestStore(t)
	if err := store.Append(context.Background(), newTestRecord("sess-1", "req-1")); err == nil {
		t.Error("Expected an error for an unsealed record")
	}
}

func TestBadgerStore_EmptySession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records, err := store.ListBySession(ctx, "missing")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}

	last, err := store.LastChainHash(ctx, "missing")
	if err != nil {
		t.Fatalf("LastChainHash failed: %v", err)
	}
	if last != "" {
		t.Errorf("Expected an empty chain head, got %q", last)
	}
}

// captureExporter records exported records for assertions.
type captureExporter struct {
	mu      sync.Mutex
	records []*Record
}

func (c *captureExporter) Export(_ context.Context, record *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func TestWriter_SealsAndChains(t *testing.T) {
	store := openTestStore(t)
	exporter := &captureExporter{}
	writer := NewWriter(store, exporter)

	for i := 1; i <= 3; i++ {
		writer.Submit(newTestRecord("sess-1", fmt.Sprintf("req-%d", i)))
	}
	writer.Close()

	records, err := store.ListBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records after drain, got %d", len(records))
	}

	prev := ""
	for i, r := range records {
		want := ComputeChainHash(prev, r.RecordHash)
		if r.ChainHash != want {
			t.Errorf("Record %d chain link broken", i+1)
		}
		prev = r.ChainHash
	}

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	if len(exporter.records) != 3 {
		t.Errorf("Expected 3 cold-tier exports, got %d", len(exporter.records))
	}
}

func TestWriter_ResumesChainFromStore(t *testing.T) {
	store := openTestStore(t)

	first := NewWriter(store, nil)
	first.Submit(newTestRecord("sess-1", "req-1"))
	first.Close()

	// A second writer over the same store must link to the stored head,
	// mirroring a process restart.
	second := NewWriter(store, nil)
	second.Submit(newTestRecord("sess-1", "req-2"))
	second.Close()

	records, err := store.ListBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	want := ComputeChainHash(records[0].ChainHash, records[1].RecordHash)
	if records[1].ChainHash != want {
		t.Error("Second writer did not resume the chain from storage")
	}
}

func TestWriter_SubmitAfterCloseDropsRecord(t *testing.T) {
	store := openTestStore(t)
	writer := NewWriter(store, nil)

	writer.Submit(newTestRecord("sess-1", "req-1"))
	writer.Close()

	// A request finishing after shutdown must be dropped, not panic.
	writer.Submit(newTestRecord("sess-1", "req-2"))

	records, err := store.ListBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected only the pre-close record, got %d", len(records))
	}
}

func TestVerifyChain_IntactChain(t *testing.T) {
	store := openTestStore(t)
	writer := NewWriter(store, nil)
	for i := 1; i <= 3; i++ {
		writer.Submit(newTestRecord("sess-1", fmt.Sprintf("req-%d", i)))
	}
	writer.Close()

	records, err := store.ListBySession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}

	result := VerifyChain("sess-1", records)
	if !result.Verified {
		t.Fatalf("Intact chain failed verification: %s", result.ErrorDetails)
	}
	if result.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", result.RecordCount)
	}
	if result.ChainHash != records[2].ChainHash {
		t.Error("Result chain hash must equal the newest record's chain hash")
	}
	if len(result.RecordHashes) != 3 {
		t.Errorf("Expected 3 record hashes, got %d", len(result.RecordHashes))
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	buildChain := func(t *testing.T) []Record {
		t.Helper()
		var records []Record
		prev := ""
		for i := 1; i <= 3; i++ {
			r := newTestRecord("sess-1", fmt.Sprintf("req-%d", i))
			if err := r.Seal(prev); err != nil {
				t.Fatalf("Seal failed: %v", err)
			}
			prev = r.ChainHash
			records = append(records, *r)
		}
		return records
	}

	t.Run("Edited answer fails", func(t *testing.T) {
		records := buildChain(t)
		records[1].Answer = "altered after the fact"
		result := VerifyChain("sess-1", records)
		if result.Verified {
			t.Error("Edited record passed verification")
		}
	})

	t.Run("Reordered records fail", func(t *testing.T) {
		records := buildChain(t)
		records[0], records[1] = records[1], records[0]
		result := VerifyChain("sess-1", records)
		if result.Verified {
			t.Error("Reordered chain passed verification")
		}
	})

	t.Run("Removed record fails", func(t *testing.T) {
		records := buildChain(t)
		result := VerifyChain("sess-1", records[1:])
		if result.Verified {
			t.Error("Chain with a removed head passed verification")
		}
	})
}

func TestVerifyChain_EmptySession(t *testing.T) {
	result := VerifyChain("sess-1", nil)
	if !result.Verified {
		t.Error("Empty session must verify trivially")
	}
	if result.ChainHash != "" {
		t.Errorf("Empty session chain hash must be empty, got %q", result.ChainHash)
	}
}
