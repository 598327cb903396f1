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
	"log/slog"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// Compile-time interface implementation check.
var _ Exporter = (*WeaviateExporter)(nil)

// Exporter copies appended records to a cold tier.
//
// # Description
//
// The embedded store is the warm tier and the source of truth for
// verification. An exporter mirrors each record to long-retention
// storage where reviewers can search it alongside other compliance
// data. Export failures never fail the append.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export copies one sealed record to the cold tier.
	Export(ctx context.Context, record *Record) error
}

// WeaviateExporter mirrors audit records into a Weaviate class.
type WeaviateExporter struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateExporter creates an exporter writing to the AuditRecord class.
//
// # Inputs
//
//   - client: Weaviate client (must not be nil).
//
// # Outputs
//
//   - *WeaviateExporter: Ready for use.
func NewWeaviateExporter(client *weaviate.Client) *WeaviateExporter {
	if client == nil {
		panic("NewWeaviateExporter: client must not be nil")
	}
	return &WeaviateExporter{
		client:    client,
		className: "AuditRecord",
	}
}

// Export implements the Exporter interface.
func (e *WeaviateExporter) Export(ctx context.Context, record *Record) error {
	properties := map[string]interface{}{
		"record_id":          record.RecordID,
		"session_id":         record.SessionID,
		"request_id":         record.RequestID,
		"timestamp":          record.Timestamp,
		"query":              record.Query,
		"intents":            strings.Join(record.Intents, ","),
		"confidence":         record.Confidence,
		"primary_domain":     record.PrimaryDomain,
		"secondary_domains":  strings.Join(record.SecondaryDomains, ","),
		"outcome":            record.Outcome,
		"violation_kinds":    strings.Join(record.ViolationKinds, ","),
		"answer":             record.Answer,
		"processing_time_ms": record.ProcessingTimeMs,
		"record_hash":        record.RecordHash,
		"chain_hash":         record.ChainHash,
	}

	_, err := e.client.Data().Creator().
		WithClassName(e.className).
		WithProperties(properties).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to export audit record to Weaviate: %w", err)
	}

	slog.Debug("Audit record exported to cold tier",
		"recordId", record.RecordID,
		"class", e.className,
	)
	return nil
}
