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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

// auditTracer is the OpenTelemetry tracer for audit operations.
var auditTracer = otel.Tracer("copilot.audit")

// defaultQueueSize bounds the append queue. A full queue drops records
// rather than blocking response emission.
const defaultQueueSize = 256

// appendTimeout bounds a single store append inside the writer loop.
const appendTimeout = 5 * time.Second

// Writer serializes audit appends through a single goroutine.
//
// # Description
//
// Response emission never waits on the audit trail: Submit enqueues and
// returns immediately. One background goroutine seals each record
// against the session's previous chain hash and appends it, so chain
// order is consistent even under concurrent requests. The chain hash
// cache is seeded from the store the first time a session appears after
// a restart.
//
// # Thread Safety
//
// Submit and Close are safe for concurrent use. Close must be called
// exactly once.
type Writer struct {
	store     Store
	exporter  Exporter
	queue     chan *Record
	done      chan struct{}
	closeOnce sync.Once

	// mu guards closed against Submit racing Close. Sends happen under
	// the read lock so the queue channel is never closed mid-send.
	mu     sync.RWMutex
	closed bool

	// lastChain is touched only by the writer goroutine.
	lastChain map[string]string
}

// NewWriter starts the append goroutine over the given store.
//
// # Inputs
//
//   - store: Destination for sealed records (must not be nil).
//   - exporter: Optional cold-tier exporter, nil to disable.
//
// # Outputs
//
//   - *Writer: Running writer. Call Close() on shutdown to drain the
//     queue.
func NewWriter(store Store, exporter Exporter) *Writer {
	if store == nil {
		panic("NewWriter: store must not be nil")
	}
	w := &Writer{
		store:     store,
		exporter:  exporter,
		queue:     make(chan *Record, defaultQueueSize),
		done:      make(chan struct{}),
		lastChain: make(map[string]string),
	}
	go w.run()
	return w
}

// Submit enqueues a record without blocking.
//
// # Description
//
// Fire-and-forget: the caller gets no error channel. When the queue is
// full the record is dropped and logged, which trades completeness for
// never stalling response emission. Submissions after Close are dropped
// the same way; a request still in flight past the shutdown grace must
// not panic the writer.
//
// # Inputs
//
//   - record: Unsealed record. The writer seals it.
func (w *Writer) Submit(record *Record) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		slog.Warn("Audit writer closed, dropping record",
			"sessionId", record.SessionID,
			"requestId", record.RequestID,
		)
		return
	}
	select {
	case w.queue <- record:
	default:
		slog.Warn("Audit queue full, dropping record",
			"sessionId", record.SessionID,
			"requestId", record.RequestID,
		)
	}
}

// Close drains the queue and stops the writer goroutine.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.queue)
	})
	<-w.done
}

// run is the single-writer append loop.
func (w *Writer) run() {
	defer close(w.done)
	for record := range w.queue {
		w.append(record)
	}
}

func (w *Writer) append(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	ctx, span := auditTracer.Start(ctx, "Writer.append")
	defer span.End()

	prev, ok := w.lastChain[record.SessionID]
	if !ok {
		// First record for this session since startup. The store may
		// hold earlier records from a previous process.
		stored, err := w.store.LastChainHash(ctx, record.SessionID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to read session chain head, dropping audit record",
				"sessionId", record.SessionID,
				"requestId", record.RequestID,
				"error", err,
			)
			return
		}
		prev = stored
	}

	if err := record.Seal(prev); err != nil {
		span.RecordError(err)
		slog.Error("Failed to seal audit record",
			"sessionId", record.SessionID,
			"requestId", record.RequestID,
			"error", err,
		)
		return
	}

	if err := w.store.Append(ctx, record); err != nil {
		span.RecordError(err)
		slog.Error("Failed to append audit record",
			"sessionId", record.SessionID,
			"requestId", record.RequestID,
			"error", err,
		)
		return
	}
	w.lastChain[record.SessionID] = record.ChainHash

	if w.exporter != nil {
		if err := w.exporter.Export(ctx, record); err != nil {
			// Cold-tier export is best effort; the warm tier already
			// holds the record.
			slog.Warn("Audit cold-tier export failed",
				"recordId", record.RecordID,
				"error", err,
			)
		}
	}

	slog.Debug("Audit record appended",
		"sessionId", record.SessionID,
		"requestId", record.RequestID,
		"chainHash", record.ChainHash,
	)
}
