// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch calls the external tool service that executes
// structured searches against the canonical data store. The store and
// its masking pipeline are opaque collaborators; this package only
// shapes the request and decodes the evidence document.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// dispatchTracer is the OpenTelemetry tracer for dispatcher operations.
var dispatchTracer = otel.Tracer("copilot.dispatch")

// Compile-time interface implementation check.
var _ ToolDispatcher = (*HTTPDispatcher)(nil)

// DefaultTimeout bounds a single dispatch call when the caller sets no
// deadline. The assembler never retries; a slow tool service costs at
// most one timeout.
const DefaultTimeout = 15 * time.Second

// =============================================================================
// Interfaces
// =============================================================================

// ToolDispatcher defines the contract for fetching evidence for one
// domain search.
//
// # Description
//
// Given the domain the router selected and the raw analyst query, a
// dispatcher returns the evidence document described in the external
// tool contract: one record list keyed by domain, the true total count,
// and an optional contradictory flag. The evidence is read-only to the
// rest of the pipeline.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ToolDispatcher interface {
	// Dispatch runs one structured search.
	//
	// # Inputs
	//
	//   - ctx: Carries the per-call timeout set by the assembler.
	//   - domain: Which tool to invoke (pii/aml/reg/sar).
	//   - query: The raw analyst query, forwarded verbatim.
	//   - topK: Row cap hint for the tool service.
	//
	// # Outputs
	//
	//   - *datatypes.ToolResult: The evidence document.
	//   - error: *DispatchError for HTTP-level failures, wrapped errors
	//     otherwise. The core performs no retries; Retryable informs
	//     the collaborator boundary only.
	Dispatch(ctx context.Context, domain datatypes.Domain, query string, topK int) (*datatypes.ToolResult, error)
}

// =============================================================================
// HTTPDispatcher
// =============================================================================

// HTTPDispatcher calls the tool service over HTTP. One POST per
// dispatch, no retries.
type HTTPDispatcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPDispatcher reads TOOL_DISPATCHER_URL and returns a dispatcher
// with the default timeout.
func NewHTTPDispatcher() *HTTPDispatcher {
	baseURL := os.Getenv("TOOL_DISPATCHER_URL")
	if baseURL == "" {
		baseURL = "http://copilot-tools:8600"
		slog.Warn("TOOL_DISPATCHER_URL not set, using default", "url", baseURL)
	}
	return &HTTPDispatcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// NewHTTPDispatcherForURL is the constructor used by tests and the CLI,
// which point at explicit endpoints.
func NewHTTPDispatcherForURL(baseURL string) *HTTPDispatcher {
	return &HTTPDispatcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// dispatchRequest is the wire payload for a tool search.
type dispatchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Dispatch implements the ToolDispatcher interface.
func (d *HTTPDispatcher) Dispatch(
	ctx context.Context,
	domain datatypes.Domain,
	query string,
	topK int,
) (*datatypes.ToolResult, error) {
	ctx, span := dispatchTracer.Start(ctx, "HTTPDispatcher.Dispatch")
	defer span.End()

	// Construct URL: e.g., http://copilot-tools:8600/tools/aml/search
	toolURL := fmt.Sprintf("%s/tools/%s/search", d.baseURL, domain)
	span.SetAttributes(
		attribute.String("dispatch.url", toolURL),
		attribute.String("dispatch.domain", string(domain)),
	)

	payloadBytes, err := json.Marshal(dispatchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", toolURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool service unreachable")
		return nil, fmt.Errorf("tool dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(
			attribute.Int("dispatch.status_code", resp.StatusCode),
			attribute.String("dispatch.error_body", string(body)),
		)
		span.SetStatus(codes.Error, "tool service error")
		return nil, &DispatchError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Retryable:  isRetryableStatusCode(resp.StatusCode),
		}
	}

	var result datatypes.ToolResult
	if err := json.Unmarshal(body, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed evidence document")
		return nil, fmt.Errorf("failed to parse tool response: %w", err)
	}

	span.SetAttributes(
		attribute.Int("dispatch.count", result.Count),
		attribute.Bool("dispatch.contradictory", result.Contradictory),
	)
	slog.Debug("Tool dispatch complete",
		"domain", domain,
		"count", result.Count,
		"contradictory", result.Contradictory,
	)
	return &result, nil
}

// isRetryableStatusCode reports whether a status code signals a
// transient failure. 502, 503, and 504 qualify.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// =============================================================================
// Error Types
// =============================================================================

// DispatchError wraps HTTP-level failures from the tool service.
//
// # Fields
//
//   - StatusCode: HTTP status from the tool service.
//   - Message: Response body text.
//   - Retryable: Whether a retry at the collaborator boundary could
//     succeed. The core itself never retries.
type DispatchError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface for DispatchError.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error (status %d): %s", e.StatusCode, e.Message)
}

// IsDispatchError checks if an error is a DispatchError.
func IsDispatchError(err error) bool {
	_, ok := err.(*DispatchError)
	return ok
}
