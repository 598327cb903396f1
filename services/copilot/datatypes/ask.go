// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the copilot service.
//
// This file contains request and response types for the ask endpoint.
// For evidence types returned by the tool dispatcher, see evidence.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a single analyst query.
	// Checked on byte length, not rune count, to bound memory per request.
	MaxQueryBytes = 32 * 1024 // 32KB

	// MaxTopK is the largest number of evidence rows a caller may ask the
	// renderer to display.
	MaxTopK = 100

	// DefaultTopK is the number of evidence rows displayed when the caller
	// does not specify a limit.
	DefaultTopK = 10
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// askValidate is the validator instance for copilot datatypes.
// Initialized in init() with custom validators.
var askValidate *validator.Validate

func init() {
	askValidate = validator.New()

	// Register custom validator for query size
	_ = askValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxQueryBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxQueryBytes
}

// generateUUID returns a new UUID v4 string for request and response IDs.
func generateUUID() string {
	return uuid.NewString()
}

// =============================================================================
// Ask Request Types
// =============================================================================

// AskRequest represents an analyst query submitted to POST /v1/ask.
//
// # Description
//
// AskRequest carries a single free-text compliance question plus the
// session it belongs to. Every request includes a unique ID and timestamp
// for the audit trail; both are generated server-side when absent.
//
// # Fields
//
//   - RequestID: Optional on input. Unique identifier for this request
//     (UUID v4). Used for tracing, audit records, and correlation.
//   - SessionID: Required. Groups requests into one auditable session.
//   - Timestamp: Optional on input. Unix timestamp in milliseconds (UTC).
//   - Query: Required. The analyst's question, max 32KB.
//   - TopK: Optional. Number of evidence rows the renderer displays
//     (1-100). Zero means the default of 10.
//
// # Validation
//
// Uses go-playground/validator:
//   - SessionID: required
//   - Query: required, max 32768 bytes
//   - TopK: must be 0-100
//
// # Examples
//
//	req := AskRequest{
//	    SessionID: "session-7",
//	    Query:     "show high-risk transactions above 50000",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type AskRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	SessionID string `json:"session_id" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	Query     string `json:"query" validate:"required,maxbytes"`
	TopK      int    `json:"top_k" validate:"gte=0,lte=100"`
}

// Validate validates the AskRequest fields.
//
// Call after binding the JSON body. Returns a non-nil error naming the
// failing field.
func (r *AskRequest) Validate() error {
	return askValidate.Struct(r)
}

// EnsureDefaults populates default values for optional fields.
//
// Generates RequestID and Timestamp if not provided by the client and
// applies the default display limit. This ensures every request is
// traceable in the audit trail.
func (r *AskRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
}

// =============================================================================
// Ask Response Types
// =============================================================================

// Outcome identifies which path of the assembler produced the answer.
type Outcome string

const (
	// OutcomeGenerated means the generator's text passed validation.
	OutcomeGenerated Outcome = "generated"

	// OutcomeTemplate means the deterministic renderer produced the answer,
	// either as the primary path or as a fallback after a violation or a
	// collaborator failure.
	OutcomeTemplate Outcome = "template"

	// OutcomeSentinel means a fixed sentinel string was emitted
	// (out of scope, contradictory evidence, no evidence on failure).
	OutcomeSentinel Outcome = "sentinel"

	// OutcomeClarification means a clarification question was returned
	// instead of an answer.
	OutcomeClarification Outcome = "clarification"
)

// AskResponse represents the answer emitted for an AskRequest.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4),
//     generated server-side.
//   - RequestID: Echo of the request ID for correlation.
//   - SessionID: Echo of the session ID.
//   - Timestamp: Unix timestamp in milliseconds (UTC) at emission.
//   - Answer: The emitted text. Always non-empty; sentinel strings are
//     bit-exact.
//   - Intents: Intent tags assigned by the router.
//   - Confidence: Classification confidence in [0.1, 0.9].
//   - Outcome: Which assembler path produced the answer.
//   - Violations: Grounding violation kinds that forced a template
//     fallback, empty when none.
//   - ProcessingTimeMs: Time taken to process the request in milliseconds.
type AskResponse struct {
	ResponseID       string   `json:"response_id"`
	RequestID        string   `json:"request_id"`
	SessionID        string   `json:"session_id"`
	Timestamp        int64    `json:"timestamp"`
	Answer           string   `json:"answer"`
	Intents          []string `json:"intents"`
	Confidence       float64  `json:"confidence"`
	Outcome          Outcome  `json:"outcome"`
	Violations       []string `json:"violations,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms,omitempty"`
}

// NewAskResponse creates a new AskResponse with auto-generated ID and
// timestamp.
func NewAskResponse(requestID, sessionID, answer string) *AskResponse {
	return &AskResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
	}
}
