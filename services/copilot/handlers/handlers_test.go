// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/CompliancePilot/services/copilot/assembler"
	"github.com/AleutianAI/CompliancePilot/services/copilot/audit"
	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/copilot/intent"
	"github.com/AleutianAI/CompliancePilot/services/trigger_engine"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubDispatcher returns fixed AML evidence for every dispatch.
type stubDispatcher struct {
	result *datatypes.ToolResult
}

func (s *stubDispatcher) Dispatch(
	ctx context.Context,
	domain datatypes.Domain,
	query string,
	topK int,
) (*datatypes.ToolResult, error) {
	return s.result, nil
}

func newTestAssembler(t *testing.T) *assembler.Assembler {
	t.Helper()
	engine, err := trigger_engine.NewTriggerEngine()
	require.NoError(t, err)

	asm, err := assembler.New(assembler.Options{
		Router: intent.NewRouter(engine),
		Dispatcher: &stubDispatcher{result: &datatypes.ToolResult{
			Domain: datatypes.DomainAML,
			Count:  1,
			AMLMatches: []datatypes.AMLMatch{
				{TransactionID: "T005", RiskScore: 8.5, Amount: 50000, Tags: []string{"layering"}},
			},
		}},
	})
	require.NoError(t, err)
	return asm
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// HandleAsk Tests
// =============================================================================

func TestHandleAsk_ValidRequest(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(newTestAssembler(t)))

	body := `{"session_id": "sess-1", "query": "show structuring activity"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	var response datatypes.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "sess-1", response.SessionID)
	assert.NotEmpty(t, response.RequestID)
	assert.Contains(t, response.Answer, "T005")
	assert.Equal(t, datatypes.OutcomeTemplate, response.Outcome)
	assert.Contains(t, response.Intents, "AML_SEARCH")
}

func TestHandleAsk_OutOfScopeQuery(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(newTestAssembler(t)))

	body := `{"session_id": "sess-1", "query": "tell me a joke"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", strings.NewReader(body))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response datatypes.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, assembler.ScopeDeclineSentinel, response.Answer)
	assert.Equal(t, datatypes.OutcomeSentinel, response.Outcome)
}

func TestHandleAsk_MalformedJSON(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(newTestAssembler(t)))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", strings.NewReader(`{"query":`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAsk_MissingSessionID(t *testing.T) {
	router := gin.New()
	router.POST("/v1/ask", HandleAsk(newTestAssembler(t)))

	body := `{"query": "show structuring activity"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/ask", strings.NewReader(body))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// VerifyAuditTrail Tests
// =============================================================================

func seedAuditStore(t *testing.T) audit.Store {
	t.Helper()
	store, err := audit.OpenBadgerStore(audit.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := audit.NewWriter(store, nil)
	for _, requestID := range []string{"req-1", "req-2"} {
		writer.Submit(&audit.Record{
			RecordID:  "rec-" + requestID,
			SessionID: "sess-1",
			RequestID: requestID,
			Query:     "show structuring activity",
			Outcome:   "template",
			Answer:    "**High-Risk Transactions:** (1 total)",
		})
	}
	writer.Close()
	return store
}

func TestVerifyAuditTrail_IntactChain(t *testing.T) {
	router := gin.New()
	router.GET("/v1/audit/:sessionId/verify", VerifyAuditTrail(seedAuditStore(t)))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/sess-1/verify", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result audit.VerifySessionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Verified)
	assert.Equal(t, 2, result.RecordCount)
	assert.NotEmpty(t, result.ChainHash)
	assert.Len(t, result.RecordHashes, 2)
}

func TestVerifyAuditTrail_BrokenChain(t *testing.T) {
	store, err := audit.OpenBadgerStore(audit.InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	// A record sealed against a bogus predecessor breaks the chain link
	// without breaking its own content hash.
	record := &audit.Record{
		RecordID:  "rec-1",
		SessionID: "sess-1",
		RequestID: "req-1",
		Outcome:   "template",
		Answer:    "answer",
	}
	require.NoError(t, record.Seal("not-the-real-predecessor"))
	require.NoError(t, store.Append(context.Background(), record))

	router := gin.New()
	router.GET("/v1/audit/:sessionId/verify", VerifyAuditTrail(store))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/sess-1/verify", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result audit.VerifySessionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Verified)
	assert.Contains(t, result.ErrorDetails, "chain hash mismatch")
}

func TestVerifyAuditTrail_EmptySession(t *testing.T) {
	router := gin.New()
	router.GET("/v1/audit/:sessionId/verify", VerifyAuditTrail(seedAuditStore(t)))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/audit/unknown-session/verify", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result audit.VerifySessionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Verified)
	assert.Equal(t, 0, result.RecordCount)
}
