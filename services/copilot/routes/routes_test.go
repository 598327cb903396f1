// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
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

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(
	ctx context.Context,
	domain datatypes.Domain,
	query string,
	topK int,
) (*datatypes.ToolResult, error) {
	return &datatypes.ToolResult{Domain: domain, Count: 0}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	engine, err := trigger_engine.NewTriggerEngine()
	require.NoError(t, err)
	asm, err := assembler.New(assembler.Options{
		Router:     intent.NewRouter(engine),
		Dispatcher: noopDispatcher{},
	})
	require.NoError(t, err)

	store, err := audit.OpenBadgerStore(audit.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	router := gin.New()
	SetupRoutes(router, asm, store)
	return router
}

func TestSetupRoutes_RegistersExpectedRoutes(t *testing.T) {
	router := newTestRouter(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/ask"},
		{"GET", "/v1/audit/:sessionId/verify"},
	}

	registered := router.Routes()
	for _, want := range expected {
		found := false
		for _, route := range registered {
			if route.Method == want.method && route.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "Route %s %s not registered", want.method, want.path)
	}
}

func TestSetupRoutes_HealthResponds(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_MetricsResponds(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
