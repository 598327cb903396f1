// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package copilot

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Config Tests
// =============================================================================

// TestApplyConfigDefaults_AllDefaults verifies default values are applied.
func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	cfg := Config{}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8610, result.Port, "default port should be 8610")
	assert.Equal(t, "ollama", result.LLMBackend, "default generator backend should be ollama")
	assert.Equal(t, "./data/audit", result.AuditDBPath,
		"default audit path should be ./data/audit")
	assert.Equal(t, "copilot-otel-collector:4317", result.OTelEndpoint,
		"default OTel endpoint should be copilot-otel-collector:4317")
	assert.True(t, result.EnableMetrics, "metrics should be enabled by default")
	assert.Equal(t, 30*time.Second, result.GeneratorTimeout)
	assert.Equal(t, 15*time.Second, result.DispatchTimeout)
}

// TestApplyConfigDefaults_PreservesCustomValues verifies custom values are not overwritten.
func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:             8080,
		LLMBackend:       "openai",
		OTelEndpoint:     "custom-collector:4317",
		WeaviateURL:      "http://weaviate:8080",
		AuditDBPath:      "/var/lib/copilot/audit",
		GeneratorTimeout: 5 * time.Second,
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port, "custom port should be preserved")
	assert.Equal(t, "openai", result.LLMBackend, "custom backend should be preserved")
	assert.Equal(t, "custom-collector:4317", result.OTelEndpoint,
		"custom OTel endpoint should be preserved")
	assert.Equal(t, "http://weaviate:8080", result.WeaviateURL,
		"custom Weaviate URL should be preserved")
	assert.Equal(t, "/var/lib/copilot/audit", result.AuditDBPath,
		"custom audit path should be preserved")
	assert.Equal(t, 5*time.Second, result.GeneratorTimeout,
		"custom generator timeout should be preserved")
}

// TestApplyConfigDefaults_TableDriven tests multiple config scenarios.
func TestApplyConfigDefaults_TableDriven(t *testing.T) {
	tests := []struct {
		name     string
		input    Config
		expected Config
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{},
			expected: Config{
				Port:          8610,
				LLMBackend:    "ollama",
				AuditDBPath:   "./data/audit",
				OTelEndpoint:  "copilot-otel-collector:4317",
				EnableMetrics: true,
			},
		},
		{
			name: "custom port preserved",
			input: Config{
				Port: 8080,
			},
			expected: Config{
				Port:          8080,
				LLMBackend:    "ollama",
				AuditDBPath:   "./data/audit",
				OTelEndpoint:  "copilot-otel-collector:4317",
				EnableMetrics: true,
			},
		},
		{
			name: "generator disabled",
			input: Config{
				LLMBackend: "none",
			},
			expected: Config{
				Port:          8610,
				LLMBackend:    "none",
				AuditDBPath:   "./data/audit",
				OTelEndpoint:  "copilot-otel-collector:4317",
				EnableMetrics: true,
			},
		},
		{
			name: "weaviate URL preserved (no default)",
			input: Config{
				WeaviateURL: "http://localhost:8080",
			},
			expected: Config{
				Port:          8610,
				LLMBackend:    "ollama",
				WeaviateURL:   "http://localhost:8080",
				AuditDBPath:   "./data/audit",
				OTelEndpoint:  "copilot-otel-collector:4317",
				EnableMetrics: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := applyConfigDefaults(tt.input)

			assert.Equal(t, tt.expected.Port, result.Port)
			assert.Equal(t, tt.expected.LLMBackend, result.LLMBackend)
			assert.Equal(t, tt.expected.WeaviateURL, result.WeaviateURL)
			assert.Equal(t, tt.expected.AuditDBPath, result.AuditDBPath)
			assert.Equal(t, tt.expected.OTelEndpoint, result.OTelEndpoint)
			assert.Equal(t, tt.expected.EnableMetrics, result.EnableMetrics)
		})
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNew_TemplateOnlyService builds a full service without external
// dependencies: in-memory audit store, generator disabled, no Weaviate.
// The OTLP exporter connects lazily so no collector is needed.
func TestNew_TemplateOnlyService(t *testing.T) {
	svc, err := New(Config{
		LLMBackend:    "none",
		AuditInMemory: true,
		GinMode:       gin.TestMode,
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
	require.NotNil(t, svc.Router())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	svc.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestNew_RegistersAskRoute verifies the pipeline route is wired.
func TestNew_RegistersAskRoute(t *testing.T) {
	svc, err := New(Config{
		LLMBackend:    "none",
		AuditInMemory: true,
		GinMode:       gin.TestMode,
	})
	require.NoError(t, err)

	found := false
	for _, route := range svc.Router().Routes() {
		if route.Method == "POST" && route.Path == "/v1/ask" {
			found = true
			break
		}
	}
	assert.True(t, found, "POST /v1/ask should be registered")
}
