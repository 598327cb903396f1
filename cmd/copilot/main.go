// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command copilot starts the CompliancePilot core HTTP server.
//
// This is the main entry point for the containerized copilot service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - COPILOT_PORT: HTTP server port (default: 8610)
//   - LLM_BACKEND_TYPE: Generator provider - openai, ollama, none (default: ollama)
//   - TOOL_DISPATCHER_URL: Base URL of the tool service (default: http://copilot-tools:8600)
//   - WEAVIATE_SERVICE_URL: Cold-tier audit export target (optional)
//   - AUDIT_DB_PATH: Embedded audit database directory (default: ./data/audit)
//   - COPILOT_LOG_DIR: Directory for JSON log files (optional, stderr only if unset)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: copilot-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o copilot ./cmd/copilot
//
//	# Run
//	./copilot
//
//	# Or via container
//	podman-compose up copilot
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/CompliancePilot/pkg/logging"
	"github.com/AleutianAI/CompliancePilot/services/copilot"
)

func main() {
	// Setup structured logging, JSON to stderr plus an optional log file
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("COPILOT_LOG_DIR"),
		Service: "copilot",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := copilot.Config{
		Port:              getEnvInt("COPILOT_PORT", 8610),
		LLMBackend:        getEnvString("LLM_BACKEND_TYPE", "ollama"),
		ToolDispatcherURL: os.Getenv("TOOL_DISPATCHER_URL"),
		WeaviateURL:       os.Getenv("WEAVIATE_SERVICE_URL"),
		AuditDBPath:       getEnvString("AUDIT_DB_PATH", "./data/audit"),
		OTelEndpoint:      getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "copilot-otel-collector:4317"),
	}

	slog.Info("Starting copilot",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"audit_db_path", cfg.AuditDBPath,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := copilot.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create copilot service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Copilot error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
