// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements the audit trail verification endpoint.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/AleutianAI/CompliancePilot/services/copilot/audit"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// VerifyAuditTrail creates the gin handler for
// GET /v1/audit/:sessionId/verify.
//
// # Description
//
// Loads a session's audit records and recomputes the hash chain,
// returning verification results with per-record hashes. This lets a
// compliance reviewer cryptographically confirm the session's trail was
// not modified, reordered, or truncated after the fact.
//
// The endpoint is read-only.
//
// # Inputs
//
//   - store: Audit record storage (must not be nil).
//
// # Outputs
//
//   - gin.HandlerFunc: HTTP handler function.
func VerifyAuditTrail(store audit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "VerifyAuditTrail")
		defer span.End()

		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		span.SetAttributes(attribute.String("session.id", sessionID))

		records, err := store.ListBySession(ctx, sessionID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load audit records", "sessionId", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":      "failed to verify audit trail",
				"session_id": sessionID,
			})
			return
		}

		result := audit.VerifyChain(sessionID, records)
		span.SetAttributes(
			attribute.Bool("verification.passed", result.Verified),
			attribute.Int("verification.record_count", result.RecordCount),
		)
		slog.Info("Audit trail verification complete",
			"sessionId", sessionID,
			"verified", result.Verified,
			"recordCount", result.RecordCount,
		)
		c.JSON(http.StatusOK, result)
	}
}
