// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the copilot service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/CompliancePilot/services/copilot/assembler"
	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("copilot.handlers")

// HandleAsk creates the gin handler for POST /v1/ask.
//
// # Description
//
// Binds and validates the request, applies defaults, and runs it
// through the assembler. The pipeline resolves every internal failure
// into a plain-text answer, so the handler's error surface is limited
// to malformed requests and client cancellation.
//
// # Inputs
//
//   - asm: The request pipeline (must not be nil).
//
// # Outputs
//
//   - gin.HandlerFunc: HTTP handler function.
func HandleAsk(asm *assembler.Assembler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		request.EnsureDefaults()
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Ask request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(
			attribute.String("session.id", request.SessionID),
			attribute.String("request.id", request.RequestID),
		)

		response, err := asm.Process(ctx, &request)
		if err != nil {
			if errors.Is(err, ctx.Err()) {
				slog.Info("Ask request cancelled by client",
					"requestId", request.RequestID,
				)
				c.Status(http.StatusRequestTimeout)
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Ask pipeline failed", "requestId", request.RequestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
			return
		}

		span.SetAttributes(
			attribute.String("ask.outcome", string(response.Outcome)),
			attribute.Int64("ask.processing_time_ms", response.ProcessingTimeMs),
		)
		c.JSON(http.StatusOK, response)
	}
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
