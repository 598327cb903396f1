// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler orchestrates one request through the pipeline:
// classify, dispatch, generate, validate, emit. Every failure resolves
// locally into one well-formed plain-text answer. The caller never sees
// a structured error, partial output, or silence.
package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/CompliancePilot/services/copilot/audit"
	"github.com/AleutianAI/CompliancePilot/services/copilot/datatypes"
	"github.com/AleutianAI/CompliancePilot/services/copilot/dispatch"
	"github.com/AleutianAI/CompliancePilot/services/copilot/grounding"
	"github.com/AleutianAI/CompliancePilot/services/copilot/intent"
	"github.com/AleutianAI/CompliancePilot/services/copilot/observability"
	"github.com/AleutianAI/CompliancePilot/services/copilot/render"
	"github.com/AleutianAI/CompliancePilot/services/llm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// assemblerTracer is the OpenTelemetry tracer for assembler operations.
var assemblerTracer = otel.Tracer("copilot.assembler")

// =============================================================================
// Sentinels and Constants
// =============================================================================

// ScopeDeclineSentinel is emitted when classification yields
// OUT_OF_SCOPE. Dispatch and generation are bypassed entirely.
const ScopeDeclineSentinel = "Query out of scope — please ask about PII exposure, AML transactions, regulatory obligations, or SAR drafting."

// InsufficientDataSentinel is emitted when the tool dispatcher flags the
// evidence as contradictory. The validator is bypassed; contradictions
// are never reconciled automatically.
const InsufficientDataSentinel = "Insufficient data to answer"

// NoMatchesSentinel is emitted when a collaborator fails before any
// evidence is available.
const NoMatchesSentinel = "No matches found"

// DefaultGeneratorTimeout bounds one generator call.
const DefaultGeneratorTimeout = 30 * time.Second

// DefaultDispatchTimeout bounds one tool dispatch call.
const DefaultDispatchTimeout = 15 * time.Second

// clarificationThreshold is the confidence at or below which a
// multi-domain classification asks for clarification instead of
// dispatching. A multi-domain query reaches it only when every
// ambiguity marker fires at once.
const clarificationThreshold = 0.5

// defaultGeneratorRate caps generator calls per second when the options
// leave the limit unset.
const defaultGeneratorRate = rate.Limit(5)

// defaultGeneratorBurst is the token bucket size for the generator
// limiter.
const defaultGeneratorBurst = 10

// =============================================================================
// State Machine
// =============================================================================

// pipelineState names a stage of the request state machine. States are
// recorded on spans and log lines for per-request traceability.
type pipelineState string

const (
	stateReceived   pipelineState = "RECEIVED"
	stateClassified pipelineState = "CLASSIFIED"
	stateDispatched pipelineState = "DISPATCHED"
	stateGenerated  pipelineState = "GENERATED"
	stateValidated  pipelineState = "VALIDATED"
	stateEmitted    pipelineState = "EMITTED"
)

// =============================================================================
// Structs
// =============================================================================

// Assembler runs the request state machine.
//
// # Description
//
// Each request executes its own independent pass through the pipeline;
// the assembler holds no per-request state. The router, renderer, and
// validator are pure; the dispatcher and generator are the only calls
// that can block, each under its own bounded timeout with no retries.
//
// # Thread Safety
//
// Safe for concurrent use.
type Assembler struct {
	router      *intent.Router
	dispatcher  dispatch.ToolDispatcher
	generator   llm.LLMClient
	auditWriter *audit.Writer
	metrics     *observability.PipelineMetrics
	limiter     *rate.Limiter

	generatorTimeout time.Duration
	dispatchTimeout  time.Duration
}

// Options configures an Assembler.
//
// # Fields
//
//   - Router: Intent classification (required).
//   - Dispatcher: Evidence fetching (required).
//   - Generator: LLM backend, nil for template-only operation.
//   - AuditWriter: Audit trail sink, nil to disable auditing.
//   - Metrics: Pipeline metrics, nil to disable.
//   - GeneratorRate: Generator calls per second, 0 for the default.
//   - GeneratorBurst: Limiter burst size, 0 for the default.
//   - GeneratorTimeout: Per-call generator bound, 0 for the default.
//   - DispatchTimeout: Per-call dispatcher bound, 0 for the default.
type Options struct {
	Router      *intent.Router
	Dispatcher  dispatch.ToolDispatcher
	Generator   llm.LLMClient
	AuditWriter *audit.Writer
	Metrics     *observability.PipelineMetrics

	GeneratorRate    rate.Limit
	GeneratorBurst   int
	GeneratorTimeout time.Duration
	DispatchTimeout  time.Duration
}

// New creates an Assembler from options.
//
// # Inputs
//
//   - opts: Configuration. Router and Dispatcher are required.
//
// # Outputs
//
//   - *Assembler: Ready for concurrent use.
//   - error: Non-nil when a required dependency is missing.
func New(opts Options) (*Assembler, error) {
	if opts.Router == nil {
		return nil, errors.New("assembler requires a router")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("assembler requires a dispatcher")
	}

	generatorRate := opts.GeneratorRate
	if generatorRate == 0 {
		generatorRate = defaultGeneratorRate
	}
	generatorBurst := opts.GeneratorBurst
	if generatorBurst == 0 {
		generatorBurst = defaultGeneratorBurst
	}
	generatorTimeout := opts.GeneratorTimeout
	if generatorTimeout == 0 {
		generatorTimeout = DefaultGeneratorTimeout
	}
	dispatchTimeout := opts.DispatchTimeout
	if dispatchTimeout == 0 {
		dispatchTimeout = DefaultDispatchTimeout
	}

	return &Assembler{
		router:           opts.Router,
		dispatcher:       opts.Dispatcher,
		generator:        opts.Generator,
		auditWriter:      opts.AuditWriter,
		metrics:          opts.Metrics,
		limiter:          rate.NewLimiter(generatorRate, generatorBurst),
		generatorTimeout: generatorTimeout,
		dispatchTimeout:  dispatchTimeout,
	}, nil
}

// emission carries a terminal outcome to the emit step.
type emission struct {
	answer         string
	outcome        datatypes.Outcome
	violationKinds []datatypes.ViolationKind
	fallbackReason observability.FallbackReason
}

// =============================================================================
// Pipeline
// =============================================================================

// Process runs one request through the full state machine.
//
// # Description
//
// Returns a response for every input except a cancelled context. All
// collaborator failures resolve into one of the fixed textual outcomes.
// A cancelled request discards partial work and writes no audit record.
//
// # Inputs
//
//   - ctx: Request context. Cancellation aborts the pipeline.
//   - req: A validated request with defaults applied.
//
// # Outputs
//
//   - *datatypes.AskResponse: The emitted answer.
//   - error: Non-nil only when ctx was cancelled before emission.
func (a *Assembler) Process(ctx context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	start := time.Now()
	ctx, span := assemblerTracer.Start(ctx, "Assembler.Process")
	defer span.End()

	if a.metrics != nil {
		a.metrics.RequestStarted()
		defer a.metrics.RequestEnded()
	}

	slog.Info("Request received",
		"requestId", req.RequestID,
		"sessionId", req.SessionID,
		"state", stateReceived,
	)

	classification := a.router.Classify(req.Query)
	span.SetAttributes(
		attribute.StringSlice("ask.intents", classification.IntentStrings()),
		attribute.Float64("ask.confidence", classification.Confidence),
		attribute.String("ask.state", string(stateClassified)),
	)
	slog.Debug("Request classified",
		"requestId", req.RequestID,
		"intents", classification.IntentStrings(),
		"confidence", classification.Confidence,
		"reason", classification.Reason,
	)

	if classification.IsOutOfScope() {
		return a.emit(ctx, req, classification, start, emission{
			answer:  ScopeDeclineSentinel,
			outcome: datatypes.OutcomeSentinel,
		})
	}

	if len(classification.Intents) >= 2 && classification.Confidence <= clarificationThreshold {
		return a.emit(ctx, req, classification, start, emission{
			answer:  clarificationQuestion(classification.Intents),
			outcome: datatypes.OutcomeClarification,
		})
	}

	evidence, err := a.dispatchEvidence(ctx, classification.Intents[0], req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Tool dispatch failed, emitting sentinel",
			"requestId", req.RequestID,
			"error", err,
		)
		return a.emit(ctx, req, classification, start, emission{
			answer:         NoMatchesSentinel,
			outcome:        datatypes.OutcomeSentinel,
			fallbackReason: observability.FallbackDispatchError,
		})
	}
	span.SetAttributes(attribute.String("ask.state", string(stateDispatched)))

	if evidence.Contradictory {
		return a.emit(ctx, req, classification, start, emission{
			answer:         InsufficientDataSentinel,
			outcome:        datatypes.OutcomeSentinel,
			fallbackReason: observability.FallbackContradictory,
		})
	}

	rendered := render.Render(evidence, req.TopK)
	if evidence.IsEmpty() {
		return a.emit(ctx, req, classification, start, emission{
			answer:  rendered,
			outcome: datatypes.OutcomeSentinel,
		})
	}

	result := a.generateAndValidate(ctx, req, classification, evidence, rendered)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	span.SetAttributes(attribute.String("ask.state", string(stateValidated)))
	return a.emit(ctx, req, classification, start, result)
}

// dispatchEvidence runs the single bounded tool dispatch for the
// primary intent's domain.
func (a *Assembler) dispatchEvidence(
	ctx context.Context,
	primary datatypes.Intent,
	req *datatypes.AskRequest,
) (*datatypes.ToolResult, error) {
	dispatchCtx, cancel := context.WithTimeout(ctx, a.dispatchTimeout)
	defer cancel()

	start := time.Now()
	evidence, err := a.dispatcher.Dispatch(dispatchCtx, domainForIntent(primary), req.Query, req.TopK)
	if a.metrics != nil {
		a.metrics.RecordCollaboratorLatency(
			observability.CollaboratorDispatcher,
			time.Since(start).Seconds(),
			err == nil,
		)
	}
	return evidence, err
}

// generateAndValidate runs the generator under its limiter and timeout,
// then gates the output through grounding validation. Any failure along
// the way resolves to the rendered template.
func (a *Assembler) generateAndValidate(
	ctx context.Context,
	req *datatypes.AskRequest,
	classification datatypes.ClassificationResult,
	evidence *datatypes.ToolResult,
	rendered string,
) emission {
	if a.generator == nil {
		return emission{answer: rendered, outcome: datatypes.OutcomeTemplate}
	}
	if !a.limiter.Allow() {
		slog.Debug("Generator rate limit reached, using template",
			"requestId", req.RequestID,
		)
		return emission{answer: rendered, outcome: datatypes.OutcomeTemplate}
	}

	prompt, err := buildPrompt(req.Query, evidence, rendered)
	if err != nil {
		slog.Error("Failed to build generator prompt",
			"requestId", req.RequestID,
			"error", err,
		)
		return emission{
			answer:         rendered,
			outcome:        datatypes.OutcomeTemplate,
			fallbackReason: observability.FallbackGeneratorError,
		}
	}

	generateCtx, cancel := context.WithTimeout(ctx, a.generatorTimeout)
	defer cancel()

	start := time.Now()
	generated, err := a.generator.Generate(generateCtx, prompt, generationParams())
	if a.metrics != nil {
		a.metrics.RecordCollaboratorLatency(
			observability.CollaboratorGenerator,
			time.Since(start).Seconds(),
			err == nil,
		)
	}
	if err != nil {
		reason := observability.FallbackGeneratorError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = observability.FallbackGeneratorTimeout
		}
		slog.Warn("Generator failed, falling back to template",
			"requestId", req.RequestID,
			"error", err,
		)
		return emission{answer: rendered, outcome: datatypes.OutcomeTemplate, fallbackReason: reason}
	}

	report := grounding.Validate(generated, evidence)
	if report.Passed() {
		return emission{answer: generated, outcome: datatypes.OutcomeGenerated}
	}

	// The generated text is discarded wholesale. Partial correction
	// risks leaving adjacent unverified claims intact.
	kinds := report.Kinds()
	slog.Warn("Generated answer failed grounding validation, using template",
		"requestId", req.RequestID,
		"intents", classification.IntentStrings(),
		"violationKinds", violationKindStrings(kinds),
	)
	return emission{
		answer:         rendered,
		outcome:        datatypes.OutcomeTemplate,
		violationKinds: kinds,
		fallbackReason: observability.FallbackGroundingViolation,
	}
}

// emit finalizes one terminal outcome: builds the response, records
// metrics, and queues the audit record. Cancelled requests return an
// error and write nothing.
func (a *Assembler) emit(
	ctx context.Context,
	req *datatypes.AskRequest,
	classification datatypes.ClassificationResult,
	start time.Time,
	result emission,
) (*datatypes.AskResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	resp := datatypes.NewAskResponse(req.RequestID, req.SessionID, result.answer)
	resp.Intents = classification.IntentStrings()
	resp.Confidence = classification.Confidence
	resp.Outcome = result.outcome
	resp.Violations = violationKindStrings(result.violationKinds)
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	primaryIntent := string(classification.Intents[0])
	if a.metrics != nil {
		a.metrics.RecordRequest(primaryIntent, string(result.outcome))
		if result.fallbackReason != "" {
			a.metrics.RecordFallback(result.fallbackReason)
		}
		a.metrics.RecordViolations(resp.Violations)
	}

	if a.auditWriter != nil {
		a.auditWriter.Submit(a.buildAuditRecord(req, classification, resp))
	}

	slog.Info("Request emitted",
		"requestId", req.RequestID,
		"sessionId", req.SessionID,
		"state", stateEmitted,
		"outcome", result.outcome,
		"processingTimeMs", resp.ProcessingTimeMs,
	)
	return resp, nil
}

// buildAuditRecord assembles the unsealed audit entry for one emission.
// The writer seals it against the session chain.
func (a *Assembler) buildAuditRecord(
	req *datatypes.AskRequest,
	classification datatypes.ClassificationResult,
	resp *datatypes.AskResponse,
) *audit.Record {
	var secondary []string
	if !classification.IsOutOfScope() {
		for _, tag := range classification.Intents[1:] {
			secondary = append(secondary, string(domainForIntent(tag)))
		}
	}
	return &audit.Record{
		RecordID:         uuid.NewString(),
		SessionID:        req.SessionID,
		RequestID:        req.RequestID,
		Timestamp:        time.Now().UnixMilli(),
		Query:            req.Query,
		Intents:          classification.IntentStrings(),
		Confidence:       classification.Confidence,
		PrimaryDomain:    string(domainForIntent(classification.Intents[0])),
		SecondaryDomains: secondary,
		Outcome:          string(resp.Outcome),
		ViolationKinds:   resp.Violations,
		Answer:           resp.Answer,
		ProcessingTimeMs: resp.ProcessingTimeMs,
	}
}

// =============================================================================
// Helpers
// =============================================================================

// domainLabels maps domains to the phrasing used in user-facing text.
var domainLabels = map[datatypes.Domain]string{
	datatypes.DomainPII: "PII exposure",
	datatypes.DomainAML: "AML transactions",
	datatypes.DomainReg: "regulatory obligations",
	datatypes.DomainSAR: "SAR drafting",
}

// domainForIntent maps an intent tag to its tool domain. OUT_OF_SCOPE
// never reaches dispatch, so it maps to the general domain.
func domainForIntent(tag datatypes.Intent) datatypes.Domain {
	switch tag {
	case datatypes.IntentPIISearch:
		return datatypes.DomainPII
	case datatypes.IntentAMLSearch:
		return datatypes.DomainAML
	case datatypes.IntentRegSearch:
		return datatypes.DomainReg
	case datatypes.IntentSARDraft:
		return datatypes.DomainSAR
	default:
		return datatypes.DomainGeneral
	}
}

// clarificationQuestion builds the one-sentence ambiguity question.
func clarificationQuestion(tags []datatypes.Intent) string {
	labels := make([]string, 0, len(tags))
	for _, tag := range tags {
		labels = append(labels, domainLabels[domainForIntent(tag)])
	}
	return fmt.Sprintf(
		"Your query could relate to %s: which area should I search?",
		strings.Join(labels, " or "),
	)
}

// promptTemplate frames the evidence for the generator. The reference
// rendering anchors the expected shape; the validator still gates the
// output afterwards.
const promptTemplate = `Evidence records (JSON):
%s

Reference rendering of the same evidence:
%s

Analyst query: %s

Answer the query using only the evidence records above. Quote
identifiers, amounts, owners, deadlines, and tags verbatim. Reproduce
any masked span byte for byte, including the [MASKED] placeholder. Do
not add records, fields, or totals that are not in the evidence.`

func buildPrompt(query string, evidence *datatypes.ToolResult, rendered string) (string, error) {
	evidenceJSON, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize evidence for prompt: %w", err)
	}
	return fmt.Sprintf(promptTemplate, evidenceJSON, rendered, query), nil
}

// generationParams returns the fixed low-temperature settings used for
// compliance answers.
func generationParams() llm.GenerationParams {
	temperature := float32(0.1)
	maxTokens := 1024
	return llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}

// violationKindStrings converts kinds for response and audit fields.
func violationKindStrings(kinds []datatypes.ViolationKind) []string {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, string(kind))
	}
	return out
}
