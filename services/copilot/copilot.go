// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package copilot provides the core compliance copilot service.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the intent router, the tool dispatcher, the
// generator client, grounding validation, the audit trail, and
// observability infrastructure.
//
// # Usage
//
//	cfg := copilot.Config{Port: 8610}
//	svc, err := copilot.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AleutianAI/CompliancePilot/services/copilot/assembler"
	"github.com/AleutianAI/CompliancePilot/services/copilot/audit"
	"github.com/AleutianAI/CompliancePilot/services/copilot/dispatch"
	"github.com/AleutianAI/CompliancePilot/services/copilot/intent"
	"github.com/AleutianAI/CompliancePilot/services/copilot/observability"
	"github.com/AleutianAI/CompliancePilot/services/copilot/routes"
	"github.com/AleutianAI/CompliancePilot/services/llm"
	"github.com/AleutianAI/CompliancePilot/services/trigger_engine"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the copilot service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds copilot service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or
// programmatically for testing. All fields have sensible defaults.
type Config struct {
	// Port is the HTTP server port. Default: 8610
	Port int

	// LLMBackend specifies the generator provider.
	// Valid values: "openai", "ollama", "none"
	// Default: "ollama". "none" runs template-only.
	LLMBackend string

	// ToolDispatcherURL is the base URL of the external tool service.
	// If empty, the TOOL_DISPATCHER_URL env var or its default applies.
	ToolDispatcherURL string

	// WeaviateURL is the cold-tier audit export target.
	// If empty, cold-tier export is disabled.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// AuditDBPath is the directory for the embedded audit database.
	// Default: "./data/audit"
	AuditDBPath string

	// AuditInMemory runs the audit store without disk persistence.
	// Used by tests.
	AuditInMemory bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "copilot-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// GeneratorTimeout bounds one generator call. Default: 30s
	GeneratorTimeout time.Duration

	// DispatchTimeout bounds one tool dispatch call. Default: 15s
	DispatchTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - asm: The request pipeline
//   - auditStore: Warm-tier audit storage
//   - auditWriter: Serialized audit append queue
//   - weaviateClient: Cold-tier export client (may be nil)
//   - tracerCleanup: Function to shut down the tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	asm            *assembler.Assembler
	auditStore     audit.Store
	auditWriter    *audit.Writer
	weaviateClient *weaviate.Client
	tracerCleanup  func(context.Context)
}

// Compile-time interface compliance check.
var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates a new copilot Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Loads the embedded trigger table and builds the intent router
//  5. Opens the audit store and starts the append writer
//  6. Creates the Weaviate cold-tier exporter if configured
//  7. Creates the tool dispatcher and generator clients
//  8. Assembles the pipeline and sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run copilot service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.PipelineMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for the ask pipeline")
	}

	engine, err := trigger_engine.NewTriggerEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load trigger table: %w", err)
	}
	slog.Info("Loaded trigger table", "version", engine.Version())

	// Weaviate is optional; without it the audit trail lives only in
	// the embedded store.
	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, cold-tier audit export disabled",
			"error", err)
	}

	if err := s.initAudit(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	generator, err := s.initGenerator()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize generator client: %w", err)
	}

	var dispatcher dispatch.ToolDispatcher
	if s.config.ToolDispatcherURL != "" {
		dispatcher = dispatch.NewHTTPDispatcherForURL(s.config.ToolDispatcherURL)
	} else {
		dispatcher = dispatch.NewHTTPDispatcher()
	}

	s.asm, err = assembler.New(assembler.Options{
		Router:           intent.NewRouter(engine),
		Dispatcher:       dispatcher,
		Generator:        generator,
		AuditWriter:      s.auditWriter,
		Metrics:          metrics,
		GeneratorTimeout: s.config.GeneratorTimeout,
		DispatchTimeout:  s.config.DispatchTimeout,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
//
// # Description
//
// Serves until SIGINT/SIGTERM or a server error, then drains the audit
// queue and releases resources. In-flight requests get a bounded grace
// period.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", s.config.Port)
	server := &http.Server{Addr: addr, Handler: s.router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting copilot server", "port", s.config.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Shutting down copilot server")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8610
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.AuditDBPath == "" {
		cfg.AuditDBPath = "./data/audit"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "copilot-otel-collector:4317"
	}
	cfg.EnableMetrics = true
	if cfg.GeneratorTimeout == 0 {
		cfg.GeneratorTimeout = assembler.DefaultGeneratorTimeout
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = assembler.DefaultDispatchTimeout
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured
// collector over insecure gRPC, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("copilot-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate initializes the optional cold-tier export client.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, audit trail stays in the embedded store")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	slog.Info("Weaviate client initialized for cold-tier audit export", "url", weaviateURL)
	return nil
}

// initAudit opens the audit store and starts the append writer.
func (s *service) initAudit() error {
	var storeCfg audit.Config
	if s.config.AuditInMemory {
		storeCfg = audit.InMemoryConfig()
	} else {
		storeCfg = audit.DefaultConfig(s.config.AuditDBPath)
	}

	store, err := audit.OpenBadgerStore(storeCfg)
	if err != nil {
		return err
	}
	s.auditStore = store

	var exporter audit.Exporter
	if s.weaviateClient != nil {
		exporter = audit.NewWeaviateExporter(s.weaviateClient)
	}
	s.auditWriter = audit.NewWriter(store, exporter)

	slog.Info("Audit trail initialized",
		"path", s.config.AuditDBPath,
		"inMemory", s.config.AuditInMemory,
		"coldTier", exporter != nil,
	)
	return nil
}

// initGenerator creates the generator client for the configured backend.
//
// # Limitations
//
//   - Only supports: openai, ollama, none
func (s *service) initGenerator() (llm.LLMClient, error) {
	switch s.config.LLMBackend {
	case "openai":
		slog.Info("Using OpenAI generator backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama generator backend")
		return llm.NewOllamaClient()
	case "none":
		slog.Info("Generator disabled, running template-only")
		return nil, nil
	default:
		slog.Warn("Unknown generator backend, defaulting to ollama", "backend", s.config.LLMBackend)
		return llm.NewOllamaClient()
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("copilot-service"))

	routes.SetupRoutes(s.router, s.asm, s.auditStore)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure. Drains the
// audit queue before closing the store so appends in flight land.
func (s *service) cleanup() {
	if s.auditWriter != nil {
		s.auditWriter.Close()
	}
	if s.auditStore != nil {
		if err := s.auditStore.Close(); err != nil {
			slog.Warn("Audit store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	_ = os.Stdout.Sync()
}
