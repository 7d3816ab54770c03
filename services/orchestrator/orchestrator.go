// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires the lease service together.
//
// New builds every component from a config.Config: tracing, the Weaviate
// client and schema, the LLM client, the embedder and its cache, the
// retrieval engine, the session store and its SQLite snapshots, the legal
// core (router, manager, safety filter, composer), PDF export, ingestion,
// and the HTTP router.
//
// Optional collaborators degrade rather than fail startup:
//
//   - No Weaviate URL or no embedder: turns run unverified, ingestion is 501.
//   - No reranker URL: retrieval results are degraded.
//   - No session DB path: sessions live in memory only.
//   - Archive disabled: POST /export is 501.
//
// # Usage
//
//	cfg, _ := config.Load("")
//	svc, err := orchestrator.New(*cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianLease/pkg/config"
	"github.com/AleutianAI/AleutianLease/pkg/embedcache"
	"github.com/AleutianAI/AleutianLease/services/legal/composer"
	"github.com/AleutianAI/AleutianLease/services/legal/dates"
	"github.com/AleutianAI/AleutianLease/services/legal/intent"
	"github.com/AleutianAI/AleutianLease/services/legal/manager"
	"github.com/AleutianAI/AleutianLease/services/legal/retrieval"
	"github.com/AleutianAI/AleutianLease/services/legal/session"
	"github.com/AleutianAI/AleutianLease/services/llm"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/export"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/ingestion"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianLease/services/orchestrator/services"
	"github.com/AleutianAI/AleutianLease/services/policy_engine"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the lease service lifecycle.
//
// # Thread Safety
//
// Safe for concurrent use after New returns. Run is called at most once.
type Service interface {
	// Run serves HTTP until SIGINT/SIGTERM or a server error, then shuts
	// down gracefully and releases every resource.
	Run() error

	// Router returns the configured Gin engine. Used by tests.
	Router() *gin.Engine

	// Turns returns the host operations for non-HTTP hosts (MCP, CLI).
	Turns() *services.TurnService

	// Close releases resources without serving. Run calls it on exit.
	Close() error
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service.
//
// # Fields
//
//   - weaviateClient, retriever, ingester: nil when the vector store is off
//   - renderer, archive: nil interfaces when export is off
type service struct {
	config config.Config

	router   *gin.Engine
	registry *prometheus.Registry
	metrics  *observability.TurnMetrics

	llmClient      llm.LLMClient
	policyEngine   *policy_engine.PolicyEngine
	weaviateClient *weaviate.Client
	embedCache     *embedcache.Cache

	retriever services.Retriever
	ingester  handlers.DocumentIngester
	renderer  export.Renderer
	archive   export.Archiver

	sessions *session.Store
	turns    *services.TurnService

	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates the lease Service.
//
// # Description
//
//  1. Applies defaults to zero-valued settings
//  2. Initializes tracing (when enabled) and metrics
//  3. Initializes Weaviate and the schema of the three corpora
//  4. Initializes the LLM client and the embedder
//  5. Builds the retrieval engine, session store and legal core
//  6. Builds export and ingestion
//  7. Sets up HTTP routes
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a required component (LLM client, policy engine,
//     snapshot database) cannot be created.
func New(cfg config.Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.Telemetry.TracingEnabled {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.registry = prometheus.NewRegistry()
	if s.config.Telemetry.MetricsEnabled {
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		s.metrics = observability.NewTurnMetrics(s.registry)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, turns will run unverified", "error", err)
		s.weaviateClient = nil
	}

	var err error
	s.policyEngine, err = policy_engine.NewPolicyEngine()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.initRetrieval()

	if err := s.initSessions(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	s.initExport()
	s.initCore()

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run serves HTTP until a termination signal, then drains in-flight
// requests for up to 15 seconds.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.sessions.StartJanitor(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting lease server", "port", s.config.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received, draining requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Turns() *services.TurnService { return s.turns }

func (s *service) Close() error {
	s.cleanup()
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills zero-valued settings so that programmatic
// configs behave like loaded ones. Component-level defaults (timeouts,
// retries, TTLs) are applied by each component.
func applyConfigDefaults(cfg config.Config) config.Config {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 12210
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "openai"
	}
	if cfg.Telemetry.OTelEndpoint == "" {
		cfg.Telemetry.OTelEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "leasecore"
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 10
	}
	if cfg.Export.Bucket == "" {
		cfg.Export.Bucket = "leasecore-exports"
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "leasecore"
	}
	return cfg
}

// initTracer sets up the OTLP gRPC trace exporter.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (internal collector)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.Telemetry.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(s.config.Telemetry.ServiceName)))
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

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}, nil
}

// initWeaviate creates the Weaviate client and ensures the corpus classes.
// An empty URL leaves the client nil.
func (s *service) initWeaviate() error {
	client, err := newWeaviateClient(s.config.Weaviate)
	if err != nil || client == nil {
		return err
	}
	s.weaviateClient = client

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := datatypes.EnsureWeaviateSchema(ctx, client); err != nil {
		return err
	}
	slog.Info("Weaviate client initialized", "url", s.config.Weaviate.URL)
	return nil
}

func newWeaviateClient(cfg config.WeaviateConfig) (*weaviate.Client, error) {
	weaviateURL := strings.Trim(cfg.URL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, retrieval is disabled")
		return nil, nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{Host: parsedURL.Host, Scheme: parsedURL.Scheme}
	if cfg.APIKey != "" {
		clientConf.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	return client, nil
}

// initLLMClient creates the classification/generation client.
func (s *service) initLLMClient() error {
	var err error
	switch s.config.LLM.Backend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  s.config.LLM.APIKey,
			BaseURL: s.config.LLM.BaseURL,
			Model:   s.config.LLM.Model,
		})
		slog.Info("Using OpenAI LLM backend")
	case "claude", "anthropic":
		s.llmClient, err = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey: s.config.LLM.APIKey,
			Model:  s.config.LLM.Model,
		})
		slog.Info("Using Anthropic (Claude) LLM backend")
	default:
		return fmt.Errorf("unknown LLM backend %q", s.config.LLM.Backend)
	}
	return err
}

// newEmbedder creates the OpenAI-compatible embedder. With an Anthropic
// generation backend the embedding key must be given separately.
func newEmbedder(cfg config.LLMConfig) (*llm.OpenAIEmbedder, error) {
	key, base := cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL
	if key == "" && cfg.Backend == "openai" {
		key = cfg.APIKey
	}
	if base == "" && cfg.Backend == "openai" {
		base = cfg.BaseURL
	}
	return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
		APIKey:         key,
		BaseURL:        base,
		EmbeddingModel: cfg.EmbeddingModel,
		Dimensions:     cfg.EmbeddingDimensions,
	})
}

// initRetrieval builds the retrieval engine and the ingester. Both stay
// nil when the vector store or embedder is unavailable.
func (s *service) initRetrieval() {
	if s.weaviateClient == nil {
		return
	}
	embedder, err := newEmbedder(s.config.LLM)
	if err != nil {
		slog.Warn("Embedder unavailable, turns will run unverified", "error", err)
		return
	}

	var queryEmbedder retrieval.Embedder = embedder
	if s.config.EmbedCache.Enabled {
		cache, err := embedcache.Open(embedcache.Config{
			Path: s.config.EmbedCache.Path,
			TTL:  s.config.EmbedCache.TTL,
		})
		if err != nil {
			slog.Warn("Embedding cache unavailable, embedding every query", "path", s.config.EmbedCache.Path, "error", err)
		} else {
			s.embedCache = cache
			queryEmbedder = embedcache.NewCachingEmbedder(embedder, cache, s.config.LLM.EmbeddingModel)
		}
	}

	var reranker retrieval.Reranker
	if s.config.Reranker.URL != "" {
		reranker = retrieval.NewHTTPReranker(s.config.Reranker.URL, s.config.Reranker.APIKey, s.config.Reranker.Model)
	} else {
		slog.Warn("Reranker not configured, retrieval results will be degraded")
	}

	s.retriever = retrieval.NewEngine(queryEmbedder, retrieval.NewWeaviateStore(s.weaviateClient), reranker, retrieval.Config{
		TopK:                s.config.Retrieval.TopK,
		CandidatesPerCorpus: s.config.Retrieval.CandidatesPerCorpus,
		SearchTimeout:       s.config.Retrieval.SearchTimeout,
		SearchRetries:       s.config.Retrieval.SearchRetries,
	})
	s.ingester = ingestion.New(embedder, ingestion.NewWeaviateWriter(s.weaviateClient), 0)
}

// initSessions opens the snapshot database and the session store.
func (s *service) initSessions() error {
	var snapshots session.SnapshotStore
	if path := s.config.Sessions.DBPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
		db, err := session.OpenSQLite(path)
		if err != nil {
			return err
		}
		snapshots = db
		slog.Info("Session snapshots enabled", "path", path)
	} else {
		slog.Warn("Session DB path not configured, contracts are lost on restart")
	}
	s.sessions = session.NewStore(snapshots, session.Config{
		IdleTTL:         s.config.Sessions.IdleTTL,
		JanitorInterval: s.config.Sessions.JanitorInterval,
	})
	return nil
}

// initExport creates the PDF renderer and the archive.
func (s *service) initExport() {
	if s.config.Export.PDFEnabled {
		s.renderer = export.NewPDFRenderer(export.PDFConfig{
			ChromePath: s.config.Export.ChromePath,
			Timeout:    s.config.Export.PDFTimeout,
		})
	}
	if !s.config.Export.ArchiveEnabled {
		return
	}
	archive, err := export.NewArchive(export.ArchiveConfig{
		Endpoint:  s.config.Export.Endpoint,
		AccessKey: s.config.Export.AccessKey,
		SecretKey: s.config.Export.SecretKey,
		Bucket:    s.config.Export.Bucket,
		UseSSL:    s.config.Export.UseSSL,
		URLExpiry: s.config.Export.URLExpiry,
	})
	if err != nil {
		slog.Warn("Export archive disabled", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.EnsureBucket(ctx); err != nil {
		slog.Warn("Export archive bucket check failed, archive disabled", "bucket", s.config.Export.Bucket, "error", err)
		return
	}
	s.archive = archive
}

// initCore builds the legal reasoning pipeline and the host service.
func (s *service) initCore() {
	validator := dates.NewValidator(dates.Config{
		MinDurationDays: s.config.Legal.MinDurationDays,
		MaxDurationDays: s.config.Legal.MaxDurationDays,
	})
	s.turns = services.NewTurnService(services.TurnServiceDeps{
		Classifier: intent.NewRouter(s.llmClient, intent.Config{Timeout: s.config.LLM.ClassifyTimeout}),
		Retriever:  s.retriever,
		Manager:    manager.New(validator),
		Safety:     s.policyEngine,
		Composer: composer.New(s.llmClient, s.policyEngine, composer.Config{
			AutoApplyReviewRewrites: s.config.Legal.AutoApplyReviewRewrites,
			GenerationTimeout:       s.config.LLM.GenerateTimeout,
		}),
		Sessions: s.sessions,
		Metrics:  s.metrics,
	})
}

// initRouter sets up the Gin engine, middleware, and routes.
func (s *service) initRouter() error {
	if s.config.Server.GinMode != "" {
		gin.SetMode(s.config.Server.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), gin.Logger())
	if s.config.Telemetry.TracingEnabled {
		s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))
	}

	var authProvider middleware.AuthProvider = middleware.NopAuthProvider{}
	if s.config.Auth.JWTSecret != "" {
		provider, err := middleware.NewJWTAuthProvider(s.config.Auth.JWTSecret, s.config.Auth.Issuer)
		if err != nil {
			return err
		}
		authProvider = provider
	} else {
		slog.Warn("JWT secret not configured, API is unauthenticated")
	}

	var limiter *middleware.RateLimiter
	if s.config.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.Server.RateLimit,
			Burst:             s.config.Server.RateBurst,
		})
	}

	routes.SetupRoutes(s.router, routes.Deps{
		Service:  s.turns,
		Renderer: s.renderer,
		Archive:  s.archive,
		Ingester: s.ingester,
		Auth:     authProvider,
		Limiter:  limiter,
		Metrics:  s.metrics,
		Gatherer: s.registry,
	})
	return nil
}

// cleanup releases every resource. Safe to call more than once.
func (s *service) cleanup() {
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			slog.Warn("Session store close error", "error", err)
		}
		s.sessions = nil
	}
	if s.embedCache != nil {
		if err := s.embedCache.Close(); err != nil {
			slog.Warn("Embedding cache close error", "error", err)
		}
		s.embedCache = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Ingestion without the HTTP host
// =============================================================================

// NewIngester builds an ingester for the CLI. It needs only the vector
// store and the embedder.
//
// # Outputs
//
//   - *ingestion.Ingester: Ready to use.
//   - error: When Weaviate is not configured or unreachable, or the
//     embedder cannot be created.
func NewIngester(ctx context.Context, cfg config.Config) (*ingestion.Ingester, error) {
	cfg = applyConfigDefaults(cfg)
	client, err := newWeaviateClient(cfg.Weaviate)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("weaviate.url is required for ingestion")
	}
	if err := datatypes.EnsureWeaviateSchema(ctx, client); err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return ingestion.New(embedder, ingestion.NewWeaviateWriter(client), 0), nil
}
