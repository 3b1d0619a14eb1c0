// Package server wires the ragjenkins components into a ready HTTP handler.
//
// It lives in pkg/ so both the server binary and the CLI build the exact
// same stack:
//
//	srv, err := server.New(ctx)
//	defer srv.ShutdownFunc(ctx)
//	http.ListenAndServe(":8501", srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/agentoven/ragjenkins/internal/activity"
	"github.com/agentoven/ragjenkins/internal/agent"
	"github.com/agentoven/ragjenkins/internal/api"
	"github.com/agentoven/ragjenkins/internal/api/handlers"
	"github.com/agentoven/ragjenkins/internal/archive"
	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/internal/embeddings"
	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/internal/jenkins"
	"github.com/agentoven/ragjenkins/internal/notify"
	"github.com/agentoven/ragjenkins/internal/rag"
	modelrouter "github.com/agentoven/ragjenkins/internal/router"
	"github.com/agentoven/ragjenkins/internal/telemetry"
	"github.com/agentoven/ragjenkins/internal/vectorstore"
)

// Server holds the initialized components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Handlers exposes the wired components to in-process callers (the CLI).
	Handlers *handlers.Handlers

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc flushes telemetry and closes the vector store.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and builds the server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds the server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Server, error) {
		shutdown(ctx)
		return nil, err
	}

	// Telemetry
	traceShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	shutdowns = append(shutdowns, traceShutdown)

	var (
		metricsHandler http.Handler
		metrics        *telemetry.Metrics
	)
	if cfg.Telemetry.MetricsEnabled {
		handler, metricsShutdown, err := telemetry.InitMetrics()
		if err != nil {
			return fail(fmt.Errorf("init metrics: %w", err))
		}
		shutdowns = append(shutdowns, metricsShutdown)
		if metrics, err = telemetry.NewMetrics(otel.Meter(telemetry.MeterName)); err != nil {
			return fail(err)
		}
		metricsHandler = handler
	}

	// Embeddings + vector store
	emb, err := embeddings.Open(cfg)
	if err != nil {
		return fail(fmt.Errorf("open embeddings: %w", err))
	}

	store, err := vectorstore.Open(ctx, cfg.Vector.Store, cfg.Vector.Path, cfg.Vector.PgvectorURL, emb.Dimensions())
	if err != nil {
		return fail(fmt.Errorf("open vector store: %w", err))
	}
	shutdowns = append(shutdowns, closer(store))

	log.Info().
		Str("embeddings", emb.Kind()).
		Int("dimensions", emb.Dimensions()).
		Str("vector_store", store.Kind()).
		Msg("✅ Code index initialized")

	// Ingestion
	chunker := rag.DefaultChunkerConfig()
	chunker.ChunkSize = cfg.Chunker.ChunkSize
	chunker.OverlapLines = cfg.Chunker.OverlapLines
	walker, err := rag.NewWalker(chunker)
	if err != nil {
		return fail(err)
	}
	ingestOpts := []rag.IngesterOption{
		rag.WithBatchSize(cfg.Chunker.BatchSize),
		rag.WithArchiveOptions(archive.Options{
			ScratchDir:           cfg.Archive.ScratchDir,
			MaxEntries:           cfg.Archive.MaxEntries,
			MaxUncompressedBytes: cfg.Archive.MaxUncompressedBytes,
		}),
	}
	if metrics != nil {
		ingestOpts = append(ingestOpts, rag.WithChunkCounter(metrics))
	}

	// Model router
	mr := modelrouter.FromConfig(cfg)
	providers := make([]string, 0)
	for _, p := range mr.Providers() {
		providers = append(providers, p.Name)
	}
	log.Info().Strs("providers", providers).Msg("✅ Model Router initialized")

	feed := activity.NewFeed(200)

	h := &handlers.Handlers{
		Config:      cfg,
		Collections: index.NewManager(emb, store),
		Ingester:    rag.NewIngester(walker, ingestOpts...),
		Model:       mr,
		AgentConfig: agent.Config{
			MaxIterations:    cfg.Agent.MaxIterations,
			StatusRetries:    cfg.Agent.StatusRetries,
			StatusRetryDelay: cfg.Agent.StatusRetryDelay,
			SearchTopK:       cfg.Agent.SearchTopK,
			DefaultJob:       cfg.Jenkins.DefaultJob,
		},
		Observers: []agent.Observer{feed},
		Activity:  feed,
		Providers: providers,
		Checks: map[string]handlers.HealthReporter{
			"embeddings":   check(emb.Kind(), emb.HealthCheck),
			"vector_store": check(store.Kind(), store.HealthCheck),
			"llm":          mr.HealthCheck,
		},
	}
	if metrics != nil {
		h.Observers = append(h.Observers, metrics)
	}
	if cfg.Notify.WebhookURL != "" {
		wh := notify.NewWebhook(cfg.Notify.WebhookURL, notify.WithSecret(cfg.Notify.WebhookSecret))
		h.Observers = append(h.Observers, wh)
		shutdowns = append(shutdowns, wh.Wait)
		log.Info().Msg("✅ Run notifications enabled")
	}

	// Jenkins (optional)
	if cfg.Jenkins.Enabled() {
		catalogue, err := jenkins.LoadCatalogue(cfg.Jenkins.TemplatesFile)
		if err != nil {
			return fail(err)
		}
		client := jenkins.NewClient(cfg.Jenkins.URL, cfg.Jenkins.Username, cfg.Jenkins.APIToken, cfg.Jenkins.Timeout,
			jenkins.WithMaxConsole(cfg.Jenkins.MaxConsole),
			jenkins.WithTemplates(catalogue),
		)
		h.Jenkins = client
		h.Templates = catalogue.Names()
		h.Checks["jenkins"] = check(cfg.Jenkins.URL, client.HealthCheck)
		log.Info().
			Str("url", cfg.Jenkins.URL).
			Strs("templates", h.Templates).
			Msg("✅ Jenkins client initialized")
	} else {
		log.Warn().Msg("Jenkins credentials not set; agent runs are search-only")
	}

	return &Server{
		Handler:      api.NewRouter(h, metricsHandler),
		Handlers:     h,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// ListenAndServe serves on the configured port until ctx is cancelled,
// then drains in-flight requests. Abandoned extraction directories are
// swept while it runs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Agent runs poll Jenkins with retries, so writes get a long timeout.
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      s.Handler,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go archive.NewJanitor(s.Config.Archive.ScratchDir, s.Config.Archive.ScratchMaxAge).Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	log.Info().Int("port", s.Port).Msg("🚀 ragjenkins is ready")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// check reports a single backend's health under name.
func check(name string, fn func(context.Context) error) handlers.HealthReporter {
	return func(ctx context.Context) map[string]error {
		return map[string]error{name: fn(ctx)}
	}
}

// closer adapts the drivers' Close methods to a shutdown function.
func closer(v any) func(context.Context) error {
	return func(context.Context) error {
		switch c := v.(type) {
		case io.Closer:
			return c.Close()
		case interface{ Close() }:
			c.Close()
		}
		return nil
	}
}
