// Package main wires together the site optimization service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/api"
	"github.com/optiview/optiview/internal/artifacts"
	"github.com/optiview/optiview/internal/clock/system"
	"github.com/optiview/optiview/internal/config"
	"github.com/optiview/optiview/internal/events"
	"github.com/optiview/optiview/internal/events/sinks"
	"github.com/optiview/optiview/internal/hash/sha256"
	"github.com/optiview/optiview/internal/id/uuid"
	"github.com/optiview/optiview/internal/logging"
	"github.com/optiview/optiview/internal/metrics"
	"github.com/optiview/optiview/internal/orchestrator"
	"github.com/optiview/optiview/internal/seo/audit"
	"github.com/optiview/optiview/internal/seo/autofix"
	"github.com/optiview/optiview/internal/seo/content"
	"github.com/optiview/optiview/internal/seo/crawl"
	"github.com/optiview/optiview/internal/seo/research"
	"github.com/optiview/optiview/internal/seo/wordpress"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(promReg)
	if err != nil {
		logger.Fatal("register http metrics failed", zap.Error(err))
	}

	memSink := sinks.NewMemorySink(cfg.Events.MemoryCapacity)
	hubSinks := []events.Sink{
		sinks.NewLogSink(logger.Named("events")),
		memSink,
	}
	promSink, err := sinks.NewPrometheusSink(promReg)
	if err != nil {
		logger.Fatal("register event metrics failed", zap.Error(err))
	}
	hubSinks = append(hubSinks, promSink)

	if cfg.Events.PostgresDSN != "" {
		pgSink, err := sinks.NewPostgresSink(ctx, sinks.PostgresConfig{
			DSN:   cfg.Events.PostgresDSN,
			Table: cfg.Events.PostgresTable,
		})
		if err != nil {
			logger.Fatal("postgres event sink init failed", zap.Error(err))
		}
		hubSinks = append(hubSinks, pgSink)
	}
	if cfg.Events.PubSubProjectID != "" && cfg.Events.PubSubTopic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.Events.PubSubProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := psClient.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		psSink, err := sinks.NewPubSubSink(psClient.Publisher(cfg.Events.PubSubTopic))
		if err != nil {
			logger.Fatal("pubsub event sink init failed", zap.Error(err))
		}
		hubSinks = append(hubSinks, psSink)
	}

	hub := events.NewHub(events.HubConfig{Logger: logger.Named("hub")}, hubSinks...)

	artifactStore, err := buildArtifactStore(ctx, cfg.Artifacts)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	var renderer crawl.Renderer
	if cfg.Crawl.RenderEnabled {
		chromeRenderer, err := crawl.NewChromeRenderer(crawl.RendererConfig{
			MaxParallel:       cfg.Crawl.RenderMaxParallel,
			UserAgent:         cfg.Crawl.UserAgent,
			NavigationTimeout: time.Duration(cfg.Crawl.RenderNavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed, rendering disabled", zap.Error(err))
		} else {
			renderer = chromeRenderer
		}
	}

	clk := system.New()
	crawler := crawl.New(crawl.Config{
		UserAgent: cfg.Crawl.UserAgent,
		MaxPages:  cfg.Crawl.MaxPages,
		MaxDepth:  cfg.Crawl.MaxDepth,
		Timeout:   time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
	}, sha256.New(), renderer, logger.Named("crawl"))

	factory := func(orchestrator.Config) (orchestrator.Collaborators, error) {
		collab := orchestrator.Collaborators{
			Crawler:   crawler,
			Audit:     audit.New(audit.Config{}, clk),
			AutoFix:   autofix.New(),
			Artifacts: artifactStore,
		}
		researchClient, err := research.New(research.Config{
			BaseURL: cfg.Research.BaseURL,
			APIKey:  cfg.Research.APIKey,
			Region:  cfg.Research.Region,
			Timeout: time.Duration(cfg.Research.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return orchestrator.Collaborators{}, fmt.Errorf("research client: %w", err)
		}
		collab.Keywords = researchClient
		collab.Serp = researchClient

		contentClient, err := content.New(content.Config{
			BaseURL: cfg.Content.BaseURL,
			APIKey:  cfg.Content.APIKey,
			Timeout: time.Duration(cfg.Content.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return orchestrator.Collaborators{}, fmt.Errorf("content client: %w", err)
		}
		collab.Content = contentClient

		// Publishing stays optional; sites without WordPress credentials
		// run with the publisher disconnected.
		if cfg.WordPress.BaseURL != "" {
			publisher, err := wordpress.New(wordpress.Config{
				BaseURL:     cfg.WordPress.BaseURL,
				Username:    cfg.WordPress.Username,
				AppPassword: cfg.WordPress.AppPassword,
				Timeout:     time.Duration(cfg.WordPress.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return orchestrator.Collaborators{}, fmt.Errorf("wordpress publisher: %w", err)
			}
			collab.Publisher = publisher
		}
		return collab, nil
	}

	registry := orchestrator.NewRegistry(factory, uuid.New(), clk, hub, logger.Named("orchestrator"))

	apiServer := api.NewServer(ctx, registry, memSink, metrics.Handler(promReg), httpMetrics, api.Config{
		APIKeyEnabled:  cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		StopTimeout:    time.Duration(cfg.Server.StopTimeoutSeconds) * time.Second,
		SiteDefaults: api.SiteDefaults{
			MaxConcurrentTasks: cfg.Orchestrator.MaxConcurrentTasks,
			TickInterval:       cfg.TickInterval(),
		},
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	registry.StopAll(shutdownCtx)
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("event hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildArtifactStore(ctx context.Context, cfg config.ArtifactsConfig) (orchestrator.ArtifactStore, error) {
	switch cfg.Backend {
	case "local":
		return artifacts.NewLocal(artifacts.LocalConfig{BaseDir: cfg.BaseDir})
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return artifacts.NewGCS(client, artifacts.GCSConfig{Bucket: cfg.GCSBucket})
	default:
		return artifacts.NewMemory(), nil
	}
}
