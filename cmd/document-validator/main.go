package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Josepassinato/camada-osprey-core-sub001/internal/analyzers"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/cache"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/config"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/events"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/httpapi"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/llm"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/policy"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/report"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/store"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/telemetry"
	"github.com/Josepassinato/camada-osprey-core-sub001/internal/validation"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	addr := flag.String("addr", cfg.Addr, "listen address (overrides ADDR)")
	policyDir := flag.String("policies", cfg.PolicyDir, "directory of policy YAML files (overrides POLICY_DIR)")
	dsn := flag.String("db", cfg.DBDSN, "result database DSN (overrides DB_DSN)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "document-validator", version)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	policies, err := policy.LoadDir(*policyDir)
	if err != nil {
		log.Fatalf("failed to load policies from %s: %v", *policyDir, err)
	}
	logger.Info("policies loaded", "dir", *policyDir, "doc_types", policies.DocTypes())

	if cfg.DBDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(*dsn), 0o755); err != nil {
			log.Fatalf("failed to create database directory: %v", err)
		}
	}
	results, err := store.Open(cfg.DBDriver, *dsn)
	if err != nil {
		log.Fatalf("failed to open result store (%s): %v", cfg.DBDriver, err)
	}
	defer results.Close()

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	classifier, err := buildClassifier(ctx, cfg, policies, logger)
	if err != nil {
		log.Fatalf("failed to set up classifier: %v", err)
	}

	engine := validation.NewEngine(policies, analyzers.NewCollaborators(policies, classifier),
		validation.WithLogger(logger),
		validation.WithBatchConcurrency(cfg.BatchConcurrency),
	)

	handler := httpapi.NewServer(httpapi.Deps{
		Validator: engine,
		Policies:  policies,
		Store:     results,
		Publisher: publisher,
		PDF:       report.NewChromiumPDFRenderer(),
		Extract: func(ctx context.Context, filename string, content []byte) (string, error) {
			out, err := analyzers.ExtractTextFromBytes(ctx, filename, content)
			return out.Text, err
		},
		Logger: logger,
	})

	srv := &http.Server{Addr: *addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("document-validator listening", "addr", *addr, "db_driver", cfg.DBDriver, "llm", cfg.LLMProvider)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// buildClassifier layers keyword classification, an optional LLM fallback
// and an optional Redis cache.
func buildClassifier(ctx context.Context, cfg config.Config, policies *policy.Store, logger *slog.Logger) (validation.Classifier, error) {
	var classifier validation.Classifier = analyzers.NewKeywordClassifier(policies)

	var caller llm.Caller
	switch cfg.LLMProvider {
	case config.LLMAnthropic:
		c, err := llm.NewAnthropicCaller(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		caller = c
	case config.LLMGemini:
		c, err := llm.NewGeminiCaller(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		caller = c
	}
	if caller != nil {
		secondary := analyzers.NewLLMClassifier(llm.NewExecutor(caller, logger), policies.DocTypes())
		classifier = analyzers.NewFallbackClassifier(classifier, secondary, cfg.LLMThreshold, logger)
	}

	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DefaultTTL: cfg.CacheTTL,
		})
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable; classification cache will miss until it recovers", "addr", cfg.RedisAddr, "error", err)
		}
		classifier = analyzers.NewCachedClassifier(classifier, rc, cfg.CacheTTL, logger)
	}
	return classifier, nil
}
