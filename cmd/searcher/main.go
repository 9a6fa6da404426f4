package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/multiindex"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/multiindex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "shard_source", cfg.Merge.ShardSource)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var source reload.PathSource
	switch cfg.Merge.ShardSource {
	case config.ShardSourcePostgres:
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to shard catalog", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		cat := catalog.New(pg)
		if err := cat.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare shard catalog", "error", err)
			os.Exit(1)
		}
		checker.Register("catalog", health.PingCheck(pg.Ping))
		source = cat
	default:
		paths := cfg.Merge.ShardPaths
		if len(paths) == 0 {
			paths, err = indexer.ListSegments(cfg.Indexer.DataDir)
			if err != nil {
				slog.Error("failed to list shard segments", "error", err)
				os.Exit(1)
			}
		}
		source = reload.StaticPaths(paths)
	}

	holder := reload.New(source, multiindex.Options{
		BlocksEnabled:      cfg.Merge.BlocksEnabled,
		FieldsEnabled:      cfg.Merge.FieldsEnabled,
		StrictCapabilities: cfg.Merge.StrictCapabilities,
	}, cfg.Merge.ReloadGracePeriod, m)
	defer holder.Close()
	if err := holder.Reload(ctx); err != nil {
		slog.Error("failed to build merged index", "error", err)
		os.Exit(1)
	}
	checker.Register("merged_index", health.ReadyCheck(holder.Ready, "merged index not loaded"))

	if cfg.Kafka.Enabled {
		host, err := os.Hostname()
		if err != nil {
			host = uuid.NewString()
		}
		group := cfg.Kafka.ConsumerGroup + "-" + host
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ShardsChanged, holder.HandleMessage,
			kafka.WithGroupID(group))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("shard change consumer error", "error", err)
			}
		}()
		slog.Info("listening for shard changes", "topic", cfg.Kafka.Topics.ShardsChanged, "group", group)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	params := ranker.DefaultParams()
	if cfg.Search.BM25K1 > 0 {
		params.K1 = cfg.Search.BM25K1
	}
	if cfg.Search.BM25B > 0 {
		params.B = cfg.Search.BM25B
	}
	h := handler.New(handler.Config{
		Executor:     executor.New(holder, params),
		Source:       holder,
		Tokenizer:    tokenizer.New(indexer.Options(cfg.Indexer).Pipeline),
		Cache:        queryCache,
		Metrics:      m,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("POST /api/v1/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := holder.Reload(r.Context()); err != nil {
			slog.Error("manual reload failed", "error", err)
			http.Error(w, `{"error":"reload failed"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"generation":%d}`, holder.Generation())
	})
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "generation", holder.Generation())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
