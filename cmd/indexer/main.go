package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "", "JSON-lines document file; \"-\" reads stdin, empty consumes kafka")
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
	slog.Info("starting indexer", "data_dir", cfg.Indexer.DataDir, "max_docs_per_shard", cfg.Indexer.MaxDocsPerShard)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder, err := indexer.NewBuilder(cfg.Indexer)
	if err != nil {
		slog.Error("failed to create shard builder", "error", err)
		os.Exit(1)
	}

	var cat *catalog.Catalog
	if cfg.Merge.ShardSource == config.ShardSourcePostgres {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to shard catalog", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		cat = catalog.New(pg)
		if err := cat.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare shard catalog", "error", err)
			os.Exit(1)
		}
	}
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ShardsChanged)
		defer producer.Close()
	}

	// Announcing uses its own deadline so the final flush after a signal is
	// still registered.
	builder.OnFlush(func(path string, docs int) error {
		actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cat != nil {
			if _, err := cat.Register(actx, path, docs); err != nil {
				return err
			}
		}
		if producer == nil {
			return nil
		}
		event := catalog.ShardsChanged{Reason: "shard flushed", At: time.Now().UTC()}
		if cat == nil {
			paths, err := indexer.ListSegments(cfg.Indexer.DataDir)
			if err != nil {
				return err
			}
			event.Paths = paths
		}
		return producer.Publish(actx, path, event)
	})

	switch *input {
	case "":
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(builder), kafka.FromFirstOffset())
		slog.Info("indexer consuming from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	default:
		var r io.Reader = os.Stdin
		if *input != "-" {
			f, err := os.Open(*input)
			if err != nil {
				slog.Error("failed to open input", "path", *input, "error", err)
				os.Exit(1)
			}
			defer f.Close()
			r = f
		}
		n, err := consumer.ReadJSONLines(ctx, r, builder)
		if err != nil {
			slog.Error("reading documents failed", "added", n, "error", err)
		}
	}

	slog.Info("flushing pending documents before shutdown")
	if _, err := builder.Flush(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer stopped", "documents", builder.TotalDocs(), "shards", len(builder.Shards()))
}
