// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Merge, Search, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Merge    MergeConfig    `yaml:"merge"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	ShardsChanged  string `yaml:"shardsChanged"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls how shards are built: where segments go, how many
// documents a shard holds and what each shard records.
type IndexerConfig struct {
	DataDir         string         `yaml:"dataDir"`
	MaxDocsPerShard int            `yaml:"maxDocsPerShard"`
	Blocks          bool           `yaml:"blocks"`
	Fields          []string       `yaml:"fields"`
	MetaKeys        []string       `yaml:"metaKeys"`
	ReverseMetaKeys []string       `yaml:"reverseMetaKeys"`
	Pipeline        PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig selects the term pipeline stages. It must match between
// the indexer and the searcher.
type PipelineConfig struct {
	StopWords bool `yaml:"stopWords"`
	Stem      bool `yaml:"stem"`
	MinLength int  `yaml:"minLength"`
}

// Shard sources for MergeConfig.ShardSource.
const (
	ShardSourceStatic   = "static"
	ShardSourcePostgres = "postgres"
)

// MergeConfig controls which shards the searcher merges and which posting
// data the merged view exposes.
type MergeConfig struct {
	ShardSource        string        `yaml:"shardSource"`
	ShardPaths         []string      `yaml:"shardPaths"`
	BlocksEnabled      bool          `yaml:"blocksEnabled"`
	FieldsEnabled      bool          `yaml:"fieldsEnabled"`
	StrictCapabilities bool          `yaml:"strictCapabilities"`
	ReloadGracePeriod  time.Duration `yaml:"reloadGracePeriod"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults   int     `yaml:"maxResults"`
	DefaultLimit int     `yaml:"defaultLimit"`
	BM25K1       float64 `yaml:"bm25K1"`
	BM25B        float64 `yaml:"bm25B"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Merge.ShardSource {
	case ShardSourceStatic:
		for i, p := range c.Merge.ShardPaths {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, fmt.Errorf("merge.shardPaths[%d] is empty", i))
			}
		}
	case ShardSourcePostgres:
	default:
		errs = append(errs, fmt.Errorf("merge.shardSource %q must be %q or %q",
			c.Merge.ShardSource, ShardSourceStatic, ShardSourcePostgres))
	}
	if c.Merge.StrictCapabilities && !c.Merge.BlocksEnabled {
		errs = append(errs, errors.New("merge.strictCapabilities only applies with merge.blocksEnabled"))
	}
	if c.Merge.ReloadGracePeriod < c.Server.RequestTimeout {
		errs = append(errs, fmt.Errorf("merge.reloadGracePeriod %v must be at least server.requestTimeout %v",
			c.Merge.ReloadGracePeriod, c.Server.RequestTimeout))
	}
	if c.Indexer.MaxDocsPerShard <= 0 {
		errs = append(errs, errors.New("indexer.maxDocsPerShard must be positive"))
	}
	for _, key := range c.Indexer.ReverseMetaKeys {
		if !contains(c.Indexer.MetaKeys, key) {
			errs = append(errs, fmt.Errorf("indexer.reverseMetaKeys entry %q is not in indexer.metaKeys", key))
		}
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		errs = append(errs, fmt.Errorf("search.defaultLimit %d must be in [1, %d]",
			c.Search.DefaultLimit, c.Search.MaxResults))
	}
	return errors.Join(errs...)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "multiindex",
			User:            "multiindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "multiindex-searcher",
			Topics: KafkaTopics{
				DocumentIngest: "documents.ingest",
				ShardsChanged:  "shards.changed",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:         "data/shards",
			MaxDocsPerShard: 10000,
			MetaKeys:        []string{"filename"},
			ReverseMetaKeys: []string{"filename"},
			Pipeline: PipelineConfig{
				StopWords: true,
				Stem:      true,
				MinLength: 2,
			},
		},
		Merge: MergeConfig{
			ShardSource:       ShardSourceStatic,
			ReloadGracePeriod: 30 * time.Second,
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
			BM25K1:       1.2,
			BM25B:        0.75,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_MERGE_SHARD_SOURCE"); v != "" {
		cfg.Merge.ShardSource = v
	}
	if v := os.Getenv("SP_MERGE_SHARD_PATHS"); v != "" {
		cfg.Merge.ShardPaths = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_MERGE_BLOCKS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Merge.BlocksEnabled = enabled
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
