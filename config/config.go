package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"clover" validate:"required"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3004" validate:"gt=0,lte=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"0"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"gte=1"`

	// Entity store: "postgres" or "memory"
	StoreBackend             string        `env:"STORE_BACKEND" env-default:"postgres" validate:"oneof=postgres memory"`
	StoreBreakerMaxRequests  uint32        `env:"STORE_BREAKER_MAX_REQUESTS" env-default:"1"`
	StoreBreakerInterval     time.Duration `env:"STORE_BREAKER_INTERVAL" env-default:"1m"`
	StoreBreakerTimeout      time.Duration `env:"STORE_BREAKER_TIMEOUT" env-default:"30s"`
	StoreBreakerMinRequests  uint32        `env:"STORE_BREAKER_MIN_REQUESTS" env-default:"5"`
	StoreBreakerFailureRatio float64       `env:"STORE_BREAKER_FAILURE_RATIO" env-default:"0.6" validate:"gt=0,lte=1"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:"postgres"`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"gte=0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (merge history and the cross-replica session lock)
	RedisEnabled       bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost          string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort          int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword      string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB            int    `env:"REDIS_DB" env-default:"0"`
	RedisLockKeyPrefix string `env:"REDIS_LOCK_KEY_PREFIX" env-default:"clover:lock:"`
	RedisHistoryKey    string `env:"REDIS_HISTORY_KEY" env-default:"clover:merge-history"`

	// Graph Database (Memgraph)
	GraphDBEnabled  bool   `env:"GRAPH_DB_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"resolution-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Tracing
	TraceExporter string        `env:"TRACE_EXPORTER" env-default:"none" validate:"oneof=none otlp"`
	TraceEndpoint string        `env:"TRACE_ENDPOINT" env-default:"localhost:4317"`
	TraceProtocol string        `env:"TRACE_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	TraceInsecure bool          `env:"TRACE_INSECURE" env-default:"true"`
	TraceTimeout  time.Duration `env:"TRACE_TIMEOUT" env-default:"10s"`

	// Resolution
	MaxBlockSize             int           `env:"MAX_BLOCK_SIZE" env-default:"1000"`
	MinConfidence            float64       `env:"MIN_CONFIDENCE" env-default:"0.5"`
	AutoMergeThreshold       float64       `env:"AUTO_MERGE_THRESHOLD" env-default:"0.9"`
	ManualReviewThreshold    float64       `env:"MANUAL_REVIEW_THRESHOLD" env-default:"0.7"`
	EnableTransitiveMatching bool          `env:"ENABLE_TRANSITIVE_MATCHING" env-default:"true"`
	FetchLimit               int           `env:"FETCH_LIMIT" env-default:"10000"`
	FindDuplicatesLimit      int           `env:"FIND_DUPLICATES_LIMIT" env-default:"1000"`
	CompareWorkers           int           `env:"COMPARE_WORKERS" env-default:"4"`
	ConfidenceBoost          float64       `env:"CONFIDENCE_BOOST" env-default:"0.1"`
	ConflictPolicy           string        `env:"CONFLICT_POLICY" env-default:"survivor"`
	DeleteRetryAttempts      int           `env:"DELETE_RETRY_ATTEMPTS" env-default:"3"`
	DeleteRetryDelay         time.Duration `env:"DELETE_RETRY_DELAY" env-default:"100ms"`
	SessionTimeout           time.Duration `env:"SESSION_TIMEOUT" env-default:"30m"`
	BlockingKeysFile         string        `env:"BLOCKING_KEYS_FILE" env-default:""`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file, then the environment, and validates the result.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// BlockingFile is the YAML layout of BLOCKING_KEYS_FILE
type BlockingFile struct {
	BlockingKeys []models.BlockingKey `yaml:"blocking_keys"`
	FieldWeights map[string]float64   `yaml:"field_weights"`
}

// LoadBlockingFile reads blocking keys and field weights from YAML
func LoadBlockingFile(path string) (*BlockingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocking file: %w", err)
	}

	var file BlockingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse blocking file %s: %w", path, err)
	}
	return &file, nil
}

// Resolution derives the engine configuration. Keys and weights from BLOCKING_KEYS_FILE
// replace the built-in defaults when present.
func (c *Config) Resolution() (resolution.Config, error) {
	rc := resolution.DefaultConfig()
	rc.MaxBlockSize = c.MaxBlockSize
	rc.MinConfidence = c.MinConfidence
	rc.AutoMergeThreshold = c.AutoMergeThreshold
	rc.ManualReviewThreshold = c.ManualReviewThreshold
	rc.EnableTransitiveMatching = c.EnableTransitiveMatching
	rc.FetchLimit = c.FetchLimit
	rc.FindDuplicatesLimit = c.FindDuplicatesLimit
	rc.CompareWorkers = c.CompareWorkers
	rc.ConfidenceBoost = c.ConfidenceBoost
	rc.ConflictPolicy = models.ConflictPolicy(c.ConflictPolicy)
	rc.DeleteRetryAttempts = c.DeleteRetryAttempts
	rc.DeleteRetryDelay = c.DeleteRetryDelay
	rc.SessionTimeout = c.SessionTimeout

	if c.BlockingKeysFile != "" {
		file, err := LoadBlockingFile(c.BlockingKeysFile)
		if err != nil {
			return resolution.Config{}, err
		}
		if len(file.BlockingKeys) > 0 {
			rc.BlockingKeys = file.BlockingKeys
		}
		if len(file.FieldWeights) > 0 {
			rc.FieldWeights = file.FieldWeights
		}
	}

	if err := rc.Validate(); err != nil {
		return resolution.Config{}, err
	}
	return rc, nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{Host: c.RedisHost, Port: c.RedisPort, Password: c.RedisPassword, DB: c.RedisDB}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{Host: c.GraphDBHost, Port: c.GraphDBPort, Username: c.GraphDBUser, Password: c.GraphDBPassword}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Exporter:    c.TraceExporter,
		Endpoint:    c.TraceEndpoint,
		Protocol:    c.TraceProtocol,
		Insecure:    c.TraceInsecure,
		Timeout:     c.TraceTimeout,
	}
}

func (c *Config) Breaker() store.BreakerConfig {
	return store.BreakerConfig{
		Name:             "entity-store",
		MaxRequests:      c.StoreBreakerMaxRequests,
		Interval:         c.StoreBreakerInterval,
		Timeout:          c.StoreBreakerTimeout,
		MinRequests:      c.StoreBreakerMinRequests,
		ReadyToTripRatio: c.StoreBreakerFailureRatio,
	}
}
