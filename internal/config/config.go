package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// SecureWatch Ingest Core - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Buffer       BufferConfig       `yaml:"buffer"`
	Disk         DiskConfig         `yaml:"disk"`
	Codec        CodecConfig        `yaml:"codec"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	BatchSize    BatchSizeConfig    `yaml:"batch_size"`
	FlowControl  FlowControlConfig  `yaml:"flow_control"`
	Parser       ParserConfig       `yaml:"parser"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Stream       StreamConfig       `yaml:"stream"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// BufferConfig sizes the in-memory ring buffer and its durability policy.
type BufferConfig struct {
	RingCapacity            int `yaml:"ring_capacity"`
	ForcedMirrorMaxPriority int `yaml:"forced_mirror_max_priority"`
}

// DiskConfig sizes the overflow disk queue.
type DiskConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
	Checksum bool   `yaml:"checksum"`
}

// CodecConfig tunes zstd compression of spilled records.
type CodecConfig struct {
	Level            int `yaml:"level"`
	PassthroughBelow int `yaml:"passthrough_below_bytes"`
}

// BreakerConfig tunes the circuit breaker guarding downstream dispatch.
type BreakerConfig struct {
	MaxRequests int `yaml:"max_half_open_requests"`
	IntervalSec int `yaml:"interval_sec"`
	TimeoutSec  int `yaml:"timeout_sec"`
}

// BackpressureConfig tunes the flow monitor.
type BackpressureConfig struct {
	WindowSize         int     `yaml:"window_size"`
	QueueHighWater     float64 `yaml:"queue_high_water"`
	RecoveryFactor     float64 `yaml:"recovery_factor"`
	LatencyHighWaterMS int     `yaml:"latency_high_water_ms"`
	ErrorRateHighWater float64 `yaml:"error_rate_high_water"`
	Adaptive           bool    `yaml:"adaptive"`
}

// BatchSizeConfig tunes the adaptive batch sizer.
type BatchSizeConfig struct {
	InitialBatchSize       int     `yaml:"initial_batch_size"`
	MinBatchSize           int     `yaml:"min_batch_size"`
	MaxBatchSize           int     `yaml:"max_batch_size"`
	TargetLatencyMS        int     `yaml:"target_latency_ms"`
	AdjustmentFactor       float64 `yaml:"adjustment_factor"`
	ThroughputTargetPerSec int     `yaml:"throughput_target_per_sec"`
	Disabled               bool    `yaml:"disabled"`
}

// FlowControlConfig tunes the admission gate.
type FlowControlConfig struct {
	MaxEventsPerSecond int `yaml:"max_events_per_second"`
	BurstSize          int `yaml:"burst_size"`
	SlidingWindowMS    int `yaml:"sliding_window_ms"`
}

// ParserConfig controls parser registry behavior.
type ParserConfig struct {
	ValidateOnRegister bool `yaml:"validate_on_register"`
}

// DispatchConfig controls dispatch concurrency.
type DispatchConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ItemTimeoutMS int `yaml:"item_timeout_ms"`
}

// EnrichmentConfig controls the rule engine and lookup caching.
type EnrichmentConfig struct {
	RulesPath         string `yaml:"rules_path"`
	LookupCacheTTLSec int    `yaml:"lookup_cache_ttl_sec"`
}

// RedisConfig backs the enrichment lookup cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// PostgresConfig backs the optional durable audit sink.
type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Enabled bool   `yaml:"enabled"`
}

// StreamConfig controls the live normalized-event websocket tail.
type StreamConfig struct {
	MaxSubscribers int `yaml:"max_subscribers"`
	BufferSize     int `yaml:"buffer_size"`
}

// PubSubConfig configures the optional Pub/Sub-backed lifecycle event bus;
// cmd/ingestd builds an events.PubSubEventBus from it when Enabled is set.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from YAML file
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("INGEST_ENV", c.Server.Env)
	c.Server.Interface = getEnv("INGEST_INTERFACE", c.Server.Interface)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	// Buffer / durability
	if v := getEnvInt("BUFFER_RING_CAPACITY", 0); v > 0 {
		c.Buffer.RingCapacity = v
	}
	if v := getEnvInt("BUFFER_FORCED_MIRROR_MAX_PRIORITY", -1); v >= 0 {
		c.Buffer.ForcedMirrorMaxPriority = v
	}

	// Disk overflow
	c.Disk.Path = getEnv("DISK_QUEUE_PATH", c.Disk.Path)
	if v := getEnvInt64("DISK_QUEUE_MAX_BYTES", 0); v > 0 {
		c.Disk.MaxBytes = v
	}
	c.Disk.Checksum = getEnvBool("DISK_QUEUE_CHECKSUM", c.Disk.Checksum)

	// Codec
	if v := getEnvInt("CODEC_LEVEL", 0); v > 0 {
		c.Codec.Level = v
	}

	// Flow control
	if v := getEnvInt("FLOWCONTROL_MAX_EVENTS_PER_SEC", 0); v > 0 {
		c.FlowControl.MaxEventsPerSecond = v
	}
	if v := getEnvInt("FLOWCONTROL_BURST_SIZE", 0); v > 0 {
		c.FlowControl.BurstSize = v
	}

	// Redis
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)

	// Postgres audit sink
	c.Postgres.DSN = getEnv("POSTGRES_DSN", c.Postgres.DSN)
	c.Postgres.Enabled = getEnvBool("POSTGRES_ENABLED", c.Postgres.Enabled)

	// Pub/Sub lifecycle event bus
	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
	}
	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)

	// Apply defaults for zero values
	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}

	if c.Buffer.RingCapacity == 0 {
		c.Buffer.RingCapacity = 10000
	}
	if c.Buffer.ForcedMirrorMaxPriority == 0 {
		c.Buffer.ForcedMirrorMaxPriority = 2
	}

	if c.Disk.Path == "" {
		c.Disk.Path = "./data/overflow.queue"
	}
	if c.Disk.MaxBytes == 0 {
		c.Disk.MaxBytes = 10 << 30 // 10 GiB
	}

	if c.Codec.Level == 0 {
		c.Codec.Level = 3
	}
	if c.Codec.PassthroughBelow == 0 {
		c.Codec.PassthroughBelow = 256
	}

	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 5
	}
	if c.Breaker.IntervalSec == 0 {
		c.Breaker.IntervalSec = 60
	}
	if c.Breaker.TimeoutSec == 0 {
		c.Breaker.TimeoutSec = 30
	}

	if c.Backpressure.WindowSize == 0 {
		c.Backpressure.WindowSize = 50
	}
	if c.Backpressure.QueueHighWater == 0 {
		c.Backpressure.QueueHighWater = 0.85
	}
	if c.Backpressure.RecoveryFactor == 0 {
		c.Backpressure.RecoveryFactor = 0.7
	}
	if c.Backpressure.LatencyHighWaterMS == 0 {
		c.Backpressure.LatencyHighWaterMS = 500
	}
	if c.Backpressure.ErrorRateHighWater == 0 {
		c.Backpressure.ErrorRateHighWater = 0.1
	}

	if c.BatchSize.InitialBatchSize == 0 {
		c.BatchSize.InitialBatchSize = 100
	}
	if c.BatchSize.MinBatchSize == 0 {
		c.BatchSize.MinBatchSize = 10
	}
	if c.BatchSize.MaxBatchSize == 0 {
		c.BatchSize.MaxBatchSize = 1000
	}
	if c.BatchSize.TargetLatencyMS == 0 {
		c.BatchSize.TargetLatencyMS = 50
	}
	if c.BatchSize.AdjustmentFactor == 0 {
		c.BatchSize.AdjustmentFactor = 0.2
	}

	if c.FlowControl.MaxEventsPerSecond == 0 {
		c.FlowControl.MaxEventsPerSecond = 10000
	}
	if c.FlowControl.BurstSize == 0 {
		c.FlowControl.BurstSize = 2000
	}
	if c.FlowControl.SlidingWindowMS == 0 {
		c.FlowControl.SlidingWindowMS = 1000
	}

	if c.Dispatch.ChunkSize == 0 {
		c.Dispatch.ChunkSize = 100
	}
	if c.Dispatch.ItemTimeoutMS == 0 {
		c.Dispatch.ItemTimeoutMS = 2000
	}

	if c.Enrichment.LookupCacheTTLSec == 0 {
		c.Enrichment.LookupCacheTTLSec = 300
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Stream.MaxSubscribers == 0 {
		c.Stream.MaxSubscribers = 100
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = 256
	}

	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "securewatch-events"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
