package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/services/decision"
	"PaperQuant/internal/services/labeling"
	"PaperQuant/internal/services/risk"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/util"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         LogConfig          `yaml:"log"`
	Market      MarketConfig       `yaml:"market"`
	Labeling    labeling.Params    `yaml:"labeling"`
	Training    TrainingConfig     `yaml:"training"`
	Decision    decision.Config    `yaml:"decision"`
	Risk        risk.Config        `yaml:"risk"`
	Paper       PaperConfig        `yaml:"paper"`
	Feed        FeedConfig         `yaml:"feed"`
	Live        usecase.LiveConfig `yaml:"live"`
	Kafka       KafkaConfig        `yaml:"kafka"`
	ClickHouse  ClickHouseConfig   `yaml:"clickhouse"`
	Redis       RedisConfig        `yaml:"redis"`
	Server      ServerConfig       `yaml:"server"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type MarketConfig struct {
	Symbols       []string       `yaml:"symbols" validate:"min=1,dive,required"`
	Interval      drepo.Interval `yaml:"interval" default:"1m"`
	LateTolerance time.Duration  `yaml:"late_tolerance" default:"2s" validate:"gte=0"`
}

type TrainingConfig struct {
	usecase.TrainerConfig `yaml:",inline"`
	scoring.TrainConfig   `yaml:",inline"`
}

type PaperConfig struct {
	FeeRate float64 `yaml:"fee_rate" default:"0.001" validate:"gte=0,lt=0.1"`
}

type FeedConfig struct {
	Source         string        `yaml:"source" default:"upbit" validate:"oneof=upbit kafka"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://api.upbit.com/websocket/v1" validate:"url"`
	RESTURL        string        `yaml:"rest_url" default:"https://api.upbit.com/v1" validate:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s" validate:"gt=0"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s" validate:"gt=0"`
	QueueSize      int           `yaml:"queue_size" default:"4096" validate:"gte=1"`
	RESTRPS        float64       `yaml:"rest_rps" default:"8" validate:"gt=0"`
	RESTTimeout    time.Duration `yaml:"rest_timeout" default:"10s" validate:"gt=0"`
}

type KafkaConfig struct {
	Brokers     []string       `yaml:"brokers"`
	TicksTopic  string         `yaml:"ticks_topic" default:"paperquant.ticks"`
	TradesTopic string         `yaml:"trades_topic"`
	Compression string         `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer    ProducerConfig `yaml:"producer"`
	Consumer    ConsumerConfig `yaml:"consumer"`
}

type ProducerConfig struct {
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576" validate:"gte=1"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
}

type ConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"paperquant"`
	RetryMax   int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database         string        `yaml:"database" default:"paperquant"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"paperquant"`
	Restore  bool          `yaml:"restore"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"15s"`
}

type ServerConfig struct {
	Disabled        bool          `yaml:"disabled"`
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"20" validate:"gte=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" default:"40" validate:"gte=1"`
}

type MetricsConfig struct {
	Disabled bool `yaml:"disabled"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithEnv is Load with environment overrides applied before defaults.
func LoadWithEnv(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, getenv)
}

func parse(b []byte, getenv func(string) string) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if getenv != nil {
		applyEnv(&c, getenv)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func applyEnv(c *Config, getenv func(string) string) {
	if v := getenv("PQ_SYMBOLS"); v != "" {
		c.Market.Symbols = util.SplitList(v)
	}
	if v := getenv("PQ_FEED_SOURCE"); v != "" {
		c.Feed.Source = v
	}
	if v := getenv("PQ_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
}

// Validate runs tag validation and the cross-field checks tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	if !drepo.IsValidInterval(c.Market.Interval) {
		errs = append(errs, fmt.Errorf("market.interval %q is not supported", c.Market.Interval))
	}
	if c.Decision.ExitThreshold > c.Decision.EntryThreshold {
		errs = append(errs, fmt.Errorf("decision.exit_threshold %v above entry_threshold %v",
			c.Decision.ExitThreshold, c.Decision.EntryThreshold))
	}
	if c.Training.Embargo < c.Labeling.MaxHolding {
		errs = append(errs, fmt.Errorf("training.embargo %d below labeling.max_holding %d",
			c.Training.Embargo, c.Labeling.MaxHolding))
	}
	if c.Feed.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("feed.source kafka requires kafka.brokers"))
	}
	if c.Kafka.TradesTopic != "" && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.trades_topic requires kafka.brokers"))
	}
	if c.Redis.Restore && !c.Redis.Enabled {
		errs = append(errs, errors.New("redis.restore requires redis.enabled"))
	}
	return errors.Join(errs...)
}

// IntervalDuration is the candle width.
func (c *Config) IntervalDuration() time.Duration { return c.Market.Interval.Duration() }
