package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"PaperQuant/pkg/logger"
)

// ProducerConfig holds producer configuration.
type ProducerConfig struct {
	Brokers      []string
	Compression  string
	Acks         int // -1 all replicas, 0 none, 1 leader
	Attempts     int
	Batch        BatchConfig
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// HashByKey keeps every key on one partition, and with it the key's order.
	HashByKey  bool
	Registerer prometheus.Registerer
}

// BatchConfig bounds a writer batch by count, bytes and linger time.
type BatchConfig struct {
	Size   int
	Bytes  int
	Linger time.Duration
}

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Compression:  "snappy",
		Acks:         -1,
		Attempts:     3,
		Batch:        BatchConfig{Size: 100, Bytes: 1 << 20, Linger: 50 * time.Millisecond},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		HashByKey:    true,
	}
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression accepts none, gzip, snappy, lz4 or zstd.
func WithCompression(name string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = name }
}

// WithDelivery sets the acks level and how many times the writer tries a batch.
func WithDelivery(acks, attempts int) ProducerOption {
	return func(c *ProducerConfig) { c.Acks, c.Attempts = acks, attempts }
}

func WithBatching(b BatchConfig) ProducerOption {
	return func(c *ProducerConfig) { c.Batch = b }
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout, c.ReadTimeout = write, read }
}

func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

// WithProducerRegisterer registers producer metrics on reg instead of the default registry.
func WithProducerRegisterer(reg prometheus.Registerer) ProducerOption {
	return func(c *ProducerConfig) { c.Registerer = reg }
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
	Logger     *logger.Logger
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerGroupID sets consumer group ID.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}
