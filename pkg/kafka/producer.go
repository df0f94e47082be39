package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one record to publish. Value is sent as-is when it is []byte or
// string and JSON encoded otherwise.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer publishes synchronously: PublishBatch returns once the brokers
// acknowledged the batch at the configured acks level.
type Producer struct {
	writer      Writer
	compression string
}

// NewProducer builds a producer over a kafka.Writer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka producer: no brokers")
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		Compression:  codec,
		RequiredAcks: kafka.RequiredAcks(cfg.Acks),
		MaxAttempts:  cfg.Attempts,
		BatchSize:    cfg.Batch.Size,
		BatchBytes:   int64(cfg.Batch.Bytes),
		BatchTimeout: cfg.Batch.Linger,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}
	registerProducerMetrics(cfg.Registerer)
	return &Producer{writer: w, compression: cfg.Compression}, nil
}

// NewProducerWithWriter wraps an existing writer. Tests use it with a fake.
func NewProducerWithWriter(w Writer) *Producer {
	registerProducerMetrics(nil)
	return &Producer{writer: w, compression: "none"}
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in order. Nothing is written when any
// value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, topic string, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now()
	out := make([]kafka.Message, len(batch))
	size := 0
	for i, m := range batch {
		b, err := encode(m.Value)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: b, Time: now}
		size += len(b)
	}

	err := p.writer.WriteMessages(ctx, out...)
	producerStats.observe(topic, p.compression, len(out), size, time.Since(now), err)
	if err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(out), topic, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encode(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", name)
}

type producerMetrics struct {
	once     sync.Once
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var producerStats producerMetrics

func registerProducerMetrics(reg prometheus.Registerer) {
	producerStats.once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		f := promauto.With(reg)
		producerStats.messages = f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperquant_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "result"})
		producerStats.bytes = f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperquant_kafka_producer_bytes_total",
			Help: "Payload bytes published to Kafka before compression",
		}, []string{"topic", "compression"})
		producerStats.latency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paperquant_kafka_producer_publish_seconds",
			Help:    "Time to write one batch",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (m *producerMetrics) observe(topic, compression string, count, size int, took time.Duration, err error) {
	if m.messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Add(float64(count))
	m.bytes.WithLabelValues(topic, compression).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
