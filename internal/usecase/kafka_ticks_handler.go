package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
	pkgkafka "PaperQuant/pkg/kafka"
	"PaperQuant/pkg/logger"
)

// KafkaTicksHandler decodes ticks relayed onto Kafka and feeds them to a sink.
type KafkaTicksHandler struct {
	topic   string
	sink    TickSink
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, sink TickSink, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle expects the JSON form of models.Tick.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(t.Timestamp).Seconds())
	if err := h.sink.Process(ctx, t); err != nil {
		h.metrics.RecordError("consumer_sink")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

// TickConsumer is the part of pkg/kafka.Consumer the feed drives.
type TickConsumer interface {
	RegisterHandler(pkgkafka.MessageHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// KafkaFeed consumes relayed ticks instead of dialing the exchange.
type KafkaFeed struct {
	consumer TickConsumer
	topic    string
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewKafkaFeed(consumer TickConsumer, topic string, metrics domrepo.Metrics, log *logger.Logger) *KafkaFeed {
	return &KafkaFeed{consumer: consumer, topic: topic, metrics: metrics, log: log}
}

func (f *KafkaFeed) Run(ctx context.Context, sink TickSink) error {
	f.consumer.RegisterHandler(NewKafkaTicksHandler(f.topic, sink, f.metrics))
	if err := f.consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	f.log.Info("consuming ticks from kafka", logger.String("topic", f.topic))
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.consumer.Stop(stopCtx); err != nil {
		f.log.Warn("kafka consumer stop", logger.Error(err))
	}
	return ctx.Err()
}
