package repository

import (
	"context"
	"fmt"

	"PaperQuant/internal/domain/models"
	domrepo "PaperQuant/internal/domain/repository"
	pkgkafka "PaperQuant/pkg/kafka"
)

// KafkaTickPublisher implements TickPublisher for Kafka. Ticks are keyed by
// symbol so each symbol stays on one partition and keeps its order.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates Kafka publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), t)
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: t}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared and closed by its owner.
func (p *KafkaTickPublisher) Close() error { return nil }

// KafkaLedger streams closed trades to a topic.
type KafkaLedger struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaLedger(producer *pkgkafka.Producer, topic string) *KafkaLedger {
	return &KafkaLedger{producer: producer, topic: topic}
}

func (l *KafkaLedger) RecordTrade(ctx context.Context, t models.Trade) error {
	if err := l.producer.Publish(ctx, l.topic, []byte(t.Symbol), t); err != nil {
		return fmt.Errorf("publish trade %s: %w", t.ID, err)
	}
	return nil
}

// Close is a no-op; the producer is shared and closed by its owner.
func (l *KafkaLedger) Close() error { return nil }

var (
	_ domrepo.TickPublisher = (*KafkaTickPublisher)(nil)
	_ domrepo.TradeLedger   = (*KafkaLedger)(nil)
)
