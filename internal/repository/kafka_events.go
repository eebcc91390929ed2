package repository

import (
	"context"

	"Qless/internal/domain/models"
	"Qless/internal/domain/repository"
	pkgkafka "Qless/pkg/kafka"
)

// KafkaEventPublisher writes job events to a Kafka topic, keyed by jid so all
// events of one job land on the same partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
}

// NewKafkaEventPublisher creates a Kafka event sink.
func NewKafkaEventPublisher(producer *pkgkafka.Producer) repository.EventSink {
	return &KafkaEventPublisher{producer: producer}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.JobEvent) error {
	return p.producer.Publish(ctx, []byte(ev.JID), ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
