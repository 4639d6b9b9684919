// Package events notifies downstream consumers (verifiers, pruners, mirrors)
// when a snapshot commits. The registry remains the source of truth; the
// event stream is advisory and a lost event is recovered by listing the
// registry.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// Publisher publishes snapshot lifecycle events.
type Publisher interface {
	// PublishSnapshotCommitted publishes one event for a committed snapshot.
	PublishSnapshotCommitted(ctx context.Context, metadata *types.SnapshotMetadata) error

	// Close flushes in-flight messages and releases resources. Safe to call
	// more than once.
	Close()
}

// snapshotCommittedEvent is the wire form of one commit notification.
type snapshotCommittedEvent struct {
	L1BatchNumber   uint64    `json:"l1BatchNumber"`
	MiniblockNumber uint64    `json:"miniblockNumber"`
	ChunkCount      int       `json:"chunkCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

func eventPayload(metadata *types.SnapshotMetadata) ([]byte, error) {
	return json.Marshal(snapshotCommittedEvent{
		L1BatchNumber:   metadata.L1BatchNumber,
		MiniblockNumber: metadata.MiniblockNumber,
		ChunkCount:      len(metadata.Files),
		CreatedAt:       metadata.CreatedAt,
	})
}

const flushTimeoutMs = 10000

// KafkaPublisher is a synchronous Kafka-backed Publisher.
//
// PublishSnapshotCommitted blocks until a delivery confirmation is received
// from Kafka. Close MUST be called at least once to flush in-flight messages.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	log      *zap.SugaredLogger
	once     sync.Once
}

// NewKafkaPublisher creates a Kafka-backed Publisher.
//
// Keys messages by L1 batch number so replays of one snapshot stay ordered
// within a partition. Enables idempotence: the creator may retry publishing.
func NewKafkaPublisher(brokers, clientID, topic string, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("invalid topic: must not be empty")
	}

	conf := &kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"client.id":          clientID,
		"acks":               "all",
		"enable.idempotence": true,
	}
	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaPublisher{producer: p, topic: topic, log: log}, nil
}

func (p *KafkaPublisher) PublishSnapshotCommitted(ctx context.Context, metadata *types.SnapshotMetadata) error {
	payload, err := eventPayload(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot event: %w", err)
	}

	deliveryCh := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(strconv.FormatUint(metadata.L1BatchNumber, 10)),
		Value: payload,
	}

	if err := p.producer.Produce(msg, deliveryCh); err != nil {
		return fmt.Errorf("failed to produce snapshot event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveryCh:
		return handleDeliveryEvent(p.log, ev)
	}
}

// Close flushes pending messages and closes the producer.
func (p *KafkaPublisher) Close() {
	p.once.Do(func() {
		p.log.Info("closing kafka publisher")
		for p.producer.Flush(flushTimeoutMs) > 0 {
			p.log.Warn("kafka publisher queue not empty after flush, retrying")
		}
		p.producer.Close()
	})
}

func handleDeliveryEvent(log *zap.SugaredLogger, ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		log.Debugf(
			"delivered to topic [%s] partition [%d] at offset [%d]",
			*e.TopicPartition.Topic,
			e.TopicPartition.Partition,
			e.TopicPartition.Offset,
		)
		return nil

	case kafka.Error:
		return fmt.Errorf("kafka error: code=%d fatal=%t: %w", e.Code(), e.IsFatal(), e)

	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}
