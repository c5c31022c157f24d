// Package kafka streams audit records to a Kafka topic so compliance
// consumers (SIEM, long-retention archival) can subscribe independently of
// the durable store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"veristry/internal/audit"
	"veristry/internal/platform/config"
)

// Publisher implements audit.Appender by producing one JSON message per
// record, keyed by request ID so all records for a request land in order on
// one partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// message is the wire shape of one audit record.
type message struct {
	ID           string `json:"id"`
	RequestID    string `json:"request_id"`
	Dependency   string `json:"dependency"`
	Operation    string `json:"operation"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome,omitempty"`
	EvidenceHash string `json:"evidence_hash,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	Timestamp    string `json:"timestamp"`
}

// New connects to the brokers and ensures the audit topic exists.
func New(cfg config.KafkaConfig) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	details, err := adm.ListTopics(ctx, topic)
	if err != nil {
		return fmt.Errorf("list kafka topics: %w", err)
	}
	if details.Has(topic) {
		return nil
	}
	if _, err := adm.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	return nil
}

func (p *Publisher) Append(ctx context.Context, rec audit.Record) error {
	payload, err := json.Marshal(message{
		ID:           rec.ID.String(),
		RequestID:    rec.RequestID.String(),
		Dependency:   rec.Dependency,
		Operation:    rec.Operation,
		Action:       string(rec.Action),
		Outcome:      rec.Outcome,
		EvidenceHash: rec.EvidenceHash,
		DurationMS:   rec.Duration.Milliseconds(),
		Timestamp:    rec.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.RequestID.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying client.
func (p *Publisher) Close() {
	p.client.Close()
}
