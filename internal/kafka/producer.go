package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/leadguard/scan-engine/internal/config"
	"github.com/leadguard/scan-engine/internal/database"
)

// ThreatEvent is the message published when a new SCAM record enters the
// ledger. Downstream consumers (dashboards, notification fan-out) subscribe
// to these; this service only produces.
type ThreatEvent struct {
	RecordID   string    `json:"record_id"`
	BrandName  string    `json:"brand_name"`
	Domain     string    `json:"domain"`
	Category   string    `json:"category"`
	Verdict    string    `json:"verdict"`
	DetectedAt time.Time `json:"detected_at"`
}

// Producer publishes threat events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a threat event producer. Returns nil when no brokers
// are configured, which disables publishing.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) *Producer {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ThreatTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{writer: writer, logger: logger}
}

// PublishThreat publishes a threat-detected event keyed by domain
func (p *Producer) PublishThreat(ctx context.Context, record *database.ThreatRecord) error {
	if p == nil {
		return nil
	}

	event := ThreatEvent{
		RecordID:   record.ID,
		BrandName:  record.BrandName,
		Domain:     record.Domain,
		Category:   record.Category,
		Verdict:    record.Verdict,
		DetectedAt: record.CreatedAt,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize threat event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(record.Domain),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish threat event: %w", err)
	}

	p.logger.Debug("Threat event published", "record_id", record.ID, "topic", p.writer.Topic)
	return nil
}

// Close shuts down the underlying writer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
