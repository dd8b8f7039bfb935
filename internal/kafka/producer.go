package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// Producer streams scan outcomes to the message bus. It mirrors the audit
// trail for downstream consumers (dashboards, fraud review) and is always
// best-effort from the check-in engine's point of view.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer, Logger: log}
}

// PublishScanOutcome streams one scan log entry, keyed by event id so all
// scans for an event land on the same partition in order.
func (p *Producer) PublishScanOutcome(entry models.ScanLog) error {
	msgBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if p.Logger != nil {
		p.Logger.LogKafka("PUBLISH", p.Writer.Topic, fmt.Sprintf("scan %s result=%s", entry.ID, entry.Result))
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(entry.EventID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
