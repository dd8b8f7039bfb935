package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// AttendeeImport is the message shape issuance and import flows publish when
// they create tickets outside this service. Consuming it keeps the
// normalized store current without coupling those flows to our database.
type AttendeeImport struct {
	TicketID string `json:"ticket_id"`
	EventID  string `json:"event_id"`
	Email    string `json:"email"`
	Zone     string `json:"zone,omitempty"`
	Seat     string `json:"seat,omitempty"`
}

// AttendeeStore is the storage write the consumer needs.
type AttendeeStore interface {
	CreateAttendee(ctx context.Context, attendee models.Attendee) error
}

type Consumer struct {
	reader *kafka.Reader
	store  AttendeeStore
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, store AttendeeStore, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, store: store, logger: log}
}

// Run consumes attendee-import messages until the context is cancelled.
// Malformed messages are logged and skipped; storage failures do not stop
// the loop.
func (c *Consumer) Run(ctx context.Context) {
	if c.logger != nil {
		c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "attendee import consumer started")
	}

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if c.logger != nil {
				c.logger.Error("KAFKA", fmt.Sprintf("failed to read message: %v", err))
			}
			continue
		}

		var imp AttendeeImport
		if err := json.Unmarshal(msg.Value, &imp); err != nil {
			if c.logger != nil {
				c.logger.Warn("KAFKA", fmt.Sprintf("failed to unmarshal attendee import: %v", err))
			}
			continue
		}
		if imp.TicketID == "" || imp.EventID == "" {
			if c.logger != nil {
				c.logger.Warn("KAFKA", "attendee import missing ticket or event id, skipping")
			}
			continue
		}

		attendee := models.Attendee{
			TicketID: imp.TicketID,
			EventID:  imp.EventID,
			Email:    imp.Email,
			Zone:     imp.Zone,
			Seat:     imp.Seat,
			Status:   models.StatusIssued,
		}
		if err := c.store.CreateAttendee(ctx, attendee); err != nil {
			if c.logger != nil {
				c.logger.Error("KAFKA", fmt.Sprintf("failed to store imported attendee %s: %v", imp.TicketID, err))
			}
			continue
		}

		if c.logger != nil {
			c.logger.LogKafka("CONSUME", c.reader.Config().Topic, fmt.Sprintf("imported attendee %s for event %s", imp.TicketID, imp.EventID))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
