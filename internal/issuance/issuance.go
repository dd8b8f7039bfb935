package issuance

import (
	"context"
	"errors"
	"fmt"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/signature"
	"ms-checkin/internal/ticketcodec"
	"ms-checkin/internal/utils"
)

// DBLayer is the storage contract issuance needs.
type DBLayer interface {
	CreateAttendee(ctx context.Context, attendee models.Attendee) error
	EventExists(ctx context.Context, eventID string) (bool, error)
}

// IssuedTicket is what a caller gets back for a freshly issued ticket: both
// wire payloads plus a rendered QR image.
type IssuedTicket struct {
	TicketID   string `json:"ticket_id"`
	LegacyCode string `json:"legacy_code"`
	Payload    string `json:"payload"`
	QRCode     []byte `json:"qr_code"`
}

// Service creates new attendee records with signed ticket ids. The check-in
// core treats issuance as an external collaborator; this service exists so
// the shared codec and signer have a producing side.
type Service struct {
	DB     DBLayer
	Signer *signature.Service
	Logger *logger.Logger
}

func NewService(db DBLayer, signer *signature.Service, log *logger.Logger) *Service {
	return &Service{DB: db, Signer: signer, Logger: log}
}

// IssueTicket creates one not-checked-in attendee for the event and returns
// its scannable payloads.
func (s *Service) IssueTicket(ctx context.Context, eventID, email, zone, seat string) (*IssuedTicket, error) {
	if eventID == "" {
		return nil, errors.New("event id is required")
	}
	normalized := signature.NormalizeEmail(email)
	if normalized == "" {
		return nil, errors.New("attendee email is required")
	}

	exists, err := s.DB.EventExists(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate event: %w", err)
	}
	if !exists {
		return nil, errors.New("event does not exist")
	}

	baseID := utils.GenerateTicketBaseID()
	sig := s.Signer.Sign(baseID, normalized, eventID)
	composite := ticketcodec.EncodeComposite(baseID, sig)

	payload, err := ticketcodec.EncodeStructured(baseID, eventID, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket payload: %w", err)
	}

	png, err := ticketcodec.QRImage(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR: %w", err)
	}

	attendee := models.Attendee{
		TicketID: composite,
		EventID:  eventID,
		Email:    normalized,
		Zone:     zone,
		Seat:     seat,
		Status:   models.StatusIssued,
	}
	if err := s.DB.CreateAttendee(ctx, attendee); err != nil {
		return nil, fmt.Errorf("failed to store attendee: %w", err)
	}

	if s.Logger != nil {
		s.Logger.Info("ISSUANCE", fmt.Sprintf("issued ticket %s for event %s", composite, eventID))
	}

	return &IssuedTicket{
		TicketID:   composite,
		LegacyCode: composite,
		Payload:    payload,
		QRCode:     png,
	}, nil
}
