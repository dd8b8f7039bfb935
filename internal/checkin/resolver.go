package checkin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-checkin/internal/models"
	"ms-checkin/internal/ticketcodec"
)

var (
	// ErrWrongEvent means a structured payload names a different event than
	// the one being scanned. Raised before any storage lookup.
	ErrWrongEvent = errors.New("ticket belongs to a different event")
	// ErrTicketNotFound means neither store holds the ticket.
	ErrTicketNotFound = errors.New("ticket not found")
)

// ResolvedTicket is a located attendee record tagged with the store that
// satisfied the lookup.
type ResolvedTicket struct {
	Record models.Attendee
	Source models.AttendeeSource
}

// Resolver locates the authoritative attendee record for a decoded ticket
// reference. The normalized store is always tried first: a ticket that was
// migrated there on an earlier check-in must never be re-found in the legacy
// array and admitted a second time.
type Resolver struct {
	DB ResolverDBLayer
}

type ResolverDBLayer interface {
	GetAttendeeByTicketID(ctx context.Context, eventID, ticketID string) (*models.Attendee, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
}

func NewResolver(db ResolverDBLayer) *Resolver {
	return &Resolver{DB: db}
}

// Resolve maps a reference to exactly one attendee record under the given
// event.
func (r *Resolver) Resolve(ctx context.Context, ref ticketcodec.Reference, eventID string) (*ResolvedTicket, error) {
	if ref.Version == ticketcodec.VersionV1 && ref.EventID != eventID {
		return nil, ErrWrongEvent
	}

	composite := ref.CompositeID()

	record, err := r.DB.GetAttendeeByTicketID(ctx, eventID, composite)
	if err == nil {
		return &ResolvedTicket{Record: *record, Source: models.SourceNormalized}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendee lookup failed: %w", err)
	}

	event, err := r.DB.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("event lookup failed: %w", err)
	}

	for _, legacy := range event.LegacyAttendees {
		if legacy.TicketID == composite {
			return &ResolvedTicket{Record: legacy.ToAttendee(eventID), Source: models.SourceLegacy}, nil
		}
	}

	return nil, ErrTicketNotFound
}
