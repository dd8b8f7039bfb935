package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event holds the per-event configuration the check-in engine reads:
// aggregate counters and, for events that predate the normalized attendee
// store, the embedded legacy attendee array.
//
// Counters are nullable on purpose: nil means the event predates aggregate
// counters and attendance stats must be recomputed from the legacy array.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string           `bun:"id,pk" json:"id"`
	Name            string           `bun:"name,notnull" json:"name"`
	CheckedInCount  *int64           `bun:"checked_in_count,nullzero" json:"checked_in_count,omitempty"`
	TotalSold       *int64           `bun:"total_sold,nullzero" json:"total_sold,omitempty"`
	ZoneSold        map[string]int64 `bun:"zone_sold,type:jsonb,nullzero" json:"zone_sold,omitempty"`
	LegacyAttendees []LegacyAttendee `bun:"legacy_attendees,type:jsonb,nullzero" json:"legacy_attendees,omitempty"`
	CreatedAt       time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// HasCounters reports whether aggregate counters exist for this event.
func (e *Event) HasCounters() bool {
	return e.CheckedInCount != nil
}

// LegacyAttendee is one entry of the denormalized attendee array embedded in
// the event document by pre-migration issuance flows. The array is read-only
// from this service; first check-in migrates the entry into the normalized
// store instead of rewriting the array in place.
type LegacyAttendee struct {
	TicketID    string     `json:"ticketId"`
	Email       string     `json:"email"`
	Zone        string     `json:"zone,omitempty"`
	Seat        string     `json:"seat,omitempty"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckInTime *time.Time `json:"checkInTime,omitempty"`
	CheckInBy   string     `json:"checkInBy,omitempty"`
	Status      string     `json:"status,omitempty"`
}

// ToAttendee converts a legacy array entry into a normalized-store record
// scoped under the given event.
func (l LegacyAttendee) ToAttendee(eventID string) Attendee {
	status := l.Status
	if status == "" {
		status = StatusIssued
	}
	return Attendee{
		TicketID:    l.TicketID,
		EventID:     eventID,
		Email:       l.Email,
		Zone:        l.Zone,
		Seat:        l.Seat,
		CheckedIn:   l.CheckedIn,
		CheckInTime: l.CheckInTime,
		CheckInBy:   l.CheckInBy,
		Status:      status,
	}
}
