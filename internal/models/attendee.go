package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Attendee lifecycle status labels.
const (
	StatusIssued    = "issued"
	StatusCheckedIn = "checked_in"
)

// AttendeeSource tells which store satisfied a ticket lookup. The check-in
// write path depends on it: legacy-sourced records are migrated into the
// normalized store on first check-in.
type AttendeeSource string

const (
	SourceNormalized AttendeeSource = "normalized"
	SourceLegacy     AttendeeSource = "legacy"
)

// Attendee is one admission unit in the normalized store, keyed by the
// composite ticket id (base id + signature).
type Attendee struct {
	bun.BaseModel `bun:"table:attendees"`

	TicketID    string     `bun:"ticket_id,pk" json:"ticket_id"`
	EventID     string     `bun:"event_id,notnull" json:"event_id"`
	Email       string     `bun:"email,notnull" json:"email"`
	Zone        string     `bun:"zone,nullzero" json:"zone,omitempty"`
	Seat        string     `bun:"seat,nullzero" json:"seat,omitempty"`
	CheckedIn   bool       `bun:"checked_in" json:"checked_in"`
	CheckInTime *time.Time `bun:"check_in_time,nullzero" json:"check_in_time,omitempty"`
	CheckInBy   string     `bun:"check_in_by,nullzero" json:"check_in_by,omitempty"`
	Status      string     `bun:"status,notnull" json:"status"`
}

// CheckInInfo is the snapshot of a completed check-in, reported back to the
// scanning UI on duplicate attempts.
type CheckInInfo struct {
	Time time.Time `json:"time"`
	By   string    `json:"by"`
}

// CheckInOutcome is what the storage layer reports after the atomic
// transition attempt. Exactly one of the two shapes applies: Admitted with
// the post-transition record, or not admitted with the prior check-in.
type CheckInOutcome struct {
	Admitted bool
	Record   *Attendee
	Previous *CheckInInfo
}

// Operator identifies the staff member performing a scan.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
