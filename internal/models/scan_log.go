package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanResult enumerates every outcome a scan attempt can produce. Each scan
// writes exactly one ScanLog row carrying one of these.
type ScanResult string

const (
	ScanSuccess       ScanResult = "success"
	ScanLegacySuccess ScanResult = "legacy_success"
	ScanDuplicate     ScanResult = "duplicate_attempt"
	ScanFormatError   ScanResult = "format_error"
	ScanWrongEvent    ScanResult = "wrong_event"
	ScanNotFound      ScanResult = "ticket_not_found"
	ScanBadSignature  ScanResult = "invalid_signature"
	ScanInternalError ScanResult = "internal_error"
)

// ScanLog is one immutable audit row per scan attempt. For unparseable
// payloads TicketID carries the raw scanned string so failed forgeries still
// leave a trace.
type ScanLog struct {
	bun.BaseModel `bun:"table:scan_logs"`

	ID              string                 `bun:"id,pk" json:"id"`
	TicketID        string                 `bun:"ticket_id,notnull" json:"ticket_id"`
	EventID         string                 `bun:"event_id,notnull" json:"event_id"`
	ScannerID       string                 `bun:"scanner_id,notnull" json:"scanner_id"`
	ScannerName     string                 `bun:"scanner_name,nullzero" json:"scanner_name,omitempty"`
	Result          ScanResult             `bun:"result,notnull" json:"result"`
	FailureReason   string                 `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`
	PreviousCheckIn *CheckInInfo           `bun:"previous_check_in,type:jsonb,nullzero" json:"previous_check_in,omitempty"`
	Metadata        map[string]interface{} `bun:"metadata,type:jsonb,nullzero" json:"metadata,omitempty"`
	CreatedAt       time.Time              `bun:"created_at,notnull" json:"created_at"`
}
