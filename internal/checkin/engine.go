package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/signature"
	"ms-checkin/internal/ticketcodec"
)

// Status is the operator-facing classification of a scan.
type Status string

const (
	StatusValid            Status = "VALID"
	StatusAlreadyCheckedIn Status = "ALREADY_CHECKED_IN"
	StatusInvalid          Status = "INVALID"
)

// Result is what the scanning UI receives for one scan attempt.
type Result struct {
	Status   Status              `json:"status"`
	Message  string              `json:"message"`
	Attendee *models.Attendee    `json:"attendee,omitempty"`
	CheckIn  *models.CheckInInfo `json:"check_in,omitempty"`
}

// DBLayer is the storage contract the engine needs. CheckInAttendee must be
// atomic: the checked-in test and the write happen in one transaction so two
// racing scans can never both admit the same ticket.
type DBLayer interface {
	GetAttendeeByTicketID(ctx context.Context, eventID, ticketID string) (*models.Attendee, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	CheckInAttendee(ctx context.Context, eventID string, record models.Attendee, source models.AttendeeSource, operatorID string, now time.Time) (*models.CheckInOutcome, error)
}

// AuditWriter records one entry per scan attempt. Failures are reported to
// the operational log and never change the scan outcome.
type AuditWriter interface {
	Record(ctx context.Context, entry models.ScanLog) error
}

// OutcomePublisher fans scan outcomes out to the message bus. Optional and
// best-effort.
type OutcomePublisher interface {
	PublishScanOutcome(entry models.ScanLog) error
}

// Engine runs the per-scan state machine: decode, resolve, verify signature,
// atomically transition, audit.
type Engine struct {
	DB        DBLayer
	Resolver  *Resolver
	Signer    *signature.Service
	Audit     AuditWriter
	Publisher OutcomePublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewEngine(db DBLayer, signer *signature.Service, audit AuditWriter, publisher OutcomePublisher, log *logger.Logger) *Engine {
	return &Engine{
		DB:        db,
		Resolver:  NewResolver(db),
		Signer:    signer,
		Audit:     audit,
		Publisher: publisher,
		Logger:    log,
		Now:       time.Now,
	}
}

// Scan processes one scanned code against an event on behalf of an operator.
// It never returns an error: every failure mode maps to an INVALID result,
// and every attempt leaves an audit entry.
func (e *Engine) Scan(ctx context.Context, rawCode, eventID string, operator models.Operator) Result {
	ref, err := ticketcodec.Decode(rawCode)
	if err != nil {
		e.logScan(ctx, models.ScanLog{
			TicketID:      truncateRaw(rawCode),
			EventID:       eventID,
			ScannerID:     operator.ID,
			ScannerName:   operator.Name,
			Result:        models.ScanFormatError,
			FailureReason: err.Error(),
		})
		return Result{Status: StatusInvalid, Message: "unrecognized ticket code"}
	}

	meta := map[string]interface{}{
		"legacy_format": ref.Version == ticketcodec.VersionLegacy,
	}
	entry := models.ScanLog{
		TicketID:    ref.CompositeID(),
		EventID:     eventID,
		ScannerID:   operator.ID,
		ScannerName: operator.Name,
		Metadata:    meta,
	}

	resolved, err := e.Resolver.Resolve(ctx, ref, eventID)
	switch {
	case errors.Is(err, ErrWrongEvent):
		entry.Result = models.ScanWrongEvent
		entry.FailureReason = fmt.Sprintf("payload is for event %s", ref.EventID)
		e.logScan(ctx, entry)
		return Result{Status: StatusInvalid, Message: "ticket belongs to a different event"}
	case errors.Is(err, ErrTicketNotFound):
		entry.Result = models.ScanNotFound
		entry.FailureReason = "no matching attendee record"
		e.logScan(ctx, entry)
		return Result{Status: StatusInvalid, Message: "ticket not found"}
	case err != nil:
		return e.internalError(ctx, entry, "resolve", err)
	}

	meta["source"] = string(resolved.Source)

	if !e.Signer.Verify(ref.BaseID, resolved.Record.Email, eventID, ref.Signature) {
		entry.Result = models.ScanBadSignature
		entry.FailureReason = "signature verification failed"
		e.logScan(ctx, entry)
		return Result{Status: StatusInvalid, Message: "ticket falsified"}
	}

	// Fast duplicate path; the transactional write below still guards the
	// race for records that flip between this read and the transition.
	if resolved.Record.CheckedIn {
		prior := priorCheckIn(&resolved.Record)
		entry.Result = models.ScanDuplicate
		entry.PreviousCheckIn = prior
		e.logScan(ctx, entry)
		return duplicateResult(&resolved.Record, prior)
	}

	outcome, err := e.DB.CheckInAttendee(ctx, eventID, resolved.Record, resolved.Source, operator.ID, e.now())
	if err != nil {
		return e.internalError(ctx, entry, "check-in transaction", err)
	}

	if !outcome.Admitted {
		entry.Result = models.ScanDuplicate
		entry.PreviousCheckIn = outcome.Previous
		e.logScan(ctx, entry)
		return duplicateResult(outcome.Record, outcome.Previous)
	}

	if resolved.Source == models.SourceLegacy {
		entry.Result = models.ScanLegacySuccess
	} else {
		entry.Result = models.ScanSuccess
	}
	e.logScan(ctx, entry)

	return Result{
		Status:   StatusValid,
		Message:  "check-in successful",
		Attendee: outcome.Record,
		CheckIn:  priorCheckIn(outcome.Record),
	}
}

func (e *Engine) internalError(ctx context.Context, entry models.ScanLog, stage string, err error) Result {
	if e.Logger != nil {
		e.Logger.Error("CHECKIN", fmt.Sprintf("%s failed for ticket %s: %v", stage, entry.TicketID, err))
	}
	entry.Result = models.ScanInternalError
	entry.FailureReason = stage + " failed"
	e.logScan(ctx, entry)
	return Result{Status: StatusInvalid, Message: "internal error, please retry"}
}

// logScan appends the audit entry and publishes the outcome. Both are
// best-effort: the scan result already computed is returned regardless.
func (e *Engine) logScan(ctx context.Context, entry models.ScanLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = e.now()
	}

	if e.Audit != nil {
		if err := e.Audit.Record(ctx, entry); err != nil && e.Logger != nil {
			e.Logger.Error("AUDIT", fmt.Sprintf("failed to record scan %s: %v", entry.ID, err))
		}
	}
	if e.Publisher != nil {
		if err := e.Publisher.PublishScanOutcome(entry); err != nil && e.Logger != nil {
			e.Logger.Warn("KAFKA", fmt.Sprintf("failed to publish scan %s: %v", entry.ID, err))
		}
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func duplicateResult(record *models.Attendee, prior *models.CheckInInfo) Result {
	msg := "ticket already registered"
	if prior != nil {
		msg = fmt.Sprintf("ticket already registered at %s", prior.Time.Format("15:04:05 Jan 2 2006"))
	}
	return Result{
		Status:   StatusAlreadyCheckedIn,
		Message:  msg,
		Attendee: record,
		CheckIn:  prior,
	}
}

func priorCheckIn(record *models.Attendee) *models.CheckInInfo {
	if record == nil || record.CheckInTime == nil {
		return nil
	}
	return &models.CheckInInfo{Time: *record.CheckInTime, By: record.CheckInBy}
}

// truncateRaw bounds the raw payload kept in audit rows for unparseable
// scans.
func truncateRaw(raw string) string {
	const max = 256
	if len(raw) > max {
		return raw[:max]
	}
	return raw
}
