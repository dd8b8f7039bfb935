package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetAttendeeByTicketID fetches a normalized-store record by its composite
// ticket id, scoped under the event. Misses surface as sql.ErrNoRows.
func (d *DB) GetAttendeeByTicketID(ctx context.Context, eventID, ticketID string) (*models.Attendee, error) {
	var attendee models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendee).
		Where("ticket_id = ?", ticketID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

// GetEvent fetches the event configuration, including the embedded legacy
// attendee array.
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// CheckInAttendee performs the one-way NOT_CHECKED_IN -> CHECKED_IN
// transition as a single transaction. The state test and the write are one
// statement (conditional update, or insert-on-conflict for legacy-sourced
// records), so of two racing scans exactly one is admitted; the loser gets
// the prior check-in back. The aggregate counter increment rides in the same
// transaction: either both apply or neither does.
func (d *DB) CheckInAttendee(ctx context.Context, eventID string, record models.Attendee, source models.AttendeeSource, operatorID string, now time.Time) (*models.CheckInOutcome, error) {
	var outcome models.CheckInOutcome

	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var admitted bool
		var err error

		switch source {
		case models.SourceNormalized:
			admitted, err = checkInNormalized(ctx, tx, eventID, record.TicketID, operatorID, now)
		case models.SourceLegacy:
			admitted, err = checkInLegacy(ctx, tx, eventID, record, operatorID, now)
		default:
			return fmt.Errorf("unknown attendee source %q", source)
		}
		if err != nil {
			return err
		}

		if !admitted {
			prior, err := loadPriorCheckIn(ctx, tx, eventID, record.TicketID)
			if err != nil {
				return err
			}
			outcome = *prior
			return nil
		}

		if err := incrementCheckedInCount(ctx, tx, eventID); err != nil {
			return err
		}

		updated := record
		updated.EventID = eventID
		updated.CheckedIn = true
		updated.CheckInTime = &now
		updated.CheckInBy = operatorID
		updated.Status = models.StatusCheckedIn
		outcome = models.CheckInOutcome{Admitted: true, Record: &updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// checkInNormalized flips the check-in flag only if it is still unset. Zero
// rows affected means another scan won the race (or the record was already
// checked in).
func checkInNormalized(ctx context.Context, tx bun.Tx, eventID, ticketID, operatorID string, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("checked_in = ?", true).
		Set("check_in_time = ?", now).
		Set("check_in_by = ?", operatorID).
		Set("status = ?", models.StatusCheckedIn).
		Where("ticket_id = ?", ticketID).
		Where("event_id = ?", eventID).
		Where("checked_in = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// checkInLegacy migrates a legacy-array record into the normalized store in
// its checked-in state. The insert conflicts when a concurrent scan already
// migrated it; the legacy array itself is never rewritten.
func checkInLegacy(ctx context.Context, tx bun.Tx, eventID string, record models.Attendee, operatorID string, now time.Time) (bool, error) {
	migrated := record
	migrated.EventID = eventID
	migrated.CheckedIn = true
	migrated.CheckInTime = &now
	migrated.CheckInBy = operatorID
	migrated.Status = models.StatusCheckedIn

	res, err := tx.NewInsert().
		Model(&migrated).
		On("CONFLICT (ticket_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func loadPriorCheckIn(ctx context.Context, tx bun.Tx, eventID, ticketID string) (*models.CheckInOutcome, error) {
	var prior models.Attendee
	err := tx.NewSelect().
		Model(&prior).
		Where("ticket_id = ?", ticketID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior check-in for %s: %w", ticketID, err)
	}

	outcome := &models.CheckInOutcome{Admitted: false, Record: &prior}
	if prior.CheckInTime != nil {
		outcome.Previous = &models.CheckInInfo{Time: *prior.CheckInTime, By: prior.CheckInBy}
	}
	return outcome, nil
}

// incrementCheckedInCount bumps the aggregate counter where one exists.
// Pre-counter events simply skip it; their stats are recomputed from the
// legacy array.
func incrementCheckedInCount(ctx context.Context, tx bun.Tx, eventID string) error {
	_, err := tx.NewUpdate().
		Model((*models.Event)(nil)).
		Set("checked_in_count = checked_in_count + 1").
		Where("id = ?", eventID).
		Where("checked_in_count IS NOT NULL").
		Exec(ctx)
	return err
}

// CreateAttendee inserts a freshly issued, not-checked-in record and bumps
// the event's total-sold counter in the same transaction.
func (d *DB) CreateAttendee(ctx context.Context, attendee models.Attendee) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&attendee).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("total_sold = total_sold + 1").
			Where("id = ?", attendee.EventID).
			Where("total_sold IS NOT NULL").
			Exec(ctx)
		return err
	})
}

// EventExists reports whether an event is known. Issuance validates the
// reference before writing.
func (d *DB) EventExists(ctx context.Context, eventID string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Where("id = ?", eventID).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ResetSchema creates the service's tables from the bun models. Tests use it
// against sqlite; production schema is owned by the migration runner.
func (d *DB) ResetSchema(ctx context.Context) error {
	if err := d.Bun.ResetModel(ctx, (*models.Attendee)(nil)); err != nil {
		return err
	}
	if err := d.Bun.ResetModel(ctx, (*models.Event)(nil)); err != nil {
		return err
	}
	return d.Bun.ResetModel(ctx, (*models.ScanLog)(nil))
}
