package checkin

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/signature"
	"ms-checkin/internal/ticketcodec"
)

// MockDB implements DBLayer in memory with the same compare-and-set
// semantics the real transaction has, guarded by a mutex so concurrency
// tests exercise the race honestly.
type MockDB struct {
	mu           sync.Mutex
	attendees    map[string]*models.Attendee
	events       map[string]*models.Event
	shouldFailOn string
}

func NewMockDB() *MockDB {
	return &MockDB{
		attendees: make(map[string]*models.Attendee),
		events:    make(map[string]*models.Event),
	}
}

func (m *MockDB) GetAttendeeByTicketID(ctx context.Context, eventID, ticketID string) (*models.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFailOn == "GetAttendeeByTicketID" {
		return nil, errors.New("storage failure")
	}
	attendee, ok := m.attendees[ticketID]
	if !ok || attendee.EventID != eventID {
		return nil, sql.ErrNoRows
	}
	copied := *attendee
	return &copied, nil
}

func (m *MockDB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFailOn == "GetEvent" {
		return nil, errors.New("storage failure")
	}
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (m *MockDB) CheckInAttendee(ctx context.Context, eventID string, record models.Attendee, source models.AttendeeSource, operatorID string, now time.Time) (*models.CheckInOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFailOn == "CheckInAttendee" {
		return nil, errors.New("storage failure")
	}

	existing, ok := m.attendees[record.TicketID]
	if ok && existing.CheckedIn {
		copied := *existing
		return &models.CheckInOutcome{
			Admitted: false,
			Record:   &copied,
			Previous: &models.CheckInInfo{Time: *existing.CheckInTime, By: existing.CheckInBy},
		}, nil
	}

	updated := record
	updated.EventID = eventID
	updated.CheckedIn = true
	updated.CheckInTime = &now
	updated.CheckInBy = operatorID
	updated.Status = models.StatusCheckedIn
	m.attendees[record.TicketID] = &updated

	if event, ok := m.events[eventID]; ok && event.CheckedInCount != nil {
		*event.CheckedInCount++
	}

	copied := updated
	return &models.CheckInOutcome{Admitted: true, Record: &copied}, nil
}

// MockAudit collects scan log entries.
type MockAudit struct {
	mu      sync.Mutex
	entries []models.ScanLog
	fail    bool
}

func (m *MockAudit) Record(ctx context.Context, entry models.ScanLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("audit write failure")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAudit) Entries() []models.ScanLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ScanLog, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MockAudit) LastResult(t *testing.T) models.ScanResult {
	t.Helper()
	entries := m.Entries()
	if len(entries) == 0 {
		t.Fatal("Expected at least one audit entry")
	}
	return entries[len(entries)-1].Result
}

func newTestEngine(t *testing.T, db *MockDB, auditLog *MockAudit) (*Engine, *signature.Service) {
	t.Helper()
	signer, err := signature.NewService([]string{"test-secret"})
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}
	engine := &Engine{
		DB:       db,
		Resolver: NewResolver(db),
		Signer:   signer,
		Audit:    auditLog,
		Now:      time.Now,
	}
	return engine, signer
}

var operator = models.Operator{ID: "op_1", Name: "Gate A"}

// seedNormalizedTicket issues a valid ticket directly into the normalized
// store and returns its structured payload.
func seedNormalizedTicket(t *testing.T, db *MockDB, signer *signature.Service, eventID, email string) (composite, payload string) {
	t.Helper()
	baseID := "TKT-AB12CD-XYZ9Q"
	sig := signer.Sign(baseID, email, eventID)
	composite = ticketcodec.EncodeComposite(baseID, sig)
	db.attendees[composite] = &models.Attendee{
		TicketID: composite,
		EventID:  eventID,
		Email:    signature.NormalizeEmail(email),
		Status:   models.StatusIssued,
	}
	payload, err := ticketcodec.EncodeStructured(baseID, eventID, sig)
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	return composite, payload
}

func seedEvent(db *MockDB, eventID string, checkedIn, total int64) *models.Event {
	event := &models.Event{ID: eventID, Name: "Test Event", CheckedInCount: &checkedIn, TotalSold: &total}
	db.events[eventID] = event
	return event
}

func TestScanValidTicket(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	composite, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	result := engine.Scan(context.Background(), payload, "evt_1", operator)

	if result.Status != StatusValid {
		t.Fatalf("Expected VALID, got %s (%s)", result.Status, result.Message)
	}
	if result.Attendee == nil || !result.Attendee.CheckedIn {
		t.Error("Expected attendee returned in checked-in state")
	}
	if result.Attendee.CheckInBy != operator.ID {
		t.Errorf("Expected check-in by %s, got %s", operator.ID, result.Attendee.CheckInBy)
	}
	if got := auditLog.LastResult(t); got != models.ScanSuccess {
		t.Errorf("Expected success audit entry, got %s", got)
	}
	if *db.events["evt_1"].CheckedInCount != 1 {
		t.Errorf("Expected counter 1, got %d", *db.events["evt_1"].CheckedInCount)
	}
	if !db.attendees[composite].CheckedIn {
		t.Error("Expected stored record to be checked in")
	}
}

func TestScanDuplicateTicket(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	_, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	first := engine.Scan(context.Background(), payload, "evt_1", operator)
	if first.Status != StatusValid {
		t.Fatalf("Expected first scan VALID, got %s", first.Status)
	}

	second := engine.Scan(context.Background(), payload, "evt_1", models.Operator{ID: "op_2", Name: "Gate B"})
	if second.Status != StatusAlreadyCheckedIn {
		t.Fatalf("Expected ALREADY_CHECKED_IN, got %s", second.Status)
	}
	if second.CheckIn == nil {
		t.Fatal("Expected prior check-in snapshot")
	}
	if second.CheckIn.By != operator.ID {
		t.Errorf("Expected snapshot operator %s, got %s", operator.ID, second.CheckIn.By)
	}
	if got := auditLog.LastResult(t); got != models.ScanDuplicate {
		t.Errorf("Expected duplicate audit entry, got %s", got)
	}

	entries := auditLog.Entries()
	last := entries[len(entries)-1]
	if last.PreviousCheckIn == nil || last.PreviousCheckIn.By != operator.ID {
		t.Error("Expected duplicate audit entry to carry prior check-in snapshot")
	}
	if *db.events["evt_1"].CheckedInCount != 1 {
		t.Errorf("Duplicate must not increment counter, got %d", *db.events["evt_1"].CheckedInCount)
	}
}

func TestScanFormatError(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, _ := newTestEngine(t, db, auditLog)

	result := engine.Scan(context.Background(), "garbage", "evt_1", operator)

	if result.Status != StatusInvalid {
		t.Fatalf("Expected INVALID, got %s", result.Status)
	}
	if got := auditLog.LastResult(t); got != models.ScanFormatError {
		t.Errorf("Expected format_error audit entry, got %s", got)
	}
	entries := auditLog.Entries()
	if entries[0].TicketID != "garbage" {
		t.Errorf("Expected raw payload recorded as ticket id, got %s", entries[0].TicketID)
	}
}

func TestScanWrongEventNeverHitsStorage(t *testing.T) {
	db := NewMockDB()
	db.shouldFailOn = "GetAttendeeByTicketID" // any lookup would error
	auditLog := &MockAudit{}
	engine, _ := newTestEngine(t, db, auditLog)

	payload, _ := ticketcodec.EncodeStructured("TKT-AB12CD-XYZ9Q", "evt_other", "SIG12345ABCDEF01")
	result := engine.Scan(context.Background(), payload, "evt_1", operator)

	if result.Status != StatusInvalid {
		t.Fatalf("Expected INVALID, got %s", result.Status)
	}
	if got := auditLog.LastResult(t); got != models.ScanWrongEvent {
		t.Errorf("Expected wrong_event audit entry, got %s", got)
	}
}

func TestScanTicketNotFound(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, _ := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)

	result := engine.Scan(context.Background(), "TKT-AB12CD-XYZ9Q-DEADBEEF00000000", "evt_1", operator)

	if result.Status != StatusInvalid {
		t.Fatalf("Expected INVALID, got %s", result.Status)
	}
	if got := auditLog.LastResult(t); got != models.ScanNotFound {
		t.Errorf("Expected ticket_not_found audit entry, got %s", got)
	}
}

func TestScanForgedSignature(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	composite, _ := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	// Present the right base id with a wrong signature: the record must be
	// seeded under the forged composite for resolution to even find it.
	forged := "TKT-AB12CD-XYZ9Q-0000000000000000"
	db.attendees[forged] = &models.Attendee{
		TicketID: forged,
		EventID:  "evt_1",
		Email:    "jane@example.com",
		Status:   models.StatusIssued,
	}
	delete(db.attendees, composite)

	result := engine.Scan(context.Background(), forged, "evt_1", operator)

	if result.Status != StatusInvalid {
		t.Fatalf("Expected INVALID, got %s", result.Status)
	}
	if result.Message != "ticket falsified" {
		t.Errorf("Expected falsified message, got %q", result.Message)
	}
	if got := auditLog.LastResult(t); got != models.ScanBadSignature {
		t.Errorf("Expected invalid_signature audit entry, got %s", got)
	}
}

func TestScanInternalErrorOnStorageFailure(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	_, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")
	db.shouldFailOn = "CheckInAttendee"

	result := engine.Scan(context.Background(), payload, "evt_1", operator)

	if result.Status != StatusInvalid {
		t.Fatalf("Expected INVALID, got %s", result.Status)
	}
	if got := auditLog.LastResult(t); got != models.ScanInternalError {
		t.Errorf("Expected internal_error audit entry, got %s", got)
	}
}

func TestScanAuditFailureDoesNotChangeOutcome(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{fail: true}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	_, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	result := engine.Scan(context.Background(), payload, "evt_1", operator)

	if result.Status != StatusValid {
		t.Fatalf("Audit failure must not block check-in, got %s", result.Status)
	}
}

func TestScanCrossFormatEquivalence(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 10)
	composite, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	// Admit via the structured payload, then retry with its legacy-string
	// equivalent: both resolve to the same record so the second scan is a
	// duplicate, not a second admission.
	first := engine.Scan(context.Background(), payload, "evt_1", operator)
	if first.Status != StatusValid {
		t.Fatalf("Expected VALID, got %s", first.Status)
	}

	second := engine.Scan(context.Background(), composite, "evt_1", operator)
	if second.Status != StatusAlreadyCheckedIn {
		t.Fatalf("Expected legacy rescan to be ALREADY_CHECKED_IN, got %s", second.Status)
	}
	if *db.events["evt_1"].CheckedInCount != 1 {
		t.Errorf("Expected counter 1, got %d", *db.events["evt_1"].CheckedInCount)
	}
}

func TestScanLegacyStoreMigrationOnWrite(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)

	baseID := "TKT-LEGACY01-AAA11"
	sig := signer.Sign(baseID, "old@example.com", "evt_1")
	composite := ticketcodec.EncodeComposite(baseID, sig)

	event := seedEvent(db, "evt_1", 0, 10)
	event.LegacyAttendees = []models.LegacyAttendee{
		{TicketID: composite, Email: "old@example.com", Status: models.StatusIssued},
	}

	result := engine.Scan(context.Background(), composite, "evt_1", operator)

	if result.Status != StatusValid {
		t.Fatalf("Expected VALID for legacy ticket, got %s (%s)", result.Status, result.Message)
	}
	if got := auditLog.LastResult(t); got != models.ScanLegacySuccess {
		t.Errorf("Expected legacy_success audit entry, got %s", got)
	}
	// Migration-on-write: the record is now in the normalized store and the
	// legacy array is untouched.
	if _, ok := db.attendees[composite]; !ok {
		t.Error("Expected legacy record migrated into normalized store")
	}
	if len(db.events["evt_1"].LegacyAttendees) != 1 {
		t.Error("Legacy array must not be rewritten")
	}

	second := engine.Scan(context.Background(), composite, "evt_1", operator)
	if second.Status != StatusAlreadyCheckedIn {
		t.Fatalf("Expected migrated ticket rescan to be ALREADY_CHECKED_IN, got %s", second.Status)
	}
}

func TestScanLegacyMixedCaseStoredEmail(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)

	// Historical ticket stored with an unnormalized mixed-case email. Its
	// signature is over the normalized form; verification must still accept
	// it given the raw stored email.
	baseID := "TKT-LEGACY02-BBB22"
	sig := signer.Sign(baseID, "mixed@example.com", "evt_1")
	composite := ticketcodec.EncodeComposite(baseID, sig)

	event := seedEvent(db, "evt_1", 0, 10)
	event.LegacyAttendees = []models.LegacyAttendee{
		{TicketID: composite, Email: "Mixed@Example.com", Status: models.StatusIssued},
	}

	result := engine.Scan(context.Background(), composite, "evt_1", operator)
	if result.Status != StatusValid {
		t.Fatalf("Expected VALID via normalized-email verification, got %s (%s)", result.Status, result.Message)
	}
}

func TestConcurrentScansAdmitExactlyOnce(t *testing.T) {
	db := NewMockDB()
	auditLog := &MockAudit{}
	engine, signer := newTestEngine(t, db, auditLog)
	seedEvent(db, "evt_1", 0, 100)
	_, payload := seedNormalizedTicket(t, db, signer, "evt_1", "jane@example.com")

	const n = 32
	results := make([]Result, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Scan(context.Background(), payload, "evt_1", operator)
		}(i)
	}
	wg.Wait()

	var valid, already int
	for _, r := range results {
		switch r.Status {
		case StatusValid:
			valid++
		case StatusAlreadyCheckedIn:
			already++
		default:
			t.Errorf("Unexpected status %s (%s)", r.Status, r.Message)
		}
	}
	if valid != 1 {
		t.Errorf("Expected exactly 1 VALID, got %d", valid)
	}
	if already != n-1 {
		t.Errorf("Expected %d ALREADY_CHECKED_IN, got %d", n-1, already)
	}
	if *db.events["evt_1"].CheckedInCount != 1 {
		t.Errorf("Expected counter incremented exactly once, got %d", *db.events["evt_1"].CheckedInCount)
	}
	if len(auditLog.Entries()) != n {
		t.Errorf("Expected %d audit entries, got %d", n, len(auditLog.Entries()))
	}
}
