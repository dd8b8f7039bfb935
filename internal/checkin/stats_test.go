package checkin

import (
	"context"
	"testing"

	"ms-checkin/internal/models"
)

func TestEventStatsPrefersCounters(t *testing.T) {
	db := NewMockDB()
	event := seedEvent(db, "evt_1", 42, 100)
	// Even with a stale-looking legacy array present, counters win.
	event.LegacyAttendees = []models.LegacyAttendee{
		{TicketID: "TKT-A-B-SIG1", CheckedIn: true},
	}
	svc := NewStatsService(db, nil, nil)

	stats, err := svc.EventStats(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}
	if stats.CheckedIn != 42 {
		t.Errorf("Expected 42 checked in, got %d", stats.CheckedIn)
	}
	if stats.Total != 100 {
		t.Errorf("Expected 100 total, got %d", stats.Total)
	}
	if stats.Percentage != 42 {
		t.Errorf("Expected 42%%, got %f", stats.Percentage)
	}
}

func TestEventStatsLegacyFallback(t *testing.T) {
	db := NewMockDB()
	db.events["evt_legacy"] = &models.Event{
		ID:   "evt_legacy",
		Name: "Pre-counter Event",
		LegacyAttendees: []models.LegacyAttendee{
			{TicketID: "T-1-A-S", CheckedIn: true},
			{TicketID: "T-2-A-S", CheckedIn: false},
			{TicketID: "T-3-A-S", CheckedIn: true},
			{TicketID: "T-4-A-S", CheckedIn: false},
		},
	}
	svc := NewStatsService(db, nil, nil)

	stats, err := svc.EventStats(context.Background(), "evt_legacy")
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}
	if stats.CheckedIn != 2 {
		t.Errorf("Expected 2 checked in, got %d", stats.CheckedIn)
	}
	if stats.Total != 4 {
		t.Errorf("Expected 4 total, got %d", stats.Total)
	}
	if stats.Percentage != 50 {
		t.Errorf("Expected 50%%, got %f", stats.Percentage)
	}
}

func TestEventStatsZeroTotal(t *testing.T) {
	db := NewMockDB()
	seedEvent(db, "evt_empty", 0, 0)
	svc := NewStatsService(db, nil, nil)

	stats, err := svc.EventStats(context.Background(), "evt_empty")
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}
	if stats.Percentage != 0 {
		t.Errorf("Expected 0%% for empty event, got %f", stats.Percentage)
	}
}

func TestEventStatsUnknownEvent(t *testing.T) {
	db := NewMockDB()
	svc := NewStatsService(db, nil, nil)

	if _, err := svc.EventStats(context.Background(), "evt_missing"); err == nil {
		t.Error("Expected error for unknown event")
	}
}

func TestEventStatsCountersWithoutTotal(t *testing.T) {
	db := NewMockDB()
	checked := int64(7)
	db.events["evt_partial"] = &models.Event{
		ID:             "evt_partial",
		Name:           "Counter-only Event",
		CheckedInCount: &checked,
	}
	svc := NewStatsService(db, nil, nil)

	stats, err := svc.EventStats(context.Background(), "evt_partial")
	if err != nil {
		t.Fatalf("Failed to compute stats: %v", err)
	}
	if stats.CheckedIn != 7 {
		t.Errorf("Expected 7 checked in, got %d", stats.CheckedIn)
	}
	if stats.Total != 0 || stats.Percentage != 0 {
		t.Errorf("Expected zero total and percentage, got %d / %f", stats.Total, stats.Percentage)
	}
}
