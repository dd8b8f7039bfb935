package checkin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// Stats is the attendance summary for one event.
type Stats struct {
	CheckedIn  int64   `json:"checked_in"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// StatsService derives attendance counters for an event. Aggregate counters
// maintained by the check-in transaction are always preferred; recomputing
// from the legacy attendee array happens only for events that predate
// counters. A short-TTL Redis cache sits in front so gate dashboards polling
// every second do not hammer the events table.
type StatsService struct {
	DB     ResolverDBLayer
	Cache  *redis.Client
	Logger *logger.Logger
	TTL    time.Duration
}

func NewStatsService(db ResolverDBLayer, cache *redis.Client, log *logger.Logger) *StatsService {
	return &StatsService{DB: db, Cache: cache, Logger: log, TTL: 5 * time.Second}
}

func statsCacheKey(eventID string) string {
	return "attendance_stats:" + eventID
}

// EventStats returns {checkedIn, total, percentage} for the event.
func (s *StatsService) EventStats(ctx context.Context, eventID string) (*Stats, error) {
	if cached := s.fromCache(ctx, eventID); cached != nil {
		return cached, nil
	}

	event, err := s.DB.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	stats := computeStats(event)
	s.toCache(ctx, eventID, stats)
	return stats, nil
}

func computeStats(event *models.Event) *Stats {
	stats := &Stats{}
	if event.HasCounters() {
		stats.CheckedIn = *event.CheckedInCount
		if event.TotalSold != nil {
			stats.Total = *event.TotalSold
		}
	} else {
		// Pre-counter event: the legacy array is the only record.
		for _, legacy := range event.LegacyAttendees {
			stats.Total++
			if legacy.CheckedIn {
				stats.CheckedIn++
			}
		}
	}
	if stats.Total > 0 {
		stats.Percentage = float64(stats.CheckedIn) / float64(stats.Total) * 100
	}
	return stats
}

func (s *StatsService) fromCache(ctx context.Context, eventID string) *Stats {
	if s.Cache == nil {
		return nil
	}
	val, err := s.Cache.Get(ctx, statsCacheKey(eventID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("stats cache read failed for %s: %v", eventID, err))
		}
		return nil
	}
	var stats Stats
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *StatsService) toCache(ctx context.Context, eventID string, stats *Stats) {
	if s.Cache == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, statsCacheKey(eventID), data, s.TTL).Err(); err != nil && s.Logger != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("stats cache write failed for %s: %v", eventID, err))
	}
}
