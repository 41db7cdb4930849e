package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRunAfter(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 10, 30, 0, 0, time.UTC)

	scheduleWith := func(f Frequency) *CheckSchedule {
		return &CheckSchedule{ScheduleFrequency: &f}
	}

	t.Run("hourly", func(t *testing.T) {
		next := scheduleWith(FrequencyHourly).NextRunAfter(anchor)
		assert.Equal(t, anchor.Add(time.Hour), next)
	})

	t.Run("daily", func(t *testing.T) {
		next := scheduleWith(FrequencyDaily).NextRunAfter(anchor)
		assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), next)
	})

	t.Run("weekly", func(t *testing.T) {
		next := scheduleWith(FrequencyWeekly).NextRunAfter(anchor)
		assert.Equal(t, anchor.AddDate(0, 0, 7), next)
	})

	t.Run("monthly", func(t *testing.T) {
		// Jan 31 + 1 month normalizes per time.AddDate.
		next := scheduleWith(FrequencyMonthly).NextRunAfter(anchor)
		assert.Equal(t, anchor.AddDate(0, 1, 0), next)
	})

	t.Run("unknown frequency falls back to daily", func(t *testing.T) {
		next := scheduleWith(Frequency("fortnightly")).NextRunAfter(anchor)
		assert.Equal(t, anchor.AddDate(0, 0, 1), next)
	})

	t.Run("nil frequency does not advance", func(t *testing.T) {
		s := &CheckSchedule{}
		assert.Equal(t, anchor, s.NextRunAfter(anchor))
	})

	t.Run("anchor is processing time, not the stale due time", func(t *testing.T) {
		// A schedule overdue by days lands on anchor+period, not dueTime+period.
		f := FrequencyDaily
		s := &CheckSchedule{
			ScheduleFrequency: &f,
			NextScheduledAt:   anchor.AddDate(0, 0, -5),
		}
		assert.Equal(t, anchor.AddDate(0, 0, 1), s.NextRunAfter(anchor))
	})
}
