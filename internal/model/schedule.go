package model

import (
	"time"
)

// CheckSchedule is a persisted recurring-check configuration. Both feature
// families share the table; SubjectID points at a keyword group or an LLM
// keyword depending on FeatureType.
//
// NextScheduledAt strictly advances on every processing pass, whatever the
// outcome, so a broken schedule is never reprocessed on the next poll cycle.
type CheckSchedule struct {
	ID                      string      `db:"id" json:"id"`
	AccountID               string      `db:"account_id" json:"accountId"`
	FeatureType             FeatureType `db:"feature_type" json:"featureType"`
	SubjectID               string      `db:"subject_id" json:"subjectId"`
	IsEnabled               bool        `db:"is_enabled" json:"isEnabled"`
	ScheduleFrequency       *Frequency  `db:"schedule_frequency" json:"scheduleFrequency,omitempty"`
	NextScheduledAt         time.Time   `db:"next_scheduled_at" json:"nextScheduledAt"`
	LastScheduledRunAt      *time.Time  `db:"last_scheduled_run_at" json:"lastScheduledRunAt,omitempty"`
	LastCreditWarningSentAt *time.Time  `db:"last_credit_warning_sent_at" json:"lastCreditWarningSentAt,omitempty"`
	CreatedAt               time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time   `db:"updated_at" json:"updatedAt"`
}

// NextRunAfter computes the follow-up due time anchored at the given moment.
// Anchoring at processing time trades calendar drift for a self-healing
// backlog; see Advance callers.
func (s *CheckSchedule) NextRunAfter(anchor time.Time) time.Time {
	if s.ScheduleFrequency == nil {
		return anchor
	}
	switch *s.ScheduleFrequency {
	case FrequencyHourly:
		return anchor.Add(time.Hour)
	case FrequencyDaily:
		return anchor.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return anchor.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return anchor.AddDate(0, 1, 0)
	default:
		return anchor.AddDate(0, 0, 1)
	}
}
