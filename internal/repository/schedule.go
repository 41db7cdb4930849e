package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reviewpulse/credits-server/internal/model"
)

type ScheduleRepository interface {
	// FindDue returns enabled schedules of one feature family whose next due
	// time has passed, oldest first.
	FindDue(ctx context.Context, feature model.FeatureType, now time.Time, limit int) ([]model.CheckSchedule, error)
	// Advance writes the run bookkeeping. It is called exactly once per
	// processing pass per schedule, on every outcome.
	Advance(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error
	MarkCreditWarningSent(ctx context.Context, id string, at time.Time) error
}

type scheduleRepo struct {
	db sqlxDB
}

func NewScheduleRepository(db *sqlx.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) FindDue(ctx context.Context, feature model.FeatureType, now time.Time, limit int) ([]model.CheckSchedule, error) {
	var schedules []model.CheckSchedule
	err := r.db.SelectContext(ctx, &schedules, `
		SELECT * FROM check_schedules
		WHERE feature_type = $1
		  AND is_enabled = TRUE
		  AND schedule_frequency IS NOT NULL
		  AND next_scheduled_at <= $2
		ORDER BY next_scheduled_at ASC
		LIMIT $3
	`, feature, now, limit)
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepo) Advance(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE check_schedules SET
			last_scheduled_run_at = $2,
			next_scheduled_at = $3,
			updated_at = $4
		WHERE id = $1
	`, id, lastRunAt, nextRunAt, time.Now())
	return err
}

func (r *scheduleRepo) MarkCreditWarningSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE check_schedules SET
			last_credit_warning_sent_at = $2,
			updated_at = $3
		WHERE id = $1
	`, id, at, time.Now())
	return err
}
