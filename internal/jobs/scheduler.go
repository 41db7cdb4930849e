package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/runner"
)

// PassRunner executes one scheduler pass for a feature.
type PassRunner interface {
	RunRankPass(ctx context.Context) (*runner.Summary, error)
	RunLLMPass(ctx context.Context) (*runner.Summary, error)
}

// PassLock guards a pass against concurrent runners.
type PassLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a lock for one feature's pass.
type LockFactory func(feature model.FeatureType) PassLock

// SchedulerTicker runs both check passes on a fixed interval. It is an
// alternative to the cron endpoints for deployments without an external
// scheduler, and shares the same advisory lock so the two never overlap.
type SchedulerTicker struct {
	runner   PassRunner
	locks    LockFactory
	interval time.Duration
	done     chan struct{}
}

func NewSchedulerTicker(r PassRunner, locks LockFactory, interval time.Duration) *SchedulerTicker {
	return &SchedulerTicker{
		runner:   r,
		locks:    locks,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (t *SchedulerTicker) Start() {
	go t.run()
	log.Info().Dur("interval", t.interval).Msg("scheduler ticker started")
}

func (t *SchedulerTicker) Stop() {
	close(t.done)
	log.Info().Msg("scheduler ticker stopped")
}

func (t *SchedulerTicker) run() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *SchedulerTicker) tick() {
	ctx := context.Background()
	t.runPass(ctx, model.FeatureRankTracking, t.runner.RunRankPass)
	t.runPass(ctx, model.FeatureLLMVisibility, t.runner.RunLLMPass)
}

func (t *SchedulerTicker) runPass(ctx context.Context, feature model.FeatureType, pass func(context.Context) (*runner.Summary, error)) {
	if t.locks != nil {
		lock := t.locks(feature)
		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			log.Warn().Err(err).Str("feature", string(feature)).Msg("pass lock unavailable, running without it")
		} else if !acquired {
			log.Info().Str("feature", string(feature)).Msg("pass already running elsewhere, skipping tick")
			return
		} else {
			defer lock.Release(ctx)
		}
	}

	summary, err := pass(ctx)
	if err != nil {
		log.Error().Err(err).Str("feature", string(feature)).Msg("scheduled pass failed")
		return
	}
	log.Info().
		Str("feature", string(feature)).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("insufficientCredits", summary.InsufficientCredits).
		Int("errors", summary.Errors).
		Msg("ticker pass finished")
}
