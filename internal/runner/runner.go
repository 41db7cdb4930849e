package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/config"
	"github.com/reviewpulse/credits-server/internal/credits"
	"github.com/reviewpulse/credits-server/internal/executor"
	"github.com/reviewpulse/credits-server/internal/model"
	"github.com/reviewpulse/credits-server/internal/notify"
	"github.com/reviewpulse/credits-server/internal/repository"
)

// Per-schedule outcome statuses reported in the pass summary.
const (
	StatusSuccess             = "success"
	StatusPartial             = "partial_success"
	StatusSkippedNoSubject    = "skipped_no_subject"
	StatusInsufficientCredits = "insufficient_credits"
	StatusError               = "error"
)

// CreditService is the slice of the ledger the runner consumes.
type CreditService interface {
	EnsureBalance(ctx context.Context, accountID string) error
	CheckCredits(ctx context.Context, accountID string, required int64) (*credits.CreditCheck, error)
	Debit(ctx context.Context, accountID string, amount int64, params credits.DebitParams) error
	RefundFeature(ctx context.Context, accountID string, amount int64, idempotencyKey string, params credits.RefundParams) error
}

type RankChecker interface {
	Run(ctx context.Context, group *model.KeywordGroup, keywords []model.TrackedKeyword, targetDomain string) *executor.Result
}

type LLMChecker interface {
	Run(ctx context.Context, keyword *model.LLMKeyword, questions []string, targetDomain string) *executor.Result
}

// ScheduleOutcome is one schedule's entry in the pass summary.
type ScheduleOutcome struct {
	ScheduleID      string `json:"scheduleId"`
	SubjectID       string `json:"subjectId"`
	AccountID       string `json:"accountId"`
	CreditsUsed     int64  `json:"creditsUsed"`
	ChecksPerformed int    `json:"checksPerformed"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
}

// Summary is the machine-readable result of one pass, meant for operational
// monitoring.
type Summary struct {
	Feature             model.FeatureType `json:"feature"`
	StartedAt           time.Time         `json:"startedAt"`
	FinishedAt          time.Time         `json:"finishedAt"`
	Processed           int               `json:"processed"`
	Skipped             int               `json:"skipped"`
	InsufficientCredits int               `json:"insufficientCredits"`
	Errors              int               `json:"errors"`
	Details             []ScheduleOutcome `json:"details"`
}

func (s *Summary) tally(outcome ScheduleOutcome) {
	s.Details = append(s.Details, outcome)
	switch outcome.Status {
	case StatusSuccess, StatusPartial:
		s.Processed++
	case StatusSkippedNoSubject:
		s.Skipped++
	case StatusInsufficientCredits:
		s.InsufficientCredits++
	default:
		s.Errors++
	}
}

// Runner drives due schedules through discovery, cost gating, execution and
// reconciliation. Schedules are processed strictly sequentially within one
// pass; no failure in one schedule's processing escapes into the pass loop,
// and the schedule clock advances on every exit path.
type Runner struct {
	schedules       repository.ScheduleRepository
	groups          repository.KeywordGroupRepository
	llmKeywords     repository.LLMKeywordRepository
	profiles        repository.ProfileRepository
	ledger          CreditService
	rank            RankChecker
	llm             LLMChecker
	notifier        notify.Dispatcher
	scheduleDelay   time.Duration
	warningThrottle time.Duration

	now func() time.Time
}

func New(
	schedules repository.ScheduleRepository,
	groups repository.KeywordGroupRepository,
	llmKeywords repository.LLMKeywordRepository,
	profiles repository.ProfileRepository,
	ledger CreditService,
	rank RankChecker,
	llm LLMChecker,
	notifier notify.Dispatcher,
	scheduleDelay time.Duration,
	warningThrottle time.Duration,
) *Runner {
	return &Runner{
		schedules:       schedules,
		groups:          groups,
		llmKeywords:     llmKeywords,
		profiles:        profiles,
		ledger:          ledger,
		rank:            rank,
		llm:             llm,
		notifier:        notifier,
		scheduleDelay:   scheduleDelay,
		warningThrottle: warningThrottle,
		now:             time.Now,
	}
}

// RunRankPass processes every due rank-tracking schedule. It fails only when
// the due set cannot be enumerated at all.
func (r *Runner) RunRankPass(ctx context.Context) (*Summary, error) {
	return r.runPass(ctx, model.FeatureRankTracking, r.processRankSchedule)
}

// RunLLMPass processes every due LLM-visibility schedule.
func (r *Runner) RunLLMPass(ctx context.Context) (*Summary, error) {
	return r.runPass(ctx, model.FeatureLLMVisibility, r.processLLMSchedule)
}

func (r *Runner) runPass(ctx context.Context, feature model.FeatureType, process func(context.Context, *model.CheckSchedule) ScheduleOutcome) (*Summary, error) {
	summary := &Summary{
		Feature:   feature,
		StartedAt: r.now(),
		Details:   []ScheduleOutcome{},
	}

	due, err := r.schedules.FindDue(ctx, feature, summary.StartedAt, config.MaxSchedulesPerPass)
	if err != nil {
		return nil, fmt.Errorf("find due schedules: %w", err)
	}

	log.Info().
		Str("feature", string(feature)).
		Int("due", len(due)).
		Msg("scheduled pass started")

	for i := range due {
		if i > 0 {
			r.pause(ctx)
		}
		summary.tally(process(ctx, &due[i]))
	}

	summary.FinishedAt = r.now()

	log.Info().
		Str("feature", string(feature)).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("insufficientCredits", summary.InsufficientCredits).
		Int("errors", summary.Errors).
		Msg("scheduled pass finished")

	return summary, nil
}

func (r *Runner) processRankSchedule(ctx context.Context, schedule *model.CheckSchedule) (outcome ScheduleOutcome) {
	outcome = ScheduleOutcome{
		ScheduleID: schedule.ID,
		SubjectID:  schedule.SubjectID,
		AccountID:  schedule.AccountID,
	}
	startedAt := r.now()

	// The clock advance is unconditional: every exit path, including a
	// panic, leaves the schedule due at its next slot rather than this one.
	// A panic after the debit is a run that produced nothing, so the charge
	// is reversed before advancing.
	var debitedKey string
	var debitedCost int64
	defer func() {
		if p := recover(); p != nil {
			outcome.Status = StatusError
			outcome.Error = fmt.Sprintf("panic: %v", p)
			log.Error().Str("scheduleId", schedule.ID).Msgf("schedule processing panicked: %v", p)
			r.refundAbortedRun(ctx, schedule, model.FeatureRankTracking, debitedCost, debitedKey)
		}
		r.advance(ctx, schedule, startedAt)
	}()

	group, err := r.groups.FindByID(ctx, schedule.SubjectID)
	if err != nil {
		return r.failed(outcome, fmt.Errorf("load keyword group: %w", err))
	}
	if group == nil {
		return r.skipped(outcome, "keyword group missing")
	}

	keywords, err := r.groups.FindKeywordsByGroupID(ctx, group.ID)
	if err != nil {
		return r.failed(outcome, fmt.Errorf("load keywords: %w", err))
	}
	if len(keywords) == 0 {
		return r.skipped(outcome, "keyword group has no keywords")
	}

	targetDomain, skipReason, err := r.targetDomain(ctx, schedule.AccountID)
	if err != nil {
		return r.failed(outcome, err)
	}
	if skipReason != "" {
		return r.skipped(outcome, skipReason)
	}

	cost, err := credits.RankCheckCost(len(keywords))
	if err != nil {
		return r.failed(outcome, fmt.Errorf("compute cost: %w", err))
	}

	debited, outcome, ok := r.debit(ctx, schedule, cost, credits.DebitParams{
		FeatureType: model.FeatureRankTracking,
		Metadata: map[string]any{
			"scheduleId": schedule.ID,
			"groupId":    group.ID,
			"keywords":   len(keywords),
		},
		Description: fmt.Sprintf("Scheduled rank check: %s (%d keywords)", group.Name, len(keywords)),
	}, outcome)
	if !ok {
		return outcome
	}
	debitedKey, debitedCost = debited, cost

	result := r.rank.Run(ctx, group, keywords, targetDomain)
	return r.reconcile(ctx, schedule, model.FeatureRankTracking, cost, debited, result, outcome)
}

func (r *Runner) processLLMSchedule(ctx context.Context, schedule *model.CheckSchedule) (outcome ScheduleOutcome) {
	outcome = ScheduleOutcome{
		ScheduleID: schedule.ID,
		SubjectID:  schedule.SubjectID,
		AccountID:  schedule.AccountID,
	}
	startedAt := r.now()

	var debitedKey string
	var debitedCost int64
	defer func() {
		if p := recover(); p != nil {
			outcome.Status = StatusError
			outcome.Error = fmt.Sprintf("panic: %v", p)
			log.Error().Str("scheduleId", schedule.ID).Msgf("schedule processing panicked: %v", p)
			r.refundAbortedRun(ctx, schedule, model.FeatureLLMVisibility, debitedCost, debitedKey)
		}
		r.advance(ctx, schedule, startedAt)
	}()

	keyword, err := r.llmKeywords.FindByID(ctx, schedule.SubjectID)
	if err != nil {
		return r.failed(outcome, fmt.Errorf("load llm keyword: %w", err))
	}
	if keyword == nil {
		return r.skipped(outcome, "llm keyword missing")
	}

	questions, err := keyword.QuestionList()
	if err != nil {
		return r.failed(outcome, fmt.Errorf("decode questions: %w", err))
	}
	if len(questions) == 0 {
		return r.skipped(outcome, "llm keyword has no questions")
	}
	if len(keyword.Providers) == 0 {
		return r.skipped(outcome, "llm keyword has no providers")
	}

	targetDomain, skipReason, err := r.targetDomain(ctx, schedule.AccountID)
	if err != nil {
		return r.failed(outcome, err)
	}
	if skipReason != "" {
		return r.skipped(outcome, skipReason)
	}

	cost, err := credits.LLMVisibilityCost(len(questions), keyword.ProviderIDs())
	if err != nil {
		return r.failed(outcome, fmt.Errorf("compute cost: %w", err))
	}

	debited, outcome, ok := r.debit(ctx, schedule, cost, credits.DebitParams{
		FeatureType: model.FeatureLLMVisibility,
		Metadata: map[string]any{
			"scheduleId": schedule.ID,
			"keywordId":  keyword.ID,
			"questions":  len(questions),
			"providers":  len(keyword.Providers),
		},
		Description: fmt.Sprintf("Scheduled LLM visibility check: %s", keyword.Keyword),
	}, outcome)
	if !ok {
		return outcome
	}
	debitedKey, debitedCost = debited, cost

	result := r.llm.Run(ctx, keyword, questions, targetDomain)
	return r.reconcile(ctx, schedule, model.FeatureLLMVisibility, cost, debited, result, outcome)
}

// targetDomain resolves the account's business profile. A missing profile or
// empty website is a configuration state, not a fault.
func (r *Runner) targetDomain(ctx context.Context, accountID string) (domain, skipReason string, err error) {
	profile, err := r.profiles.FindByAccountID(ctx, accountID)
	if err != nil {
		return "", "", fmt.Errorf("load business profile: %w", err)
	}
	if profile == nil || profile.Website == "" {
		return "", "business profile has no website", nil
	}
	return profile.Website, "", nil
}

// debit gates the run on the account balance. The pre-check is advisory; the
// Debit call re-verifies inside its atomic section, so a shortfall race lands
// on the same skip path. Returns the idempotency key used and whether
// processing should continue.
func (r *Runner) debit(ctx context.Context, schedule *model.CheckSchedule, cost int64, params credits.DebitParams, outcome ScheduleOutcome) (string, ScheduleOutcome, bool) {
	if err := r.ledger.EnsureBalance(ctx, schedule.AccountID); err != nil {
		return "", r.failed(outcome, fmt.Errorf("ensure balance: %w", err)), false
	}

	check, err := r.ledger.CheckCredits(ctx, schedule.AccountID, cost)
	if err != nil {
		return "", r.failed(outcome, fmt.Errorf("check credits: %w", err)), false
	}
	if !check.HasCredits {
		return "", r.insufficient(ctx, schedule, params.FeatureType, check.Required, check.Available, outcome), false
	}

	// Deterministic per-run key: a retried debit of this run reuses it, a
	// future pass mints a new token and never collides.
	params.IdempotencyKey = fmt.Sprintf("%s:%s:%s:%s", params.FeatureType, schedule.AccountID, schedule.ID, uuid.NewString())

	err = r.ledger.Debit(ctx, schedule.AccountID, cost, params)
	var insufficientErr *credits.InsufficientCreditsError
	switch {
	case err == nil:
		return params.IdempotencyKey, outcome, true
	case errors.As(err, &insufficientErr):
		// Lost the race since the pre-check; no partial debit occurred.
		return "", r.insufficient(ctx, schedule, params.FeatureType, insufficientErr.Required, insufficientErr.Available, outcome), false
	case errors.Is(err, credits.ErrIdempotencyReplay):
		// The charge was already applied on a prior retry of this run.
		return params.IdempotencyKey, outcome, true
	default:
		return "", r.failed(outcome, fmt.Errorf("debit credits: %w", err)), false
	}
}

// reconcile settles the charge against the execution outcome: a total failure
// refunds the exact debit under the same logical key, anything else keeps the
// charge (cost is per scheduled run, not per unit).
func (r *Runner) reconcile(ctx context.Context, schedule *model.CheckSchedule, feature model.FeatureType, cost int64, idempotencyKey string, result *executor.Result, outcome ScheduleOutcome) ScheduleOutcome {
	outcome.ChecksPerformed = result.ChecksPerformed

	if result.TotalFailure() {
		err := r.ledger.RefundFeature(ctx, schedule.AccountID, cost, idempotencyKey, credits.RefundParams{
			FeatureType: feature,
			Metadata:    map[string]any{"scheduleId": schedule.ID},
			Description: fmt.Sprintf("Refund: all checks failed for schedule %s", schedule.ID),
		})
		if err != nil && !errors.Is(err, credits.ErrIdempotencyReplay) {
			log.Error().Err(err).Str("scheduleId", schedule.ID).Msg("refund failed after total execution failure")
		}
		outcome.Status = StatusError
		outcome.Error = strings.Join(result.Errors, "; ")
		return outcome
	}

	outcome.CreditsUsed = cost
	if len(result.Errors) > 0 {
		outcome.Status = StatusPartial
		outcome.Error = strings.Join(result.Errors, "; ")
	} else {
		outcome.Status = StatusSuccess
	}
	return outcome
}

// refundAbortedRun reverses the charge for a run that panicked after the
// debit. No key means the panic happened before any charge was taken.
func (r *Runner) refundAbortedRun(ctx context.Context, schedule *model.CheckSchedule, feature model.FeatureType, cost int64, idempotencyKey string) {
	if idempotencyKey == "" {
		return
	}
	err := r.ledger.RefundFeature(ctx, schedule.AccountID, cost, idempotencyKey, credits.RefundParams{
		FeatureType: feature,
		Metadata:    map[string]any{"scheduleId": schedule.ID},
		Description: fmt.Sprintf("Refund: check run aborted for schedule %s", schedule.ID),
	})
	if err != nil && !errors.Is(err, credits.ErrIdempotencyReplay) {
		log.Error().Err(err).Str("scheduleId", schedule.ID).Msg("refund failed after aborted run")
	}
}

// insufficient records the skip and notifies the account owner, throttled so
// an exhausted account does not get one warning per poll cycle.
func (r *Runner) insufficient(ctx context.Context, schedule *model.CheckSchedule, feature model.FeatureType, required, available int64, outcome ScheduleOutcome) ScheduleOutcome {
	outcome.Status = StatusInsufficientCredits
	outcome.Error = fmt.Sprintf("required %d credits, available %d", required, available)

	now := r.now()
	if schedule.LastCreditWarningSentAt != nil && now.Sub(*schedule.LastCreditWarningSentAt) < r.warningThrottle {
		return outcome
	}

	err := r.notifier.Notify(ctx, schedule.AccountID, notify.KindCreditCheckSkipped, notify.CreditSkipPayload{
		Required:  required,
		Available: available,
		Feature:   string(feature),
	})
	if err != nil {
		log.Error().Err(err).Str("scheduleId", schedule.ID).Msg("credit warning dispatch failed")
		return outcome
	}

	if err := r.schedules.MarkCreditWarningSent(ctx, schedule.ID, now); err != nil {
		log.Error().Err(err).Str("scheduleId", schedule.ID).Msg("failed to record credit warning timestamp")
	}
	return outcome
}

func (r *Runner) skipped(outcome ScheduleOutcome, reason string) ScheduleOutcome {
	outcome.Status = StatusSkippedNoSubject
	outcome.Error = reason
	log.Info().Str("scheduleId", outcome.ScheduleID).Str("reason", reason).Msg("schedule skipped")
	return outcome
}

func (r *Runner) failed(outcome ScheduleOutcome, err error) ScheduleOutcome {
	outcome.Status = StatusError
	outcome.Error = err.Error()
	log.Error().Err(err).Str("scheduleId", outcome.ScheduleID).Msg("schedule processing failed")
	return outcome
}

// advance writes the next due time anchored at this pass's processing time.
func (r *Runner) advance(ctx context.Context, schedule *model.CheckSchedule, ranAt time.Time) {
	next := schedule.NextRunAfter(ranAt)
	if err := r.schedules.Advance(ctx, schedule.ID, ranAt, next); err != nil {
		log.Error().Err(err).Str("scheduleId", schedule.ID).Msg("failed to advance schedule")
	}
}

func (r *Runner) pause(ctx context.Context) {
	if r.scheduleDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(r.scheduleDelay):
	}
}
