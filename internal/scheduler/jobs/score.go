package jobs

import (
	"context"
	"time"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

// ScoreJobName is the scheduler name of the SM-Score batch
const ScoreJobName = "sm_score"

// ScoreRunner runs one full scoring pass
type ScoreRunner interface {
	Run(ctx context.Context) (*contracts.ScoreBoard, error)
}

// TradingCalendar gates the job to trading days
type TradingCalendar interface {
	IsTradingDay(date time.Time) bool
	Today(now time.Time) time.Time
}

// ScoreJob refreshes every strategy's SM-Score on a nightly schedule,
// skipping weekends and holidays
type ScoreJob struct {
	scorer   ScoreRunner
	calendar TradingCalendar
	schedule string
	timeout  time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// NewScoreJob creates a new scoring job
func NewScoreJob(scorer ScoreRunner, cal TradingCalendar, schedule string, timeout time.Duration, log *logger.Logger) *ScoreJob {
	return &ScoreJob{
		scorer:   scorer,
		calendar: cal,
		schedule: schedule,
		timeout:  timeout,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *ScoreJob) Name() string {
	return ScoreJobName
}

// Schedule returns the cron schedule (SCORE_SCHEDULE)
func (j *ScoreJob) Schedule() string {
	return j.schedule
}

// Timeout bounds one scoring attempt; a cancelled pass commits nothing
func (j *ScoreJob) Timeout() time.Duration {
	return j.timeout
}

// Run executes the scoring pass on trading days
func (j *ScoreJob) Run(ctx context.Context) error {
	today := j.calendar.Today(j.now())
	if !j.calendar.IsTradingDay(today) {
		j.logger.WithDate(today).Info("Not a trading day, skipping SM-Score pass")
		return nil
	}

	board, err := j.scorer.Run(ctx)
	if err != nil {
		return err
	}

	j.logger.WithDate(today).WithField("population", len(board.Scores)).Info("SM-Score pass completed")

	return nil
}
