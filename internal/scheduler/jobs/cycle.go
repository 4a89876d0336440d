package jobs

import (
	"context"

	"github.com/wonny/globallink/internal/pipeline"
	"github.com/wonny/globallink/pkg/logger"
)

// CycleRunner is the part of pipeline.Cycle the job needs
type CycleRunner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// CycleJob runs one full acquisition → history → matrix cycle
// ⭐ SSOT: 정기 수집 스케줄은 이 Job에서만
type CycleJob struct {
	cycle    CycleRunner
	schedule string
	logger   *logger.Logger
}

// NewCycleJob creates the cycle job on the configured schedule
func NewCycleJob(cycle CycleRunner, schedule string, log *logger.Logger) *CycleJob {
	return &CycleJob{
		cycle:    cycle,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CycleJob) Name() string {
	return "cycle"
}

// Schedule returns the cron schedule (trading hours by default)
func (j *CycleJob) Schedule() string {
	return j.schedule
}

// Run executes one cycle
func (j *CycleJob) Run(ctx context.Context) error {
	res, err := j.cycle.Run(ctx)
	if err != nil {
		return err
	}

	if len(res.Failed) > 0 {
		j.logger.WithFields(map[string]interface{}{
			"run_id": res.RunID,
			"failed": res.Failed,
		}).Warn("Cycle completed with failed indicators")
	}
	return nil
}
