package scheduler

import (
	"context"
	"time"
)

// Job is a unit of scheduled work
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Run(ctx context.Context) error
	// Schedule is a cron expression with a leading seconds field,
	// e.g. "0 */30 9-15 * * MON-FRI"
	Schedule() string
}

// JobResult is one execution of a job
type JobResult struct {
	JobName   string        `json:"job_name"`
	Trigger   string        `json:"trigger"` // cron, manual
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // previous run still active
	Error     string        `json:"error,omitempty"`
}

// historyLimit is how many results are kept per job
const historyLimit = 100

// JobHistory is the bounded execution history of one job
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest past the limit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}
}

// Latest returns up to n most recent results
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// Failures returns every failed, non-skipped result
func (h *JobHistory) Failures() []JobResult {
	failed := make([]JobResult, 0)
	for _, r := range h.Results {
		if !r.Success && !r.Skipped {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuccessRate is successes over executed (non-skipped) runs, 0 when none ran
func (h *JobHistory) SuccessRate() float64 {
	var ran, ok int
	for _, r := range h.Results {
		if r.Skipped {
			continue
		}
		ran++
		if r.Success {
			ok++
		}
	}
	if ran == 0 {
		return 0
	}
	return float64(ok) / float64(ran)
}
