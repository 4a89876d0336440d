// Package pipeline wires acquisition, the feature store and the calculator
// into one cycle, plus the replay and warm-up jobs built on the same parts.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/globallink/internal/acquisition"
	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/calculator"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/pkg/logger"
)

// Stage names
const (
	StageHarvest = "harvest"
	StageUpdate  = "update"
	StageCompute = "compute"
)

// StageRecorder observes stage timing and results
type StageRecorder interface {
	StageDuration(stage string, d time.Duration)
	StageFailed(stage string)
	TechnicalSignals(n int)
	CycleCompleted(at time.Time)
}

type nopStages struct{}

func (nopStages) StageDuration(string, time.Duration) {}
func (nopStages) StageFailed(string)                  {}
func (nopStages) TechnicalSignals(int)                {}
func (nopStages) CycleCompleted(time.Time)            {}

// Result is what one run produced; fields of stages that did not run are zero
type Result struct {
	RunID        string                    `json:"run_id"`
	SnapshotPath string                    `json:"snapshot_path,omitempty"`
	Update       featurestore.UpdateResult `json:"update"`
	MatrixPath   string                    `json:"matrix_path,omitempty"`
	Failed       []string                  `json:"failed,omitempty"`
	Signals      int                       `json:"signals"`
}

// Cycle is acquire → update history → compute matrix
// ⭐ SSOT: stage 순서와 중단 규칙은 여기서만
type Cycle struct {
	harvester *acquisition.Harvester
	store     *featurestore.Store
	calc      *calculator.Calculator
	raw       *artifact.Store
	publisher Publisher
	stages    StageRecorder
	logger    *logger.Logger
}

// NewCycle creates a cycle over already-wired components
func NewCycle(h *acquisition.Harvester, store *featurestore.Store, calc *calculator.Calculator, raw *artifact.Store, log *logger.Logger) *Cycle {
	return &Cycle{
		harvester: h,
		store:     store,
		calc:      calc,
		raw:       raw,
		publisher: nopPublisher{},
		stages:    nopStages{},
		logger:    log.WithField("module", "pipeline"),
	}
}

// WithPublisher mirrors every persisted matrix to p
func (c *Cycle) WithPublisher(p Publisher) *Cycle {
	if p != nil {
		c.publisher = p
	}
	return c
}

// WithStageRecorder sets the stage recorder
func (c *Cycle) WithStageRecorder(r StageRecorder) *Cycle {
	if r != nil {
		c.stages = r
	}
	return c
}

// Run executes every stage in order. A stage error aborts the rest; the
// artifacts of completed stages stay on disk.
func (c *Cycle) Run(ctx context.Context) (*Result, error) {
	snap, res, err := c.harvest(ctx)
	if err != nil {
		return res, err
	}
	log := c.logger.WithCycle(snap.Meta.RunID)

	if err := c.update(ctx, snap, res); err != nil {
		return res, err
	}
	if err := c.compute(ctx, snap, res); err != nil {
		return res, err
	}

	c.stages.CycleCompleted(time.Now())
	log.WithFields(map[string]interface{}{
		"snapshot": res.SnapshotPath,
		"matrix":   res.MatrixPath,
		"failed":   len(res.Failed),
		"signals":  res.Signals,
	}).Info("Cycle completed")
	return res, nil
}

// RunHarvest acquires and persists a raw snapshot only
func (c *Cycle) RunHarvest(ctx context.Context) (*Result, error) {
	_, res, err := c.harvest(ctx)
	return res, err
}

// RunUpdate ingests the latest persisted snapshot into history
func (c *Cycle) RunUpdate(ctx context.Context) (*Result, error) {
	snap, err := c.latest()
	if err != nil {
		c.stages.StageFailed(StageUpdate)
		return nil, err
	}
	res := &Result{RunID: snap.Meta.RunID}
	return res, c.update(ctx, snap, res)
}

// RunCompute builds and persists the matrix from the latest persisted snapshot
func (c *Cycle) RunCompute(ctx context.Context) (*Result, error) {
	snap, err := c.latest()
	if err != nil {
		c.stages.StageFailed(StageCompute)
		return nil, err
	}
	res := &Result{RunID: snap.Meta.RunID}
	return res, c.compute(ctx, snap, res)
}

func (c *Cycle) latest() (*contracts.RawSnapshot, error) {
	var snap contracts.RawSnapshot
	if err := c.raw.ReadLatest(&snap); err != nil {
		return nil, &contracts.PersistenceError{Artifact: "raw_snapshot", Path: c.raw.LatestPath(), Err: err}
	}
	return &snap, nil
}

func (c *Cycle) harvest(ctx context.Context) (*contracts.RawSnapshot, *Result, error) {
	start := time.Now()
	snap, path, err := c.harvester.Harvest(ctx)
	c.stages.StageDuration(StageHarvest, time.Since(start))

	res := &Result{RunID: snap.Meta.RunID, SnapshotPath: path}
	if err != nil {
		c.stages.StageFailed(StageHarvest)
		c.logger.WithCycle(snap.Meta.RunID).WithError(err).Error("Harvest aborted")
		return snap, res, fmt.Errorf("%s: %w", StageHarvest, err)
	}
	return snap, res, nil
}

func (c *Cycle) update(ctx context.Context, snap *contracts.RawSnapshot, res *Result) error {
	start := time.Now()
	upd, err := c.store.Update(ctx, snap)
	c.stages.StageDuration(StageUpdate, time.Since(start))
	res.Update = upd

	if err != nil {
		c.stages.StageFailed(StageUpdate)
		c.logger.WithCycle(snap.Meta.RunID).WithError(err).Error("History update aborted")
		return fmt.Errorf("%s: %w", StageUpdate, err)
	}
	return nil
}

func (c *Cycle) compute(ctx context.Context, snap *contracts.RawSnapshot, res *Result) error {
	start := time.Now()
	defer func() { c.stages.StageDuration(StageCompute, time.Since(start)) }()

	m, err := c.calc.Compute(ctx, snap)
	if err == nil {
		res.MatrixPath, err = c.calc.Persist(m)
	}
	if err != nil {
		c.stages.StageFailed(StageCompute)
		c.logger.WithCycle(snap.Meta.RunID).WithError(err).Error("Compute aborted")
		return fmt.Errorf("%s: %w", StageCompute, err)
	}

	res.Failed = m.Failed()
	res.Signals = len(m.TechnicalMatrix)
	c.stages.TechnicalSignals(res.Signals)

	if err := c.publisher.Publish(ctx, m); err != nil {
		c.logger.WithCycle(snap.Meta.RunID).WithError(err).Warn("Matrix publish failed")
	}
	return nil
}
