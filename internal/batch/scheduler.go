// Package batch runs enrichment over many organizations with bounded
// concurrency, periodic checkpoints, and resume-from-checkpoint.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/store"
)

// EnrichFunc runs one organization and returns its outcome. The record is
// mutated in place; the scheduler persists both afterwards.
type EnrichFunc func(ctx context.Context, rec *model.OrganizationRecord) *model.EnrichmentOutcome

// Options tunes the scheduler.
type Options struct {
	Concurrency        int
	CheckpointEvery    int
	CheckpointInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 10
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = 30 * time.Second
	}
	return o
}

// Report summarizes a finished (or interrupted) batch.
type Report struct {
	BatchID   string
	Completed int
	Failed    int
	Pending   int
	Duration  time.Duration
}

// Scheduler fans organizations out to workers. Source failures stay local
// to their organization; store failures abort the whole batch since every
// result written after one would race a broken checkpoint.
type Scheduler struct {
	store  store.Store
	enrich EnrichFunc
	opts   Options
}

// New creates a scheduler.
func New(st store.Store, enrich EnrichFunc, opts Options) *Scheduler {
	return &Scheduler{store: st, enrich: enrich, opts: opts.withDefaults()}
}

// Start begins a fresh batch over the given organization ids.
func (s *Scheduler) Start(ctx context.Context, orgIDs []string) (*Report, error) {
	state := &model.BatchState{
		BatchID:     uuid.NewString(),
		Pending:     append([]string(nil), orgIDs...),
		Concurrency: s.opts.Concurrency,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveBatchState(ctx, state); err != nil {
		return nil, eris.Wrap(err, "batch: initial checkpoint")
	}
	return s.process(ctx, state)
}

// Resume continues the batch with the given id, or the most recent
// unfinished batch when id is empty. Only the pending set is reprocessed;
// completed and failed organizations are never rerun.
func (s *Scheduler) Resume(ctx context.Context, batchID string) (*Report, error) {
	var state *model.BatchState
	var err error
	if batchID == "" {
		state, err = s.store.LatestOpenBatch(ctx)
	} else {
		state, err = s.store.LoadBatchState(ctx, batchID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "batch: load checkpoint")
	}
	if state.Done {
		return nil, eris.Errorf("batch: %s already finished", state.BatchID)
	}
	if state.Concurrency > 0 {
		s.opts.Concurrency = state.Concurrency
	}

	zap.L().Info("resuming batch",
		zap.String("batch_id", state.BatchID),
		zap.Int("pending", len(state.Pending)),
		zap.Int("completed", len(state.Completed)),
	)
	return s.process(ctx, state)
}

// tracker guards the batch state while workers move ids between sets.
type tracker struct {
	mu    sync.Mutex
	state *model.BatchState
	dirty int
}

func (t *tracker) complete(id string, failed bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.state.Pending {
		if p == id {
			t.state.Pending = append(t.state.Pending[:i], t.state.Pending[i+1:]...)
			break
		}
	}
	if failed {
		t.state.Failed = append(t.state.Failed, id)
	} else {
		t.state.Completed = append(t.state.Completed, id)
	}
	t.dirty++
	return t.dirty
}

// snapshot returns a deep copy safe to persist while workers keep moving.
func (t *tracker) snapshot() *model.BatchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = 0
	cp := *t.state
	cp.Pending = append([]string(nil), t.state.Pending...)
	cp.Completed = append([]string(nil), t.state.Completed...)
	cp.Failed = append([]string(nil), t.state.Failed...)
	return &cp
}

func (s *Scheduler) process(ctx context.Context, state *model.BatchState) (*Report, error) {
	started := time.Now()
	tr := &tracker{state: state}
	pending := append([]string(nil), state.Pending...)

	zap.L().Info("processing batch",
		zap.String("batch_id", state.BatchID),
		zap.Int("organizations", len(pending)),
		zap.Int("concurrency", s.opts.Concurrency),
	)

	// Periodic checkpoint alongside the count-based one in the workers.
	checkpointCtx, stopCheckpoints := context.WithCancel(context.Background())
	var checkpointWG sync.WaitGroup
	checkpointWG.Add(1)
	go func() {
		defer checkpointWG.Done()
		ticker := time.NewTicker(s.opts.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-checkpointCtx.Done():
				return
			case <-ticker.C:
				if err := s.checkpoint(tr); err != nil {
					zap.L().Error("periodic checkpoint failed", zap.Error(err))
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, orgID := range pending {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			log := zap.L().With(zap.String("org_id", orgID), zap.String("batch_id", state.BatchID))

			rec, err := s.store.GetOrganization(gctx, orgID)
			if errors.Is(err, store.ErrNotFound) {
				// A checkpoint can outlive its rows when organizations are
				// deleted between runs. That is a per-organization condition,
				// not a broken store.
				log.Warn("organization no longer exists, marking failed")
				if dirty := tr.complete(orgID, true); dirty >= s.opts.CheckpointEvery {
					if err := s.checkpoint(tr); err != nil {
						return eris.Wrap(err, "batch: checkpoint")
					}
				}
				return nil
			}
			if err != nil {
				// A store that cannot read is a store that cannot
				// checkpoint; abort the batch.
				return eris.Wrapf(err, "batch: load organization %s", orgID)
			}

			out := s.enrich(gctx, rec)

			if err := s.store.UpsertOrganization(gctx, rec); err != nil {
				return eris.Wrapf(err, "batch: save organization %s", orgID)
			}
			if err := s.store.AppendOutcome(gctx, out); err != nil {
				return eris.Wrapf(err, "batch: save outcome %s", out.RunID)
			}

			failed := out.Status == model.OutcomeFailed
			if failed {
				log.Warn("organization failed", zap.String("run_id", out.RunID))
			} else {
				log.Info("organization finished",
					zap.String("status", string(out.Status)),
					zap.Int("fields_updated", len(out.FieldsUpdated)),
				)
			}

			if dirty := tr.complete(orgID, failed); dirty >= s.opts.CheckpointEvery {
				if err := s.checkpoint(tr); err != nil {
					return eris.Wrap(err, "batch: checkpoint")
				}
			}
			return nil
		})
	}

	runErr := g.Wait()
	stopCheckpoints()
	checkpointWG.Wait()

	final := tr.snapshot()
	final.Done = len(final.Pending) == 0 && runErr == nil
	// The final save uses a fresh context: an interrupt must still leave a
	// resumable checkpoint behind.
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.SaveBatchState(saveCtx, final); err != nil {
		if runErr == nil {
			runErr = err
		}
		zap.L().Error("final checkpoint failed", zap.Error(err))
	}

	report := &Report{
		BatchID:   final.BatchID,
		Completed: len(final.Completed),
		Failed:    len(final.Failed),
		Pending:   len(final.Pending),
		Duration:  time.Since(started),
	}
	zap.L().Info("batch finished",
		zap.String("batch_id", report.BatchID),
		zap.Int("completed", report.Completed),
		zap.Int("failed", report.Failed),
		zap.Int("pending", report.Pending),
		zap.Duration("duration", report.Duration),
	)
	if runErr != nil {
		return report, eris.Wrap(runErr, "batch processing")
	}
	return report, nil
}

func (s *Scheduler) checkpoint(tr *tracker) error {
	snap := tr.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.store.SaveBatchState(ctx, snap)
}
