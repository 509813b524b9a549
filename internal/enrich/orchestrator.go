// Package enrich runs the per-organization enrichment state machine:
// probe stages in plan order, validate and aggregate after each wave, and
// stop as soon as every required field clears the confidence threshold.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orgdesk/enrich-cli/internal/consensus"
	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/resilience"
	"github.com/orgdesk/enrich-cli/internal/source"
)

// Phase is the orchestrator state. Terminal phases map onto outcome status.
type Phase string

const (
	PhaseInitial     Phase = "initial"
	PhaseProbing     Phase = "probing"
	PhaseValidating  Phase = "validating"
	PhaseAggregating Phase = "aggregating"
	PhaseSatisfied   Phase = "satisfied"
	PhasePartial     Phase = "partial"
	PhaseExhausted   Phase = "exhausted"
)

// Orchestrator drives one organization through the probe plan. Safe for
// concurrent use across organizations; the record itself is owned by a
// single Run call.
type Orchestrator struct {
	registry *source.Registry
	agg      *consensus.Aggregator
	ctrl     *resilience.Controller
	plan     *Plan
}

// NewOrchestrator creates an orchestrator over the given adapters.
func NewOrchestrator(registry *source.Registry, agg *consensus.Aggregator, ctrl *resilience.Controller, plan *Plan) *Orchestrator {
	if plan == nil {
		plan = DefaultPlan()
	}
	return &Orchestrator{registry: registry, agg: agg, ctrl: ctrl, plan: plan}
}

// Run enriches one record in place and returns the audit outcome. Source
// failures are never fatal to the run; the only hard stop is the
// per-organization budget.
func (o *Orchestrator) Run(ctx context.Context, rec *model.OrganizationRecord) *model.EnrichmentOutcome {
	started := time.Now().UTC()
	out := &model.EnrichmentOutcome{
		RunID:      uuid.NewString(),
		OrgID:      rec.ID,
		Confidence: make(map[model.FieldKey]float64),
		StartedAt:  started,
	}

	if budget := o.plan.OrgTimeout(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	required := o.plan.Required()
	threshold := o.plan.Defaults.ConfidenceThreshold
	o.trace(out, PhaseInitial, "", "", "run started", 0)

	budgetSpent := false
	for _, stage := range o.plan.Stages {
		if rec.Satisfied(required, threshold) {
			break
		}
		if ctx.Err() != nil {
			budgetSpent = true
			break
		}

		missing := rec.Missing(required)
		if skip, why := o.stageSkipped(stage, rec, missing); skip {
			o.trace(out, PhaseProbing, "", "", "stage "+stage.Name+" skipped: "+why, 0)
			continue
		}

		candidates := o.probeStage(ctx, stage, rec, missing, out)
		if ctx.Err() != nil {
			budgetSpent = true
		}
		if len(candidates) == 0 {
			continue
		}

		o.trace(out, PhaseValidating, "", "", stage.Name, 0)
		o.aggregate(ctx, candidates, rec, out)
	}

	o.finish(out, rec, required, threshold, budgetSpent)
	out.Duration = time.Since(started)
	return out
}

// stageSkipped reports whether a stage cannot or need not run: none of its
// sources cover a missing field, or a required dependency field is absent.
func (o *Orchestrator) stageSkipped(stage Stage, rec *model.OrganizationRecord, missing []model.FieldKey) (bool, string) {
	for _, f := range stage.Requires {
		if _, ok := rec.Field(model.FieldKey(f)); !ok {
			return true, "needs " + f
		}
	}

	for _, name := range stage.Sources {
		a, err := o.registry.Get(name)
		if err != nil {
			continue
		}
		if source.Covers(a, missing) {
			return false, ""
		}
	}
	return true, "no source covers a missing field"
}

// probeStage runs the stage's sources concurrently and collects their
// candidates. Each probe goes through the retry controller; an unavailable
// source (open circuit, exhausted retries) is traced and skipped.
func (o *Orchestrator) probeStage(ctx context.Context, stage Stage, rec *model.OrganizationRecord, missing []model.FieldKey, out *model.EnrichmentOutcome) []model.Candidate {
	q := source.Query{Org: rec, Missing: missing}

	var mu sync.Mutex
	var collected []model.Candidate

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range stage.Sources {
		adapter, err := o.registry.Get(name)
		if err != nil {
			zap.L().Warn("plan names unknown source", zap.String("source", name))
			continue
		}
		if !source.Covers(adapter, missing) {
			continue
		}

		g.Go(func() error {
			probeStart := time.Now()
			cands, err := resilience.ExecuteVal(gctx, o.ctrl, adapter.Name(), func(ctx context.Context) ([]model.Candidate, error) {
				return adapter.Probe(ctx, q)
			})
			dur := time.Since(probeStart)

			mu.Lock()
			defer mu.Unlock()
			out.SourcesQueried = append(out.SourcesQueried, adapter.Name())
			switch {
			case err == nil:
				o.trace(out, PhaseProbing, adapter.Name(), "", "ok", dur)
				collected = append(collected, cands...)
			case resilience.Unavailable(err):
				o.trace(out, PhaseProbing, adapter.Name(), "", "unavailable: "+err.Error(), dur)
			default:
				o.trace(out, PhaseProbing, adapter.Name(), "", "failed: "+err.Error(), dur)
			}
			// Source failures stay local to the source.
			return nil
		})
	}
	_ = g.Wait()
	return collected
}

// aggregate resolves consensus per field and records provenance.
func (o *Orchestrator) aggregate(ctx context.Context, candidates []model.Candidate, rec *model.OrganizationRecord, out *model.EnrichmentOutcome) {
	byField := make(map[model.FieldKey][]model.Candidate)
	for _, c := range candidates {
		byField[c.Field] = append(byField[c.Field], c)
	}

	for _, field := range model.AllFields() {
		cands, ok := byField[field]
		if !ok {
			continue
		}

		prev, hadPrev := rec.Field(field)
		res := o.agg.Resolve(ctx, field, cands, rec)
		o.trace(out, PhaseAggregating, "", field, res.Reason, 0)
		if res.Winner == nil {
			continue
		}

		prov := model.FieldProvenance{
			Field:        field,
			WinnerSource: res.Winner.Source,
			WinnerValue:  res.Winner.Value,
			Tier:         res.Verdict.Tier,
			Confidence:   res.Verdict.Tier.Confidence(),
			ValueChanged: res.Applied,
			Attempts:     res.Attempts,
		}
		if hadPrev {
			prov.PreviousValue = prev.Value
		}
		out.Provenance = append(out.Provenance, prov)

		if res.Applied {
			out.FieldsUpdated = append(out.FieldsUpdated, field)
		}
	}
}

// finish assigns the terminal phase and outcome status.
func (o *Orchestrator) finish(out *model.EnrichmentOutcome, rec *model.OrganizationRecord, required []model.FieldKey, threshold float64, budgetSpent bool) {
	for _, k := range required {
		if fs, ok := rec.Field(k); ok {
			out.Confidence[k] = fs.Confidence
		}
	}

	switch {
	case rec.Satisfied(required, threshold):
		out.Status = model.OutcomeEnriched
		o.trace(out, PhaseSatisfied, "", "", "all required fields at threshold", 0)
	case len(rec.Missing(required)) < len(required):
		out.Status = model.OutcomePartial
		detail := "sources exhausted with fields still missing"
		if budgetSpent {
			detail = "probing budget spent"
		}
		o.trace(out, PhasePartial, "", "", detail, 0)
	default:
		out.Status = model.OutcomeFailed
		out.Error = "no required field could be satisfied"
		o.trace(out, PhaseExhausted, "", "", out.Error, 0)
	}

	zap.L().Info("enrichment run finished",
		zap.String("org_id", rec.ID),
		zap.String("run_id", out.RunID),
		zap.String("status", string(out.Status)),
		zap.Int("fields_updated", len(out.FieldsUpdated)),
		zap.Duration("duration", time.Since(out.StartedAt)),
	)
}

func (o *Orchestrator) trace(out *model.EnrichmentOutcome, state Phase, src string, field model.FieldKey, detail string, dur time.Duration) {
	out.Trace = append(out.Trace, model.TraceEntry{
		At:         time.Now().UTC(),
		State:      string(state),
		Source:     src,
		Field:      field,
		Detail:     detail,
		DurationMS: dur.Milliseconds(),
	})
}
