package consensus

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/validate"
)

// Group is a set of candidates whose normalized values agree.
type Group struct {
	Key        string
	Candidates []model.Candidate
	Score      float64
}

// Resolution is the outcome of consensus for one field.
type Resolution struct {
	Field   model.FieldKey
	Winner  *model.Candidate
	Verdict model.ValidationVerdict
	// Applied reports whether the record was updated. A winning candidate
	// that loses to the overwrite rule is still recorded in the audit trail.
	Applied  bool
	Reason   string
	Attempts []model.Candidate
}

// Aggregator scores agreement groups and applies winners to the record
// under the overwrite rule.
type Aggregator struct {
	validator *validate.Validator
	// priority maps source id to its deployment priority rank; lower is
	// higher priority. Unknown sources rank last.
	priority map[string]int
}

// New creates an aggregator. sourceOrder lists source ids from highest to
// lowest priority.
func New(validator *validate.Validator, sourceOrder []string) *Aggregator {
	priority := make(map[string]int, len(sourceOrder))
	for i, s := range sourceOrder {
		priority[s] = i
	}
	return &Aggregator{validator: validator, priority: priority}
}

func (a *Aggregator) rank(source string) int {
	if r, ok := a.priority[source]; ok {
		return r
	}
	return len(a.priority)
}

// Resolve groups the candidates, scores each group as
// count * avg(raw_confidence), and walks groups best-first until one
// representative survives validation. The accepted value is applied to the
// record only if the overwrite rule allows it.
func (a *Aggregator) Resolve(ctx context.Context, field model.FieldKey, candidates []model.Candidate, rec *model.OrganizationRecord) Resolution {
	res := Resolution{Field: field, Attempts: candidates}
	if len(candidates) == 0 {
		res.Reason = "no candidates"
		return res
	}

	groups := a.groupAndScore(field, candidates)

	for _, g := range groups {
		winner := a.representative(g)
		verdict := a.validator.Validate(ctx, field, winner.Value, rec)
		if !verdict.Accepted {
			zap.L().Debug("consensus: group rejected by validator",
				zap.String("field", string(field)),
				zap.String("value", winner.Value),
				zap.String("reason", verdict.Reason),
			)
			continue
		}

		res.Winner = &winner
		res.Verdict = verdict
		res.Applied, res.Reason = a.apply(field, winner, verdict, rec)
		return res
	}

	res.Reason = "all groups failed validation"
	return res
}

// groupAndScore buckets candidates by normalized value and orders groups by
// score, breaking ties in favor of the group containing the
// highest-priority source.
func (a *Aggregator) groupAndScore(field model.FieldKey, candidates []model.Candidate) []Group {
	byKey := make(map[string]*Group)
	var order []string
	for _, c := range candidates {
		key := Normalize(field, c.Value)
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.Candidates = append(g.Candidates, c)
	}

	groups := make([]Group, 0, len(byKey))
	for _, key := range order {
		g := byKey[key]
		var sum float64
		for _, c := range g.Candidates {
			sum += c.RawConfidence
		}
		g.Score = float64(len(g.Candidates)) * (sum / float64(len(g.Candidates)))
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return a.bestRank(groups[i]) < a.bestRank(groups[j])
	})
	return groups
}

func (a *Aggregator) bestRank(g Group) int {
	best := int(^uint(0) >> 1)
	for _, c := range g.Candidates {
		if r := a.rank(c.Source); r < best {
			best = r
		}
	}
	return best
}

// representative picks the candidate whose source ranks highest within the
// group; its literal value (not the normalized key) is what gets stored.
func (a *Aggregator) representative(g Group) model.Candidate {
	best := g.Candidates[0]
	for _, c := range g.Candidates[1:] {
		if a.rank(c.Source) < a.rank(best.Source) {
			best = c
		}
	}
	return best
}

// apply enforces the overwrite rule: a new accepted value replaces the
// existing one only at a strictly higher tier, or at an equal tier from a
// strictly higher-priority source. Losing candidates stay in the audit
// trail only.
func (a *Aggregator) apply(field model.FieldKey, winner model.Candidate, verdict model.ValidationVerdict, rec *model.OrganizationRecord) (bool, string) {
	existing, has := rec.Field(field)
	if has {
		switch {
		case verdict.Tier > existing.Tier:
			// strictly higher tier wins
		case verdict.Tier == existing.Tier && a.rank(winner.Source) < a.rank(existing.Source):
			// equal tier, higher-priority source wins
		default:
			return false, "existing value kept by overwrite rule"
		}
	}

	rec.SetField(field, model.FieldState{
		Value:      winner.Value,
		Tier:       verdict.Tier,
		Confidence: verdict.Tier.Confidence(),
		Source:     winner.Source,
		UpdatedAt:  time.Now().UTC(),
	})
	if has {
		return true, "replaced under overwrite rule"
	}
	return true, "field was missing"
}
