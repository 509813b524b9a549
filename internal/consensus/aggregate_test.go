package consensus

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/validate"
)

var sourceOrder = []string{"homepage", "kakao_local", "naver_local", "websearch", "ai_extract"}

func newAggregator() *Aggregator {
	v := validate.New(validate.URLCheckerFunc(func(_ context.Context, _ string) error { return nil }))
	return New(v, sourceOrder)
}

func TestNormalize_PhoneAgreement(t *testing.T) {
	// Separator styles and full-width digits all fold to the same key.
	assert.Equal(t, Normalize(model.FieldPhone, "02-555-1234"), Normalize(model.FieldPhone, "025551234"))
	assert.Equal(t, Normalize(model.FieldPhone, "02 555 1234"), Normalize(model.FieldPhone, "(02) 555-1234"))
	assert.Equal(t, "025551234", Normalize(model.FieldPhone, "０２-５５５-１２３４"))
}

func TestNormalize_URLAgreement(t *testing.T) {
	assert.Equal(t,
		Normalize(model.FieldHomepage, "https://www.GraceChurch.or.kr/"),
		Normalize(model.FieldHomepage, "gracechurch.or.kr"),
	)
}

func TestResolve_AgreementBeatsDissenter(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1", Name: "Grace Church"}

	candidates := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-555-1234", Source: "kakao_local", RawConfidence: 0.6},
		{Field: model.FieldPhone, Value: "025551234", Source: "naver_local", RawConfidence: 0.6},
		{Field: model.FieldPhone, Value: "02-999-0000", Source: "websearch", RawConfidence: 0.8},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	require.NotNil(t, res.Winner)
	// Two agreeing sources at 0.6 score 1.2, beating the lone 0.8.
	assert.Equal(t, "025551234", Normalize(model.FieldPhone, res.Winner.Value))
	assert.True(t, res.Applied)

	fs, ok := rec.Field(model.FieldPhone)
	require.True(t, ok)
	assert.Equal(t, model.TierStrict, fs.Tier)
	assert.Equal(t, "kakao_local", fs.Source, "representative comes from the higher-priority source in the group")
}

func TestResolve_TieBreakPrefersHigherPrioritySource(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}

	candidates := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-111-1111", Source: "websearch", RawConfidence: 0.7},
		{Field: model.FieldPhone, Value: "02-222-2222", Source: "homepage", RawConfidence: 0.7},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "02-222-2222", res.Winner.Value)
	assert.Equal(t, "homepage", res.Winner.Source)
}

func TestResolve_FallsBackWhenTopGroupFailsValidation(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}

	candidates := []model.Candidate{
		// Top-scoring group has no digits at all and fails every tier.
		{Field: model.FieldPhone, Value: "call us", Source: "websearch", RawConfidence: 0.9},
		{Field: model.FieldPhone, Value: "call us", Source: "ai_extract", RawConfidence: 0.9},
		{Field: model.FieldPhone, Value: "02-555-1234", Source: "kakao_local", RawConfidence: 0.4},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	require.NotNil(t, res.Winner)
	assert.Equal(t, "02-555-1234", res.Winner.Value)
}

func TestResolve_AllGroupsRejected(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}

	candidates := []model.Candidate{
		{Field: model.FieldEmail, Value: "no email listed", Source: "websearch", RawConfidence: 0.9},
	}

	res := agg.Resolve(context.Background(), model.FieldEmail, candidates, rec)
	assert.Nil(t, res.Winner)
	assert.False(t, res.Applied)
	_, ok := rec.Field(model.FieldEmail)
	assert.False(t, ok, "rejected candidates must not touch the record")
}

func TestOverwriteRule_StrictNotReplacedByRelaxed(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}
	rec.SetField(model.FieldPhone, model.FieldState{
		Value:      "02-555-1234",
		Tier:       model.TierStrict,
		Confidence: 0.9,
		Source:     "homepage",
	})

	// Truncated number validates at relaxed only.
	candidates := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-1234", Source: "websearch", RawConfidence: 0.9},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	require.NotNil(t, res.Winner)
	assert.False(t, res.Applied)

	fs, _ := rec.Field(model.FieldPhone)
	assert.Equal(t, "02-555-1234", fs.Value)
	assert.Equal(t, "homepage", fs.Source)
}

func TestOverwriteRule_EqualTierHigherPriorityReplaces(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}
	rec.SetField(model.FieldPhone, model.FieldState{
		Value:      "02-555-1234",
		Tier:       model.TierStrict,
		Confidence: 0.9,
		Source:     "naver_local",
	})

	candidates := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-777-8888", Source: "homepage", RawConfidence: 0.9},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	assert.True(t, res.Applied)

	fs, _ := rec.Field(model.FieldPhone)
	assert.Equal(t, "02-777-8888", fs.Value)
}

func TestOverwriteRule_EqualTierLowerPriorityKept(t *testing.T) {
	agg := newAggregator()
	rec := &model.OrganizationRecord{ID: "org-1"}
	rec.SetField(model.FieldPhone, model.FieldState{
		Value:      "02-555-1234",
		Tier:       model.TierStrict,
		Confidence: 0.9,
		Source:     "homepage",
	})

	candidates := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-777-8888", Source: "ai_extract", RawConfidence: 0.95},
	}

	res := agg.Resolve(context.Background(), model.FieldPhone, candidates, rec)
	assert.False(t, res.Applied)

	fs, _ := rec.Field(model.FieldPhone)
	assert.Equal(t, "02-555-1234", fs.Value)
}

// Property: over random candidate orderings, a lower-or-equal tier
// candidate from a lower-priority source never replaces an accepted value.
func TestOverwriteRule_Property_RandomOrderings(t *testing.T) {
	agg := newAggregator()

	lowerTier := []model.Candidate{
		{Field: model.FieldPhone, Value: "02-1111", Source: "websearch", RawConfidence: 0.9},   // relaxed
		{Field: model.FieldPhone, Value: "031-9999", Source: "ai_extract", RawConfidence: 0.8}, // relaxed
		{Field: model.FieldPhone, Value: "02-777-8888", Source: "websearch", RawConfidence: 0.7}, // strict but lower priority
	}

	rng := rand.New(rand.NewPCG(42, 0))
	for trial := 0; trial < 50; trial++ {
		rec := &model.OrganizationRecord{ID: "org-1"}
		rec.SetField(model.FieldPhone, model.FieldState{
			Value:      "02-555-1234",
			Tier:       model.TierStrict,
			Confidence: 0.9,
			Source:     "kakao_local",
		})

		shuffled := make([]model.Candidate, len(lowerTier))
		copy(shuffled, lowerTier)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		for _, c := range shuffled {
			agg.Resolve(context.Background(), model.FieldPhone, []model.Candidate{c}, rec)
		}

		fs, _ := rec.Field(model.FieldPhone)
		require.Equal(t, "02-555-1234", fs.Value, "trial %d: accepted value was overwritten", trial)
		require.Equal(t, "kakao_local", fs.Source)
	}
}

func TestGroupAndScore_Ordering(t *testing.T) {
	agg := newAggregator()

	groups := agg.groupAndScore(model.FieldPhone, []model.Candidate{
		{Value: "02-111-1111", Source: "websearch", RawConfidence: 0.5},
		{Value: "02-222-2222", Source: "kakao_local", RawConfidence: 0.6},
		{Value: "022222222", Source: "naver_local", RawConfidence: 0.6},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "022221111", Normalize(model.FieldPhone, "02-222-1111")) // sanity on helper
	assert.Equal(t, "022222222", groups[0].Key)
	assert.InDelta(t, 1.2, groups[0].Score, 1e-9)
	assert.InDelta(t, 0.5, groups[1].Score, 1e-9)
}
