package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/enrich-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testOrg(id string) *model.OrganizationRecord {
	rec := &model.OrganizationRecord{ID: id, Name: "은혜교회"}
	rec.SetField(model.FieldPhone, model.FieldState{
		Value:      "02-555-1234",
		Tier:       model.TierStrict,
		Confidence: 0.9,
		Source:     "kakao_local",
		UpdatedAt:  time.Now().UTC(),
	})
	return rec
}

// --- Organizations ---

func TestSQLite_Organization_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertOrganization(ctx, testOrg("org-1")))

	got, err := st.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "은혜교회", got.Name)

	fs, ok := got.Field(model.FieldPhone)
	require.True(t, ok)
	assert.Equal(t, "02-555-1234", fs.Value)
	assert.Equal(t, model.TierStrict, fs.Tier)
}

func TestSQLite_Organization_UpsertReplacesFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testOrg("org-1")
	require.NoError(t, st.UpsertOrganization(ctx, rec))

	rec.SetField(model.FieldEmail, model.FieldState{Value: "office@gracechurch.or.kr", Tier: model.TierStrict, Confidence: 0.9})
	require.NoError(t, st.UpsertOrganization(ctx, rec))

	got, err := st.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	_, ok := got.Field(model.FieldEmail)
	assert.True(t, ok)
}

func TestSQLite_Organization_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetOrganization(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ListOrganizationIDs_MissingField(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	withPhone := testOrg("org-has-phone")
	require.NoError(t, st.UpsertOrganization(ctx, withPhone))

	noPhone := &model.OrganizationRecord{ID: "org-no-phone", Name: "소망교회"}
	require.NoError(t, st.UpsertOrganization(ctx, noPhone))

	ids, err := st.ListOrganizationIDs(ctx, OrgFilter{MissingField: model.FieldPhone})
	require.NoError(t, err)
	assert.Equal(t, []string{"org-no-phone"}, ids)

	all, err := st.ListOrganizationIDs(ctx, OrgFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Outcomes ---

func TestSQLite_Outcomes_AppendAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertOrganization(ctx, testOrg("org-1")))

	out := &model.EnrichmentOutcome{
		RunID:         "run-1",
		OrgID:         "org-1",
		Status:        model.OutcomeEnriched,
		FieldsUpdated: []model.FieldKey{model.FieldPhone},
		Confidence:    map[model.FieldKey]float64{model.FieldPhone: 0.9},
		StartedAt:     time.Now().UTC().Truncate(time.Second),
		Duration:      3 * time.Second,
	}
	require.NoError(t, st.AppendOutcome(ctx, out))

	got, err := st.ListOutcomes(ctx, OutcomeFilter{OrgID: "org-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, model.OutcomeEnriched, got[0].Status)
	assert.InDelta(t, 0.9, got[0].Confidence[model.FieldPhone], 1e-9)
}

func TestSQLite_Outcomes_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertOrganization(ctx, testOrg("org-1")))
	for i, status := range []model.OutcomeStatus{model.OutcomeEnriched, model.OutcomeFailed} {
		out := &model.EnrichmentOutcome{
			RunID:     "run-" + string(rune('a'+i)),
			OrgID:     "org-1",
			Status:    status,
			StartedAt: time.Now().UTC(),
		}
		require.NoError(t, st.AppendOutcome(ctx, out))
	}

	failed, err := st.ListOutcomes(ctx, OutcomeFilter{Status: model.OutcomeFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, model.OutcomeFailed, failed[0].Status)
}

// --- Batch checkpoints ---

func TestSQLite_BatchState_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	state := &model.BatchState{
		BatchID:     "batch-1",
		Pending:     []string{"org-2", "org-3"},
		Completed:   []string{"org-1"},
		Concurrency: 4,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.SaveBatchState(ctx, state))

	got, err := st.LoadBatchState(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"org-2", "org-3"}, got.Pending)
	assert.Equal(t, []string{"org-1"}, got.Completed)
	assert.False(t, got.Done)
}

func TestSQLite_BatchState_InvariantEnforced(t *testing.T) {
	st := newTestSQLiteStore(t)

	bad := &model.BatchState{
		BatchID:   "batch-1",
		Pending:   []string{"org-1"},
		Completed: []string{"org-1"},
	}
	err := st.SaveBatchState(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org-1")
}

func TestSQLite_LatestOpenBatch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	closed := &model.BatchState{BatchID: "batch-old", Done: true, StartedAt: time.Now().UTC()}
	require.NoError(t, st.SaveBatchState(ctx, closed))

	open := &model.BatchState{BatchID: "batch-new", Pending: []string{"org-1"}, StartedAt: time.Now().UTC()}
	require.NoError(t, st.SaveBatchState(ctx, open))

	got, err := st.LatestOpenBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "batch-new", got.BatchID)
}

func TestSQLite_LatestOpenBatch_NoneOpen(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LatestOpenBatch(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}
