package enrich

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/source"
)

func TestLoadPlan(t *testing.T) {
	yaml := `
plan:
  defaults:
    confidence_threshold: 0.8
    required_fields: [phone, address]
    org_timeout_secs: 60
  stages:
    - name: portals
      sources: [kakao_local, naver_local]
    - name: own-site
      sources: [homepage]
      requires: [homepage]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, plan.Defaults.ConfidenceThreshold)
	assert.Equal(t, []model.FieldKey{model.FieldPhone, model.FieldAddress}, plan.Required())
	assert.Equal(t, 60*time.Second, plan.OrgTimeout())

	require.Len(t, plan.Stages, 2)
	assert.Equal(t, []string{source.NameKakao, source.NameNaver}, plan.Stages[0].Sources)
	assert.Equal(t, []string{"homepage"}, plan.Stages[1].Requires)
}

func TestLoadPlan_DefaultsApplied(t *testing.T) {
	yaml := `
plan:
  stages:
    - name: portals
      sources: [kakao_local]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, plan.Defaults.ConfidenceThreshold)
	assert.Equal(t, 90*time.Second, plan.OrgTimeout())
	assert.Contains(t, plan.Defaults.RequiredFields, "phone")
}

func TestLoadPlan_FileNotFound(t *testing.T) {
	_, err := LoadPlan("/nonexistent/plan.yaml")
	assert.Error(t, err)
}

func TestLoadPlan_UnknownFieldRejected(t *testing.T) {
	yaml := `
plan:
  defaults:
    required_fields: [phone, bogus]
  stages:
    - name: portals
      sources: [kakao_local]
`
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	_, err := LoadPlan(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestPlanValidate_EmptyStage(t *testing.T) {
	p := &Plan{Stages: []Stage{{Name: "empty"}}}
	applyPlanDefaults(p)
	assert.Error(t, p.Validate())
}

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())

	// The own-site stage must wait for a homepage URL.
	var ownSite *Stage
	for i := range p.Stages {
		if p.Stages[i].Name == "own-site" {
			ownSite = &p.Stages[i]
		}
	}
	require.NotNil(t, ownSite)
	assert.Equal(t, []string{string(model.FieldHomepage)}, ownSite.Requires)

	// AI extraction is the last stage.
	assert.Equal(t, []string{source.NameAI}, p.Stages[len(p.Stages)-1].Sources)
}
