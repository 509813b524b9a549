package enrich

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/source"
)

// Plan is the probe plan: which sources run, in what order, and what each
// stage needs before it can run.
type Plan struct {
	Defaults Defaults `yaml:"defaults"`
	Stages   []Stage  `yaml:"stages"`
}

// Defaults holds run-wide settings.
type Defaults struct {
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	RequiredFields      []string `yaml:"required_fields"`
	OrgTimeoutSecs      int      `yaml:"org_timeout_secs"`
}

// Stage is one probe wave. Sources within a stage run concurrently;
// stages run in order. Requires lists field keys that must already be on
// the record, expressing dependencies like "the homepage crawl needs a
// homepage URL first".
type Stage struct {
	Name     string   `yaml:"name"`
	Sources  []string `yaml:"sources"`
	Requires []string `yaml:"requires,omitempty"`
}

// LoadPlan reads a probe plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read plan %s", path)
	}

	// The YAML has a top-level "plan" key
	var wrapper struct {
		Plan Plan `yaml:"plan"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "enrich: parse plan")
	}

	plan := &wrapper.Plan
	applyPlanDefaults(plan)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// DefaultPlan returns the built-in probe plan: local-search portals first,
// then the organization's own site, then web search, with AI extraction as
// the paid last resort.
func DefaultPlan() *Plan {
	p := &Plan{
		Stages: []Stage{
			{Name: "portals", Sources: []string{source.NameKakao, source.NameNaver}},
			{Name: "own-site", Sources: []string{source.NameHomepage}, Requires: []string{string(model.FieldHomepage)}},
			{Name: "search", Sources: []string{source.NameWebSearch}},
			{Name: "ai", Sources: []string{source.NameAI}},
		},
	}
	applyPlanDefaults(p)
	return p
}

func applyPlanDefaults(p *Plan) {
	if p.Defaults.ConfidenceThreshold == 0 {
		p.Defaults.ConfidenceThreshold = 0.7
	}
	if len(p.Defaults.RequiredFields) == 0 {
		p.Defaults.RequiredFields = []string{
			string(model.FieldAddress), string(model.FieldPhone),
			string(model.FieldEmail), string(model.FieldHomepage),
		}
	}
	if p.Defaults.OrgTimeoutSecs == 0 {
		p.Defaults.OrgTimeoutSecs = 90
	}
}

// Validate checks that the plan references only known field keys.
func (p *Plan) Validate() error {
	for _, f := range p.Defaults.RequiredFields {
		if !model.FieldKey(f).Valid() {
			return eris.Errorf("enrich: plan requires unknown field %q", f)
		}
	}
	for _, st := range p.Stages {
		if len(st.Sources) == 0 {
			return eris.Errorf("enrich: plan stage %q has no sources", st.Name)
		}
		for _, f := range st.Requires {
			if !model.FieldKey(f).Valid() {
				return eris.Errorf("enrich: plan stage %q requires unknown field %q", st.Name, f)
			}
		}
	}
	return nil
}

// Required returns the required fields as typed keys.
func (p *Plan) Required() []model.FieldKey {
	out := make([]model.FieldKey, len(p.Defaults.RequiredFields))
	for i, f := range p.Defaults.RequiredFields {
		out[i] = model.FieldKey(f)
	}
	return out
}

// OrgTimeout returns the per-organization probing budget.
func (p *Plan) OrgTimeout() time.Duration {
	return time.Duration(p.Defaults.OrgTimeoutSecs) * time.Second
}
