// Package validate decides whether raw candidate values are acceptable,
// scanning an ordered table of rule tiers from strict to relaxed. The first
// tier that accepts wins, so ties always land on the stricter tier.
package validate

import (
	"context"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// Rule is one tier of a field's validation table.
type Rule struct {
	Tier  model.ConfidenceTier
	Check CheckFunc
}

// CheckFunc inspects a raw value, with the record available for cross-field
// consistency checks (e.g. phone area code vs. address region). It returns
// whether the value is accepted and a short reason used in the audit trail.
type CheckFunc func(ctx context.Context, raw string, rec *model.OrganizationRecord) (ok bool, reason string)

// URLChecker verifies that a URL is actually fetchable. Structural validity
// alone never accepts a homepage value.
type URLChecker interface {
	CheckURL(ctx context.Context, rawURL string) error
}

// URLCheckerFunc adapts a function to the URLChecker interface.
type URLCheckerFunc func(ctx context.Context, rawURL string) error

func (f URLCheckerFunc) CheckURL(ctx context.Context, rawURL string) error {
	return f(ctx, rawURL)
}

// Validator evaluates candidates against per-field rule tables.
type Validator struct {
	tables map[model.FieldKey][]Rule
}

// New builds a validator with the default rule tables. The URL checker is
// injected so tests can stub fetchability.
func New(urls URLChecker) *Validator {
	return &Validator{
		tables: map[model.FieldKey][]Rule{
			model.FieldPhone:    phoneRules(),
			model.FieldFax:      phoneRules(),
			model.FieldEmail:    emailRules(),
			model.FieldHomepage: homepageRules(urls),
			model.FieldAddress:  addressRules(),
			model.FieldCategory: categoryRules(),
		},
	}
}

// Validate scans the field's tiers strict-to-relaxed and returns the verdict
// of the first tier that accepts. A rejected verdict means the field is
// still missing, never a low-quality accepted value.
func (v *Validator) Validate(ctx context.Context, field model.FieldKey, raw string, rec *model.OrganizationRecord) model.ValidationVerdict {
	verdict := model.ValidationVerdict{Field: field}

	rules, ok := v.tables[field]
	if !ok {
		verdict.Reason = "no rules for field"
		return verdict
	}

	if raw == "" {
		verdict.Reason = "empty value"
		return verdict
	}

	for _, rule := range rules {
		accepted, reason := rule.Check(ctx, raw, rec)
		if accepted {
			verdict.Accepted = true
			verdict.Tier = rule.Tier
			verdict.Reason = reason
			return verdict
		}
		// Remember why the strictest tier said no.
		if verdict.Reason == "" {
			verdict.Reason = reason
		}
	}

	return verdict
}

func categoryRules() []Rule {
	return []Rule{
		{Tier: model.TierRelaxed, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if n := len([]rune(raw)); n >= 2 && n <= 60 {
				return true, "category length heuristic"
			}
			return false, "category length out of range"
		}},
		{Tier: model.TierLastResort, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			return raw != "", "non-empty"
		}},
	}
}
