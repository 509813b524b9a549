package validate

import (
	"context"
	"strings"
	"unicode"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// regionTokens is the flat list of region markers used to recognize a
// Korean postal address. Built once from the area-code table plus the
// metropolitan long forms.
var regionTokens = buildRegionTokens()

func buildRegionTokens() []string {
	var tokens []string
	for _, toks := range areaCodes {
		tokens = append(tokens, toks...)
	}
	tokens = append(tokens, "특별시", "광역시", "자치도", "-gu", "-si", "-do", "구 ", "시 ", "동 ", "로 ", "길 ")
	return tokens
}

func containsRegionToken(s string) bool {
	lower := strings.ToLower(s)
	for _, tok := range regionTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// addressRules is the tier table for postal addresses.
//
//	strict:     recognizable region marker plus a street/lot number
//	moderate:   recognizable region marker
//	relaxed:    plausible length
//	lastresort: non-empty
func addressRules() []Rule {
	return []Rule{
		{Tier: model.TierStrict, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if len([]rune(raw)) < 10 {
				return false, "too short"
			}
			if !containsRegionToken(raw) {
				return false, "no region marker"
			}
			if !containsDigit(raw) {
				return false, "no street number"
			}
			return true, "region marker + street number"
		}},
		{Tier: model.TierModerate, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if !containsRegionToken(raw) {
				return false, "no region marker"
			}
			return true, "region marker"
		}},
		{Tier: model.TierRelaxed, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if n := len([]rune(raw)); n < 8 || n > 200 {
				return false, "implausible length"
			}
			return true, "length heuristic"
		}},
		{Tier: model.TierLastResort, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			return strings.TrimSpace(raw) != "", "non-empty"
		}},
	}
}
