package validate

import (
	"context"
	"net/url"
	"strings"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// structuralURL checks shape only. Acceptance additionally requires the
// URL checker to fetch the page: a well-formed dead link is still rejected.
func structuralURL(raw string) (string, bool) {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	return u.String(), true
}

// homepageRules is the tier table for homepage URLs.
//
//	strict:   given with an explicit scheme and fetchable
//	moderate: bare host that becomes fetchable once https:// is assumed
func homepageRules(urls URLChecker) []Rule {
	fetchable := func(ctx context.Context, candidate string) bool {
		if urls == nil {
			return false
		}
		return urls.CheckURL(ctx, candidate) == nil
	}

	return []Rule{
		{Tier: model.TierStrict, Check: func(ctx context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if !strings.Contains(raw, "://") {
				return false, "no scheme"
			}
			normalized, ok := structuralURL(raw)
			if !ok {
				return false, "malformed url"
			}
			if !fetchable(ctx, normalized) {
				return false, "unreachable"
			}
			return true, "fetched"
		}},
		{Tier: model.TierModerate, Check: func(ctx context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			normalized, ok := structuralURL(raw)
			if !ok {
				return false, "malformed url"
			}
			if !fetchable(ctx, normalized) {
				return false, "unreachable"
			}
			return true, "fetched with assumed scheme"
		}},
	}
}
