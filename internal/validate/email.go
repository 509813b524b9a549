package validate

import (
	"context"
	"net/mail"
	"regexp"
	"strings"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// strictEmail is deliberately narrower than RFC 5322: the addresses sources
// return are plain mailbox strings, not display-name forms.
var strictEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// emailRules is the tier table for email addresses. There is no last-resort
// tier: an email that is not syntactically valid is worthless.
//
//	strict:   plain mailbox shape with a dotted domain
//	moderate: parses under net/mail
//	relaxed:  single @ with non-empty local and domain parts
func emailRules() []Rule {
	return []Rule{
		{Tier: model.TierStrict, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if strictEmail.MatchString(raw) {
				return true, "mailbox shape"
			}
			return false, "not a plain mailbox"
		}},
		{Tier: model.TierModerate, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if _, err := mail.ParseAddress(raw); err != nil {
				return false, "net/mail rejected"
			}
			return true, "parsed address"
		}},
		{Tier: model.TierRelaxed, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if strings.Count(raw, "@") != 1 || strings.ContainsAny(raw, " \t") {
				return false, "not an address"
			}
			parts := strings.SplitN(raw, "@", 2)
			if parts[0] == "" || parts[1] == "" {
				return false, "empty local or domain"
			}
			return true, "loose @ heuristic"
		}},
	}
}
