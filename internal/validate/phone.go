package validate

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// areaCodes maps Korean numbering-plan area codes to the region tokens that
// may appear in an address. 010/070 carry no geography and always pass the
// region cross-check.
var areaCodes = map[string][]string{
	"02":  {"서울", "seoul"},
	"031": {"경기", "gyeonggi"},
	"032": {"인천", "incheon"},
	"033": {"강원", "gangwon"},
	"041": {"충남", "chungnam", "충청남도"},
	"042": {"대전", "daejeon"},
	"043": {"충북", "chungbuk", "충청북도"},
	"044": {"세종", "sejong"},
	"051": {"부산", "busan"},
	"052": {"울산", "ulsan"},
	"053": {"대구", "daegu"},
	"054": {"경북", "gyeongbuk", "경상북도"},
	"055": {"경남", "gyeongnam", "경상남도"},
	"061": {"전남", "jeonnam", "전라남도"},
	"062": {"광주", "gwangju"},
	"063": {"전북", "jeonbuk", "전라북도"},
	"064": {"제주", "jeju"},
}

// nonGeographicPrefixes are codes with no region attached.
var nonGeographicPrefixes = []string{"010", "070", "050", "080", "15", "16", "18"}

// fullShape matches a complete KR subscriber number after digit stripping:
// 02 + 7-8 digits, or a 3-digit prefix + 7-8 digits.
var fullShape = regexp.MustCompile(`^(02\d{7,8}|0\d{2}\d{7,8}|1\d{3}\d{4})$`)

// DigitsOnly strips everything but digits, folding the full-width digits
// map portals return to ASCII first. Shared with the consensus package's
// phone normalization.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range width.Fold.String(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneCharset reports whether the raw value contains only characters that
// appear in written phone numbers, after width folding.
func phoneCharset(s string) bool {
	for _, r := range width.Fold.String(s) {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' || r == ' ' || r == '.' || r == '(' || r == ')' || r == '+':
		default:
			return false
		}
	}
	return true
}

// AreaCode extracts the numbering-plan prefix from a digit string, or ""
// when none matches.
func AreaCode(digits string) string {
	if strings.HasPrefix(digits, "02") {
		return "02"
	}
	for code := range areaCodes {
		if code != "02" && strings.HasPrefix(digits, code) {
			return code
		}
	}
	for _, p := range nonGeographicPrefixes {
		if strings.HasPrefix(digits, p) {
			return p
		}
	}
	return ""
}

// regionConsistent checks the area code's region tokens against the
// record's known address. With no address on record there is nothing to
// contradict, so the check passes.
func regionConsistent(code string, rec *model.OrganizationRecord) bool {
	tokens, geographic := areaCodes[code]
	if !geographic {
		return true
	}
	if rec == nil {
		return true
	}
	addr, ok := rec.Field(model.FieldAddress)
	if !ok {
		return true
	}
	lower := strings.ToLower(addr.Value)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// phoneRules is the tier table for phone and fax numbers.
//
//	strict:     full numbering-plan shape, known area code, region consistent
//	            with the record's address when one is known
//	moderate:   full numbering-plan shape, known prefix, no cross-check
//	relaxed:    phone charset with at least 6 digits
//	lastresort: contains at least one digit
func phoneRules() []Rule {
	return []Rule{
		{Tier: model.TierStrict, Check: func(_ context.Context, raw string, rec *model.OrganizationRecord) (bool, string) {
			if !phoneCharset(raw) {
				return false, "phone charset"
			}
			digits := strings.TrimPrefix(DigitsOnly(raw), "82")
			if !fullShape.MatchString(digits) {
				return false, "numbering plan shape"
			}
			code := AreaCode(digits)
			if code == "" {
				return false, "unknown area code"
			}
			if !regionConsistent(code, rec) {
				return false, "area code contradicts address region"
			}
			return true, "numbering plan + region consistent"
		}},
		{Tier: model.TierModerate, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if !phoneCharset(raw) {
				return false, "phone charset"
			}
			digits := strings.TrimPrefix(DigitsOnly(raw), "82")
			if !fullShape.MatchString(digits) || AreaCode(digits) == "" {
				return false, "numbering plan shape"
			}
			return true, "numbering plan shape"
		}},
		{Tier: model.TierRelaxed, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if !phoneCharset(raw) {
				return false, "phone charset"
			}
			if len(DigitsOnly(raw)) < 6 {
				return false, "too few digits"
			}
			return true, "digit heuristic"
		}},
		{Tier: model.TierLastResort, Check: func(_ context.Context, raw string, _ *model.OrganizationRecord) (bool, string) {
			if DigitsOnly(raw) == "" {
				return false, "no digits"
			}
			return true, "non-empty digits"
		}},
	}
}
