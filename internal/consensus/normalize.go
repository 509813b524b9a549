// Package consensus merges candidates for the same field across sources,
// resolving conflicts by cross-source agreement and confidence.
package consensus

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/validate"
)

// Normalize maps a raw value to its agreement key. Two candidates agree
// when their normalized values are equal: "02-555-1234" and "025551234"
// are the same phone number, and the full-width digits map portals return
// fold to ASCII first.
func Normalize(field model.FieldKey, value string) string {
	v := width.Fold.String(strings.TrimSpace(value))

	switch field {
	case model.FieldPhone, model.FieldFax:
		return validate.DigitsOnly(v)
	case model.FieldEmail:
		return strings.ToLower(v)
	case model.FieldHomepage:
		return normalizeURL(v)
	case model.FieldAddress:
		return strings.ToLower(strings.Join(strings.Fields(v), " "))
	default:
		return strings.ToLower(strings.Join(strings.Fields(v), " "))
	}
}

// normalizeURL lowercases the host part and strips scheme, www prefix, and
// trailing slash so homepage candidates agree across notation styles.
func normalizeURL(v string) string {
	v = strings.ToLower(v)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(v, prefix) {
			v = v[len(prefix):]
			break
		}
	}
	v = strings.TrimPrefix(v, "www.")
	return strings.TrimSuffix(v, "/")
}
