package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orgdesk/enrich-cli/internal/fetcher"
	"github.com/orgdesk/enrich-cli/internal/model"
)

// NameHomepage is the source id of the homepage adapter.
const NameHomepage = "homepage"

// HomepageAdapter fetches the organization's own site and extracts contact
// details from it. It only runs once a homepage URL is on the record, which
// the probe plan expresses as a dependency on the homepage field.
type HomepageAdapter struct {
	fetch fetcher.Fetcher
}

// NewHomepageAdapter creates the homepage adapter.
func NewHomepageAdapter(f fetcher.Fetcher) *HomepageAdapter {
	return &HomepageAdapter{fetch: f}
}

func (a *HomepageAdapter) Name() string { return NameHomepage }

func (a *HomepageAdapter) Fields() []model.FieldKey {
	return []model.FieldKey{model.FieldPhone, model.FieldFax, model.FieldEmail, model.FieldAddress}
}

// Probe fetches the record's homepage and extracts labeled contact details.
// Explicit tel:/mailto: links carry more weight than bare text matches.
func (a *HomepageAdapter) Probe(ctx context.Context, q Query) ([]model.Candidate, error) {
	hp, ok := q.Org.Field(model.FieldHomepage)
	if !ok {
		zap.L().Debug("homepage probe skipped: no homepage on record",
			zap.String("org_id", q.Org.ID))
		return nil, nil
	}

	page, err := a.fetch.Fetch(ctx, hp.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []model.Candidate
	emit := func(field model.FieldKey, value string, conf float64) {
		if !q.Wants(field) {
			return
		}
		out = append(out, model.Candidate{
			Field:         field,
			Value:         value,
			Source:        NameHomepage,
			RawConfidence: conf,
			ObservedAt:    now,
		})
	}

	phones := extractPhones(page.Body)
	for i, p := range phones {
		conf := 0.8
		if i > 0 {
			// Secondary numbers on the page are often departments.
			conf = 0.6
		}
		emit(model.FieldPhone, p, conf)
	}
	for _, f := range extractFaxes(page.Body) {
		emit(model.FieldFax, f, 0.8)
	}
	for i, e := range extractEmails(page.Body) {
		conf := 0.8
		if i > 0 {
			conf = 0.6
		}
		emit(model.FieldEmail, e, conf)
	}
	for _, addr := range extractAddresses(page.Body) {
		emit(model.FieldAddress, addr, 0.7)
	}

	zap.L().Debug("homepage probe complete",
		zap.String("org_id", q.Org.ID),
		zap.String("url", page.URL),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
