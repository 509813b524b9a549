package source

import (
	"context"
	"time"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/pkg/naver"
)

// NameNaver is the source id of the Naver local search adapter.
const NameNaver = "naver_local"

// NaverAdapter queries Naver local search. Unlike Kakao it can also yield
// the organization's homepage via the result link.
type NaverAdapter struct {
	client naver.Client
}

// NewNaverAdapter creates the Naver local search adapter.
func NewNaverAdapter(c naver.Client) *NaverAdapter {
	return &NaverAdapter{client: c}
}

func (a *NaverAdapter) Name() string { return NameNaver }

func (a *NaverAdapter) Fields() []model.FieldKey {
	return []model.FieldKey{model.FieldPhone, model.FieldAddress, model.FieldHomepage, model.FieldCategory}
}

func (a *NaverAdapter) Probe(ctx context.Context, q Query) ([]model.Candidate, error) {
	resp, err := a.client.SearchLocal(ctx, q.Org.Name, naver.WithDisplay(5))
	if err != nil {
		return nil, wrapStatus(err)
	}

	item, exact := bestNaverMatch(q.Org.Name, resp.Items)
	if item == nil {
		return nil, nil
	}
	conf := func(c float64) float64 {
		if exact {
			return c
		}
		return c - 0.2
	}

	now := time.Now().UTC()
	var out []model.Candidate
	emit := func(field model.FieldKey, value string, c float64) {
		if value == "" || !q.Wants(field) {
			return
		}
		out = append(out, model.Candidate{
			Field:         field,
			Value:         value,
			Source:        NameNaver,
			RawConfidence: c,
			ObservedAt:    now,
		})
	}

	emit(model.FieldPhone, item.Telephone, conf(0.7))
	addr := item.RoadAddress
	if addr == "" {
		addr = item.Address
	}
	emit(model.FieldAddress, addr, conf(0.75))
	emit(model.FieldHomepage, item.Link, conf(0.7))
	emit(model.FieldCategory, lastCategorySegment(item.Category), conf(0.55))
	return out, nil
}

func bestNaverMatch(name string, items []naver.Item) (*naver.Item, bool) {
	if len(items) == 0 {
		return nil, false
	}
	want := normalizeName(name)
	for i := range items {
		if normalizeName(items[i].PlainTitle()) == want {
			return &items[i], true
		}
	}
	return &items[0], false
}
