package source

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/pkg/kakao"
)

// NameKakao is the source id of the Kakao Local adapter.
const NameKakao = "kakao_local"

// KakaoAdapter queries the Kakao Local keyword search for the organization
// and maps the best-matching place to candidates.
type KakaoAdapter struct {
	client kakao.Client
}

// NewKakaoAdapter creates the Kakao Local adapter.
func NewKakaoAdapter(c kakao.Client) *KakaoAdapter {
	return &KakaoAdapter{client: c}
}

func (a *KakaoAdapter) Name() string { return NameKakao }

func (a *KakaoAdapter) Fields() []model.FieldKey {
	return []model.FieldKey{model.FieldPhone, model.FieldAddress, model.FieldCategory}
}

func (a *KakaoAdapter) Probe(ctx context.Context, q Query) ([]model.Candidate, error) {
	resp, err := a.client.SearchKeyword(ctx, q.Org.Name, kakao.WithSize(5))
	if err != nil {
		return nil, wrapStatus(err)
	}

	doc, exact := bestKakaoMatch(q.Org.Name, resp.Documents)
	if doc == nil {
		return nil, nil
	}
	// A non-exact name match is a weaker signal for every field it yields.
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
			Source:        NameKakao,
			RawConfidence: c,
			ObservedAt:    now,
		})
	}

	emit(model.FieldPhone, doc.Phone, conf(0.75))
	addr := doc.RoadAddressName
	if addr == "" {
		addr = doc.AddressName
	}
	emit(model.FieldAddress, addr, conf(0.8))
	emit(model.FieldCategory, lastCategorySegment(doc.CategoryName), conf(0.6))
	return out, nil
}

// bestKakaoMatch prefers a place whose name matches the query exactly after
// width folding; otherwise it falls back to the first result.
func bestKakaoMatch(name string, docs []kakao.Document) (*kakao.Document, bool) {
	if len(docs) == 0 {
		return nil, false
	}
	want := normalizeName(name)
	for i := range docs {
		if normalizeName(docs[i].PlaceName) == want {
			return &docs[i], true
		}
	}
	return &docs[0], false
}

// lastCategorySegment turns "종교,사회단체 > 교회" into "교회".
func lastCategorySegment(cat string) string {
	parts := strings.Split(cat, ">")
	return strings.TrimSpace(parts[len(parts)-1])
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(width.Fold.String(s)), " "))
}
