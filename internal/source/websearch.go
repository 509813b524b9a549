package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/pkg/jina"
)

// NameWebSearch is the source id of the web-search adapter.
const NameWebSearch = "websearch"

// portalHosts are aggregator domains whose URLs are never the
// organization's own homepage.
var portalHosts = []string{
	"naver.com", "kakao.com", "daum.net", "google.com",
	"facebook.com", "instagram.com", "youtube.com", "blog.me",
	"wikipedia.org", "namu.wiki",
}

// WebSearchAdapter runs a Jina web search for the organization's contact
// details and extracts candidates from the result snippets.
type WebSearchAdapter struct {
	client jina.Client
	// topN limits how many results are scanned.
	topN int
}

// NewWebSearchAdapter creates the web-search adapter.
func NewWebSearchAdapter(c jina.Client) *WebSearchAdapter {
	return &WebSearchAdapter{client: c, topN: 3}
}

func (a *WebSearchAdapter) Name() string { return NameWebSearch }

func (a *WebSearchAdapter) Fields() []model.FieldKey {
	return []model.FieldKey{model.FieldPhone, model.FieldEmail, model.FieldAddress, model.FieldHomepage}
}

func (a *WebSearchAdapter) Probe(ctx context.Context, q Query) ([]model.Candidate, error) {
	query := q.Org.Name + " 연락처 주소"
	resp, err := a.client.Search(ctx, query)
	if err != nil {
		return nil, wrapStatus(err)
	}

	now := time.Now().UTC()
	var out []model.Candidate
	emit := func(field model.FieldKey, value string, conf float64) {
		if value == "" || !q.Wants(field) {
			return
		}
		out = append(out, model.Candidate{
			Field:         field,
			Value:         value,
			Source:        NameWebSearch,
			RawConfidence: conf,
			ObservedAt:    now,
		})
	}

	results := resp.Data
	if len(results) > a.topN {
		results = results[:a.topN]
	}
	for _, r := range results {
		text := r.Title + "\n" + r.Description + "\n" + r.Content
		for _, p := range extractPhones(text) {
			emit(model.FieldPhone, p, 0.5)
		}
		for _, e := range extractEmails(text) {
			emit(model.FieldEmail, e, 0.5)
		}
		for _, addr := range extractAddresses(text) {
			emit(model.FieldAddress, addr, 0.5)
		}
		if isOwnSite(r.URL, q.Org.Name, r.Title) {
			emit(model.FieldHomepage, r.URL, 0.5)
		}
	}
	return out, nil
}

// isOwnSite guesses whether a search result URL is the organization's own
// homepage rather than a portal or directory page.
func isOwnSite(rawURL, orgName, title string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, p := range portalHosts {
		if host == p || strings.HasSuffix(host, "."+p) {
			return false
		}
	}
	// Directory deep links rarely title themselves after the organization.
	return strings.Contains(normalizeName(title), normalizeName(orgName))
}
