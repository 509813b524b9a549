// Package source holds the probe adapters that query external systems for
// contact candidates. Adapters never validate; they emit raw candidates
// with the source's own confidence estimate and classify their failures.
package source

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/resilience"
	"github.com/orgdesk/enrich-cli/pkg/jina"
	"github.com/orgdesk/enrich-cli/pkg/kakao"
	"github.com/orgdesk/enrich-cli/pkg/naver"
)

// Query is one probe request. Missing narrows the probe to the fields the
// orchestrator still needs; adapters may return extra fields they got for
// free, the aggregator sorts it out.
type Query struct {
	Org     *model.OrganizationRecord
	Missing []model.FieldKey
}

// Wants reports whether the query still needs the given field.
func (q Query) Wants(k model.FieldKey) bool {
	for _, m := range q.Missing {
		if m == k {
			return true
		}
	}
	return false
}

// Adapter probes one external source.
type Adapter interface {
	// Name is the stable source id used in provenance and probe plans.
	Name() string
	// Fields is the capability set: the fields this source can produce.
	Fields() []model.FieldKey
	// Probe queries the source. Errors carry a resilience class.
	Probe(ctx context.Context, q Query) ([]model.Candidate, error)
}

// Covers reports whether the adapter can produce any of the missing fields.
func Covers(a Adapter, missing []model.FieldKey) bool {
	for _, f := range a.Fields() {
		for _, m := range missing {
			if f == m {
				return true
			}
		}
	}
	return false
}

// Registry holds the configured adapters keyed by name.
type Registry struct {
	byName map[string]Adapter
	order  []string
}

// NewRegistry creates a registry from adapters in priority order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byName[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, eris.Errorf("source: unknown adapter %q", name)
	}
	return a, nil
}

// Names returns the adapter names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// wrapStatus attaches a resilience class to client status errors so the
// retry controller picks the right policy without string matching.
func wrapStatus(err error) error {
	if err == nil {
		return nil
	}
	var ke *kakao.StatusError
	if errors.As(err, &ke) {
		return resilience.NewHTTPFailure(err, ke.Code)
	}
	var ne *naver.StatusError
	if errors.As(err, &ne) {
		return resilience.NewHTTPFailure(err, ne.Code)
	}
	var je *jina.StatusError
	if errors.As(err, &je) {
		return resilience.NewHTTPFailure(err, je.Code)
	}
	return err
}
