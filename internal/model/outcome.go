package model

import "time"

// OutcomeStatus is the terminal result of one organization's enrichment run.
type OutcomeStatus string

const (
	// OutcomeEnriched means every required field reached the confidence threshold.
	OutcomeEnriched OutcomeStatus = "enriched"
	// OutcomePartial means the probing budget ran out with some fields satisfied.
	OutcomePartial OutcomeStatus = "partial"
	// OutcomeFailed means no field could be satisfied after exhausting all sources.
	OutcomeFailed OutcomeStatus = "failed"
)

// TraceEntry records one observable step of an enrichment run: a state
// transition, a source probe, or a validation/aggregation decision.
type TraceEntry struct {
	At         time.Time `json:"at"`
	State      string    `json:"state"`
	Source     string    `json:"source,omitempty"`
	Field      FieldKey  `json:"field,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// FieldProvenance is the per-field audit record persisted with an outcome:
// which source won, at what tier, and every attempt that lost.
type FieldProvenance struct {
	Field         FieldKey       `json:"field"`
	WinnerSource  string         `json:"winner_source"`
	WinnerValue   string         `json:"winner_value"`
	Tier          ConfidenceTier `json:"tier"`
	Confidence    float64        `json:"confidence"`
	PreviousValue string         `json:"previous_value,omitempty"`
	ValueChanged  bool           `json:"value_changed"`
	Attempts      []Candidate    `json:"attempts,omitempty"`
}

// EnrichmentOutcome is the append-only audit entry for one run.
type EnrichmentOutcome struct {
	RunID          string               `json:"run_id"`
	OrgID          string               `json:"org_id"`
	Status         OutcomeStatus        `json:"status"`
	FieldsUpdated  []FieldKey           `json:"fields_updated"`
	Confidence     map[FieldKey]float64 `json:"confidence"`
	Provenance     []FieldProvenance    `json:"provenance,omitempty"`
	Trace          []TraceEntry         `json:"trace,omitempty"`
	SourcesQueried []string             `json:"sources_queried,omitempty"`
	Error          string               `json:"error,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration"`
}

// ConfidenceSummary returns the mean confidence across required fields,
// counting missing fields as zero.
func (o *EnrichmentOutcome) ConfidenceSummary(required []FieldKey) float64 {
	if len(required) == 0 {
		return 0
	}
	var sum float64
	for _, k := range required {
		sum += o.Confidence[k]
	}
	return sum / float64(len(required))
}
