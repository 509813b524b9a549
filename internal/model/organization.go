package model

import "time"

// FieldKey identifies an enrichable field on an organization record.
type FieldKey string

const (
	FieldAddress  FieldKey = "address"
	FieldPhone    FieldKey = "phone"
	FieldFax      FieldKey = "fax"
	FieldEmail    FieldKey = "email"
	FieldHomepage FieldKey = "homepage"
	FieldCategory FieldKey = "category"
)

// AllFields returns every enrichable field key in canonical order.
func AllFields() []FieldKey {
	return []FieldKey{FieldAddress, FieldPhone, FieldFax, FieldEmail, FieldHomepage, FieldCategory}
}

// Valid reports whether k names a known enrichable field.
func (k FieldKey) Valid() bool {
	switch k {
	case FieldAddress, FieldPhone, FieldFax, FieldEmail, FieldHomepage, FieldCategory:
		return true
	}
	return false
}

// ConfidenceTier is the validation strictness level that accepted a value.
// Higher values are stricter. TierNone means no tier accepted the value.
type ConfidenceTier int

const (
	TierNone ConfidenceTier = iota
	TierLastResort
	TierRelaxed
	TierModerate
	TierStrict
)

func (t ConfidenceTier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierModerate:
		return "moderate"
	case TierRelaxed:
		return "relaxed"
	case TierLastResort:
		return "lastresort"
	default:
		return "none"
	}
}

// Confidence returns the numeric confidence attached to the tier.
func (t ConfidenceTier) Confidence() float64 {
	switch t {
	case TierStrict:
		return 0.9
	case TierModerate:
		return 0.7
	case TierRelaxed:
		return 0.5
	case TierLastResort:
		return 0.3
	default:
		return 0
	}
}

// FieldState is the currently-accepted value of one field, with the
// validation tier that accepted it and the source that produced it.
type FieldState struct {
	Value      string         `json:"value"`
	Tier       ConfidenceTier `json:"tier"`
	Confidence float64        `json:"confidence"`
	Source     string         `json:"source"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// OrganizationRecord is the enrichment subject. The orchestrator owns it
// exclusively during a run; the store persists it between runs.
type OrganizationRecord struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Fields    map[FieldKey]FieldState `json:"fields"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Field returns the current state of a field and whether it is set.
func (r *OrganizationRecord) Field(k FieldKey) (FieldState, bool) {
	if r.Fields == nil {
		return FieldState{}, false
	}
	fs, ok := r.Fields[k]
	return fs, ok && fs.Value != ""
}

// SetField replaces the state of a field, allocating the map if needed.
func (r *OrganizationRecord) SetField(k FieldKey, fs FieldState) {
	if r.Fields == nil {
		r.Fields = make(map[FieldKey]FieldState)
	}
	r.Fields[k] = fs
}

// Missing returns the subset of required fields that have no accepted value.
func (r *OrganizationRecord) Missing(required []FieldKey) []FieldKey {
	var missing []FieldKey
	for _, k := range required {
		if _, ok := r.Field(k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Satisfied reports whether every required field has an accepted value at
// or above the given confidence threshold.
func (r *OrganizationRecord) Satisfied(required []FieldKey, threshold float64) bool {
	for _, k := range required {
		fs, ok := r.Field(k)
		if !ok || fs.Confidence < threshold {
			return false
		}
	}
	return true
}

// Candidate is an unvalidated field value proposed by one source probe or
// one AI extraction pass. Transient within a single orchestration run.
type Candidate struct {
	Field         FieldKey  `json:"field"`
	Value         string    `json:"value"`
	Source        string    `json:"source"`
	RawConfidence float64   `json:"raw_confidence"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ValidationVerdict is the validator's decision for one raw value.
type ValidationVerdict struct {
	Field    FieldKey       `json:"field"`
	Accepted bool           `json:"accepted"`
	Tier     ConfidenceTier `json:"tier"`
	Reason   string         `json:"reason,omitempty"`
}
