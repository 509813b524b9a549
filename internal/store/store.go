// Package store persists organization records, enrichment outcomes, and
// batch checkpoints. SQLite backs the single-user CLI; Postgres backs
// shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/orgdesk/enrich-cli/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// OrgFilter specifies criteria for listing organizations.
type OrgFilter struct {
	// MissingField selects organizations whose record lacks the field.
	MissingField model.FieldKey `json:"missing_field,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// OutcomeFilter specifies criteria for listing enrichment outcomes.
type OutcomeFilter struct {
	OrgID  string              `json:"org_id,omitempty"`
	Status model.OutcomeStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Organizations
	UpsertOrganization(ctx context.Context, rec *model.OrganizationRecord) error
	GetOrganization(ctx context.Context, id string) (*model.OrganizationRecord, error)
	ListOrganizationIDs(ctx context.Context, filter OrgFilter) ([]string, error)

	// Outcomes (append-only audit trail)
	AppendOutcome(ctx context.Context, out *model.EnrichmentOutcome) error
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.EnrichmentOutcome, error)

	// Batch checkpoints
	SaveBatchState(ctx context.Context, st *model.BatchState) error
	LoadBatchState(ctx context.Context, batchID string) (*model.BatchState, error)
	LatestOpenBatch(ctx context.Context) (*model.BatchState, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
