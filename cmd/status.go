package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/store"
)

var (
	statusBatchID  string
	statusOutcomes int
)

var statusCmd = &cobra.Command{
	Use:   "status [org-id]",
	Short: "Show batch progress, or one organization's fields and recent runs",
	Long:  "Without arguments, shows the most recent unfinished batch and recent outcome counts. With an organization id, shows that record's fields and its run history.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			orgID := args[0]
			rec, err := env.Store.GetOrganization(ctx, orgID)
			if err != nil {
				return eris.Wrapf(err, "load organization %s", orgID)
			}
			outs, err := env.Store.ListOutcomes(ctx, store.OutcomeFilter{OrgID: orgID, Limit: statusOutcomes})
			if err != nil {
				return eris.Wrap(err, "list outcomes")
			}

			return enc.Encode(struct {
				Organization *model.OrganizationRecord `json:"organization"`
				Missing      []model.FieldKey          `json:"missing_fields"`
				Satisfied    bool                      `json:"satisfied"`
				Outcomes     []model.EnrichmentOutcome `json:"recent_outcomes"`
			}{
				Organization: rec,
				Missing:      rec.Missing(env.Plan.Required()),
				Satisfied:    rec.Satisfied(env.Plan.Required(), env.Plan.Defaults.ConfidenceThreshold),
				Outcomes:     outs,
			})
		}

		var batch *model.BatchState
		if statusBatchID != "" {
			batch, err = env.Store.LoadBatchState(ctx, statusBatchID)
		} else {
			batch, err = env.Store.LatestOpenBatch(ctx)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return eris.Wrap(err, "load batch state")
		}

		outs, err := env.Store.ListOutcomes(ctx, store.OutcomeFilter{Limit: 100})
		if err != nil {
			return eris.Wrap(err, "list outcomes")
		}

		return enc.Encode(struct {
			Batch          *model.BatchState           `json:"batch,omitempty"`
			RecentOutcomes map[model.OutcomeStatus]int `json:"recent_outcome_counts"`
		}{
			Batch:          batch,
			RecentOutcomes: countByStatus(outs),
		})
	},
}

// countByStatus tallies recent outcomes per terminal status.
func countByStatus(outs []model.EnrichmentOutcome) map[model.OutcomeStatus]int {
	counts := make(map[model.OutcomeStatus]int)
	for _, out := range outs {
		counts[out.Status]++
	}
	return counts
}

func init() {
	statusCmd.Flags().StringVar(&statusBatchID, "batch-id", "", "batch to show (default: most recent unfinished)")
	statusCmd.Flags().IntVar(&statusOutcomes, "outcomes", 5, "number of recent runs to show for an organization")
	rootCmd.AddCommand(statusCmd)
}
