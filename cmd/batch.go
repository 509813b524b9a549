package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/store"
)

var (
	batchConcurrency int
	batchResume      bool
	batchResumeID    string
	batchMissing     string
	batchLimit       int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch enrich organizations from the store",
	Long:  "Runs enrichment over many organizations with bounded concurrency. Progress is checkpointed; an interrupted batch resumes with --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if batchConcurrency > 0 {
			cfg.Batch.Concurrency = batchConcurrency
		}
		s := env.newScheduler()

		if batchResume {
			report, err := s.Resume(ctx, batchResumeID)
			if err != nil {
				return err
			}
			return printReport(report)
		}

		filter := store.OrgFilter{Limit: batchLimit}
		if batchMissing != "" {
			key := model.FieldKey(batchMissing)
			if !key.Valid() {
				return eris.Errorf("unknown field %q", batchMissing)
			}
			filter.MissingField = key
		}
		ids, err := env.Store.ListOrganizationIDs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list organizations")
		}
		if len(ids) == 0 {
			zap.L().Info("no organizations match the filter")
			return nil
		}

		report, err := s.Start(ctx, ids)
		if err != nil {
			return err
		}
		return printReport(report)
	},
}

func printReport(report any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker count (default from config)")
	batchCmd.Flags().BoolVar(&batchResume, "resume", false, "resume an interrupted batch instead of starting a new one")
	batchCmd.Flags().StringVar(&batchResumeID, "batch-id", "", "batch to resume (default: most recent unfinished)")
	batchCmd.Flags().StringVar(&batchMissing, "missing", "", "only organizations missing this field")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max organizations to process")
	rootCmd.AddCommand(batchCmd)
}
