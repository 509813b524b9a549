package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	enrichOrgID    string
	enrichOrgName  string
	enrichHomepage string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run enrichment for a single organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := enrichOne(ctx, env, enrichOrgID, enrichOrgName, enrichHomepage)
		if err != nil {
			return err
		}

		zap.L().Info("enrichment complete",
			zap.String("org_id", enrichOrgID),
			zap.String("status", string(out.Status)),
			zap.Int("fields_updated", len(out.FieldsUpdated)),
			zap.Float64("confidence", out.ConfidenceSummary(env.Plan.Required())),
			zap.Duration("duration", out.Duration),
		)

		// Print outcome JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichOrgID, "id", "", "organization id (required)")
	enrichCmd.Flags().StringVar(&enrichOrgName, "name", "", "organization name (creates the record if missing)")
	enrichCmd.Flags().StringVar(&enrichHomepage, "homepage", "", "known homepage URL to seed the record with")
	_ = enrichCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(enrichCmd)
}
