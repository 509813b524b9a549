package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/orgdesk/enrich-cli/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources, their capabilities, and circuit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sourceReport(env))
	},
}

type sourceInfo struct {
	Name    string           `json:"name"`
	Fields  []model.FieldKey `json:"fields"`
	Circuit string           `json:"circuit"`
}

func sourceReport(env *env) []sourceInfo {
	states := env.Controller.Breakers().States()
	var out []sourceInfo
	for _, name := range env.Registry.Names() {
		a, err := env.Registry.Get(name)
		if err != nil {
			continue
		}
		state, ok := states[name]
		circuit := "closed"
		if ok {
			circuit = state.String()
		}
		out = append(out, sourceInfo{Name: name, Fields: a.Fields(), Circuit: circuit})
	}
	return out
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
