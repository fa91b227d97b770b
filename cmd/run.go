package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/michaelpento.lv/arbpipeline/pipeline"
	"github.com/michaelpento.lv/arbpipeline/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipeline round and print its report",
	Long: `Run executes a single round: quotes, detection, scoring, planning, signing,
shielding and broadcasting. The report is printed as JSON and the command exits
non-zero when any stage failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rt, err := pipeline.Build(cmd.Context(), cfg, prometheus.NewRegistry(), log)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer rt.Close()

		report := rt.Orchestrator.RunRound(cmd.Context())
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if !report.Success() {
			return fmt.Errorf("round reported failed stages")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
