package cmd

import (
	"context"

	"github.com/michaelpento.lv/arbpipeline/config"
	"github.com/michaelpento.lv/arbpipeline/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbpipeline",
	Short: "Cross-venue arbitrage pipeline with MEV-shielded broadcasting",
	Long: `arbpipeline fetches quotes from several venues, detects price discrepancies,
scores them, builds and signs settlement transactions, commits them to a Merkle
root for protected relay submission and broadcasts them, reporting every stage.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}

// loadConfig loads and validates the configuration. Failure is fatal for
// every command that needs it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		utils.GetLogger().Error("Invalid configuration", zap.Error(err))
		return config.Config{}, err
	}
	return cfg, nil
}
