package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/michaelpento.lv/arbpipeline/cmd/bot"
	"github.com/michaelpento.lv/arbpipeline/pipeline"
	"github.com/michaelpento.lv/arbpipeline/utils"
	"github.com/michaelpento.lv/arbpipeline/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run pipeline rounds continuously until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		rt, err := pipeline.Build(ctx, cfg, reg, log)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer rt.Close()

		if cfg.MetricsAddr != "" {
			srv := metrics.NewServer(cfg.MetricsAddr, reg)
			go func() {
				log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Metrics server error", zap.Error(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		b := bot.New(rt.Orchestrator, cfg.RoundInterval, log)
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bot: %w", err)
		}
		<-ctx.Done()
		log.Info("Shutting down gracefully...")
		b.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
