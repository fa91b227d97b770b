package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/michaelpento.lv/arbpipeline/scoring/server"
	"github.com/michaelpento.lv/arbpipeline/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoringAddr string

var serveScoringCmd = &cobra.Command{
	Use:   "serve-scoring",
	Short: "Serve the reference rule-based scoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		srv := server.New(scoringAddr, server.RuleModel{}, log)

		errCh := make(chan error, 1)
		go func() {
			log.Info("Starting scoring service", zap.String("addr", scoringAddr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveScoringCmd)
	serveScoringCmd.Flags().StringVar(&scoringAddr, "addr", ":8000", "listen address")
}
