package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelpento.lv/arbpipeline/cmd"
	"github.com/michaelpento.lv/arbpipeline/utils"
)

func main() {
	// Cancellation reaches in-flight rounds, including receipt polling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	utils.CleanupLogger()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
