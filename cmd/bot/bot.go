package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/michaelpento.lv/arbpipeline/pipeline"
	"go.uber.org/zap"
)

// RoundRunner runs one pipeline round. *pipeline.Orchestrator satisfies it.
type RoundRunner interface {
	RunRound(ctx context.Context) *pipeline.Report
}

// Bot runs pipeline rounds on a fixed interval
type Bot struct {
	runner   RoundRunner
	interval time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup

	rounds   atomic.Uint64
	failures atomic.Uint64
}

// New creates a bot. The first round starts immediately on Start.
func New(runner RoundRunner, interval time.Duration, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{runner: runner, interval: interval, logger: logger}
}

// Start launches the round loop. It stops when ctx is cancelled; a round in
// progress sees the cancellation through its context.
func (b *Bot) Start(ctx context.Context) error {
	if b.interval <= 0 {
		return fmt.Errorf("round interval must be positive, got %s", b.interval)
	}
	b.logger.Info("Starting arbitrage bot...", zap.Duration("interval", b.interval))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx)
	}()
	return nil
}

// Stop waits for the loop to exit.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot...")
	b.wg.Wait()
	b.logger.Info("Bot stopped",
		zap.Uint64("rounds", b.rounds.Load()),
		zap.Uint64("failedRounds", b.failures.Load()))
}

// Rounds returns how many rounds have completed.
func (b *Bot) Rounds() uint64 {
	return b.rounds.Load()
}

// FailedRounds returns how many completed rounds had a failed stage.
func (b *Bot) FailedRounds() uint64 {
	return b.failures.Load()
}

func (b *Bot) loop(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		b.runRound(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bot) runRound(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	report := b.runner.RunRound(ctx)
	n := b.rounds.Add(1)

	fields := []zap.Field{
		zap.Uint64("round", n),
		zap.Int("stages", len(report.Results())),
		zap.Duration("elapsed", time.Since(start)),
	}
	if !report.Success() {
		b.failures.Add(1)
		b.logger.Warn("Round finished with failed stages", fields...)
		return
	}
	b.logger.Info("Round finished", fields...)
}
