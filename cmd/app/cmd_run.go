package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"PaperQuant/internal/di"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Paper trade the live tick feed",
	Long: `Aggregate live ticks into candles, score every closed candle with the saved
model and paper trade the configured markets until interrupted. The status API
and /metrics are served alongside unless server.disabled is set.

Example:
  paperquant run --model models/champion.json`,
	RunE: runRun,
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish the exchange tick stream to Kafka",
	Long: `Subscribe to the exchange trade stream and publish every tick to
kafka.ticks_topic keyed by market, so that run instances configured with
feed.source=kafka can consume it.`,
	RunE: runRelay,
}

var runModel string

func init() {
	rootCmd.AddCommand(runCmd, relayCmd)
	runCmd.Flags().StringVar(&runModel, "model", "models/champion.json", "model artifact path")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	model, meta, err := scoring.LoadArtifact(runModel)
	if err != nil {
		return err
	}
	if err := scoring.CheckFeatures(model, features.Names()); err != nil {
		return fmt.Errorf("%s: %w", runModel, err)
	}
	log.Info("model loaded",
		logger.String("path", runModel),
		logger.String("mode", meta.Mode),
		logger.Float64("mean_cv_auc", meta.MeanCVScore),
		logger.Time("trained_at", meta.TrainedAt),
	)

	app, cleanup, err := di.InitializeApp(cfg, log, model)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()
	return app.Run(ctx)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	relay, cleanup, err := di.InitializeRelay(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()
	return relay.Run(ctx)
}
