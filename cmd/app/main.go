package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PaperQuant/internal/di"
	"PaperQuant/pkg/config"
	"PaperQuant/pkg/logger"
)

var (
	cfgPath string

	rootCmd = &cobra.Command{
		Use:   "paperquant",
		Short: "Minute-bar research pipeline and live paper trader for Upbit KRW markets",
		Long: `paperquant collects minute candles, derives features and triple-barrier labels,
selects a scorer by walk-forward validation and runs it against the live feed
with simulated fills.

Stages:
  collect    backfill candles from the REST API into a series file
  featurize  attach feature vectors to a series
  label      attach triple-barrier labels to a featurized series
  train      walk-forward champion selection, writes a model artifact
  replay     run a series through the paper trader
  run        live paper trading with the status API
  relay      forward the exchange tick feed onto Kafka`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "paperquant: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the process logger.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadWithEnv(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := di.ProvideLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log.With(logger.String("env", cfg.Environment)), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
