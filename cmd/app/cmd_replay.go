package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/repository"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/metrics"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Paper trade a stored series with a saved model",
	Long: `Run stored candles through the same decision, risk and guard path the live
loop uses and print the resulting statistics as JSON.

Example:
  paperquant replay --in data/KRW-BTC.csv --model models/champion.json --trades-out data/trades.csv`,
	RunE: runReplay,
}

var (
	replayIn        []string
	replayModel     string
	replayTradesOut string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringArrayVar(&replayIn, "in", nil, "series file, repeatable")
	replayCmd.Flags().StringVar(&replayModel, "model", "models/champion.json", "model artifact path")
	replayCmd.Flags().StringVar(&replayTradesOut, "trades-out", "", "write closed trades to this file")
	_ = replayCmd.MarkFlagRequired("in")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	model, meta, err := scoring.LoadArtifact(replayModel)
	if err != nil {
		return err
	}
	if err := scoring.CheckFeatures(model, features.Names()); err != nil {
		return fmt.Errorf("%s: %w", replayModel, err)
	}
	log.Info("model loaded", logger.String("path", replayModel), logger.String("mode", meta.Mode), logger.Float64("mean_cv_auc", meta.MeanCVScore))

	var series []models.Candle
	for _, path := range replayIn {
		rows, _, err := repository.ReadSeries(path)
		if err != nil {
			return err
		}
		series = append(series, repository.Candles(rows)...)
	}
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].CloseTime.Before(series[j].CloseTime)
	})

	replayer := usecase.NewReplayer(cfg.Decision, cfg.Risk, cfg.Paper.FeeRate, cfg.IntervalDuration(), log, metrics.NewNop())
	res, err := replayer.Replay(ctx, series, model)
	if err != nil {
		return err
	}
	if replayTradesOut != "" {
		if err := repository.WriteTrades(replayTradesOut, res.Trades); err != nil {
			return fmt.Errorf("write %s: %w", replayTradesOut, err)
		}
	}
	log.Info("replay finished",
		logger.Int("candles", len(series)),
		logger.Int("trades", res.Stats.Trades),
		logger.Float64("total_pnl", res.Stats.TotalPnL),
		logger.Float64("equity", res.Account.Equity),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
