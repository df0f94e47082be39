package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"PaperQuant/internal/di"
	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/repository"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/scoring"
	"PaperQuant/internal/services/walkforward"
	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/util"
)

var featurizeCmd = &cobra.Command{
	Use:   "featurize",
	Short: "Attach feature vectors to a series",
	Long: `Compute the feature vector of every candle from its trailing window.
Rows with less history than the longest lookback keep empty feature columns.

Examples:
  paperquant featurize --in data/KRW-BTC.csv --out data/KRW-BTC.features.csv
  paperquant featurize --from-clickhouse --symbol KRW-BTC --from 2024-03-01 --out data/btc.features.csv`,
	RunE: runFeaturize,
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Attach triple-barrier labels to a featurized series",
	Long: `Label every row that has a complete feature vector and a full forward window.
Rows that cannot be labeled are dropped from the output.

Example:
  paperquant label --in data/KRW-BTC.features.csv --out data/KRW-BTC.labeled.csv`,
	RunE: runLabel,
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Select a champion scorer by walk-forward validation",
	Long: `Fit one model per walk-forward fold, score each on its validation range and
write the champion as a versioned model artifact.

Example:
  paperquant train --in data/KRW-BTC.labeled.csv --in data/KRW-ETH.labeled.csv --model models/champion.json`,
	RunE: runTrain,
}

var (
	featIn     string
	featOut    string
	featFromCH bool
	featSymbol string
	featFrom   string
	featTo     string
	labelIn    string
	labelOut   string
	trainIn    []string
	trainModel string
)

func init() {
	rootCmd.AddCommand(featurizeCmd, labelCmd, trainCmd)

	featurizeCmd.Flags().StringVar(&featIn, "in", "", "input series file")
	featurizeCmd.Flags().StringVar(&featOut, "out", "", "output series file")
	featurizeCmd.Flags().BoolVar(&featFromCH, "from-clickhouse", false, "read candles from ClickHouse instead of --in")
	featurizeCmd.Flags().StringVar(&featSymbol, "symbol", "", "market to read with --from-clickhouse")
	featurizeCmd.Flags().StringVar(&featFrom, "from", "", "start of the ClickHouse range (default: 30 days before --to)")
	featurizeCmd.Flags().StringVar(&featTo, "to", "", "end of the ClickHouse range (default: now)")
	_ = featurizeCmd.MarkFlagRequired("out")

	labelCmd.Flags().StringVar(&labelIn, "in", "", "featurized series file")
	labelCmd.Flags().StringVar(&labelOut, "out", "", "labeled series file")
	_ = labelCmd.MarkFlagRequired("in")
	_ = labelCmd.MarkFlagRequired("out")

	trainCmd.Flags().StringArrayVar(&trainIn, "in", nil, "labeled series file, repeatable")
	trainCmd.Flags().StringVar(&trainModel, "model", "models/champion.json", "model artifact path")
	_ = trainCmd.MarkFlagRequired("in")
}

func runFeaturize(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	var series []models.Candle
	switch {
	case featFromCH:
		if featSymbol == "" {
			return errors.New("--from-clickhouse needs --symbol")
		}
		ctx, stop := signalContext()
		defer stop()
		ch, cleanup, err := di.ProvideClickHouseClient(cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()
		if ch == nil {
			return errors.New("--from-clickhouse needs clickhouse.enabled")
		}
		to := util.ParseTimeDefault(featTo, time.Now().UTC())
		from := util.ParseTimeDefault(featFrom, to.AddDate(0, 0, -30))
		uc := usecase.NewCandlesUseCase(di.ProvideCandleStore(cfg, ch, log), cfg.IntervalDuration())
		res, err := uc.GetCandles(ctx, usecase.GetCandlesParams{Symbol: featSymbol, From: from, To: to, Limit: 500000})
		if err != nil {
			return err
		}
		series = res.Candles
	case featIn != "":
		rows, _, err := repository.ReadSeries(featIn)
		if err != nil {
			return err
		}
		series = repository.Candles(rows)
	default:
		return errors.New("featurize needs --in or --from-clickhouse")
	}

	rows, err := usecase.Featurize(series, cfg.IntervalDuration())
	if err != nil {
		return err
	}
	complete := 0
	for _, r := range rows {
		if r.Features != nil && !r.Features.Partial {
			complete++
		}
	}
	if err := repository.WriteSeries(featOut, rows, features.Names(), false); err != nil {
		return fmt.Errorf("write %s: %w", featOut, err)
	}
	log.Info("features written",
		logger.String("path", featOut),
		logger.Int("rows", len(rows)),
		logger.Int("complete", complete),
	)
	return nil
}

func runLabel(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	rows, names, err := repository.ReadSeries(labelIn)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%s has no feature columns, run featurize first", labelIn)
	}
	labeled, err := usecase.LabelRows(rows, cfg.Labeling)
	if err != nil {
		return err
	}
	counts := make(map[models.Outcome]int)
	for _, r := range labeled {
		counts[r.Label.Outcome]++
	}
	if err := repository.WriteSeries(labelOut, labeled, names, true); err != nil {
		return fmt.Errorf("write %s: %w", labelOut, err)
	}
	log.Info("labels written",
		logger.String("path", labelOut),
		logger.Int("rows", len(labeled)),
		logger.Int("tp", counts[models.OutcomeTP]),
		logger.Int("sl", counts[models.OutcomeSL]),
		logger.Int("timeout", counts[models.OutcomeTimeout]),
	)
	return nil
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	var rows []models.SeriesRow
	for _, path := range trainIn {
		part, _, err := repository.ReadSeries(path)
		if err != nil {
			return err
		}
		rows = append(rows, part...)
	}
	// one chronological axis across markets
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Candle.CloseTime.Before(rows[j].Candle.CloseTime)
	})

	horizon := time.Duration(cfg.Labeling.MaxHolding) * cfg.IntervalDuration()
	trainer := usecase.NewTrainer(cfg.Training.TrainerConfig, scoring.Fitter(cfg.Training.TrainConfig), walkforward.AUC, log,
		usecase.WithLabelHorizon(horizon))
	champ, err := trainer.Train(ctx, rows)
	if err != nil {
		return err
	}
	model, ok := champ.Scorer.(*scoring.Logistic)
	if !ok {
		return fmt.Errorf("champion scorer %T cannot be saved", champ.Scorer)
	}
	meta := scoring.Meta{
		Mode:          string(champ.Mode),
		MeanCVScore:   champ.MeanScore,
		BestFoldScore: champ.BestScore,
		BestFold:      champ.BestFold,
		Rows:          len(rows),
		TrainedAt:     time.Now().UTC(),
	}
	for _, f := range champ.Folds {
		meta.FoldScores = append(meta.FoldScores, f.Score)
	}
	if err := scoring.SaveArtifact(trainModel, model, meta); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	log.Info("model written", logger.String("path", trainModel), logger.Float64("mean_cv_auc", champ.MeanScore))
	return nil
}
