package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"PaperQuant/internal/di"
	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	"PaperQuant/internal/repository"
	"PaperQuant/internal/service/upbit"
	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/util"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Backfill minute candles into series files",
	Long: `Page candles backwards from the REST API, fill gaps with synthetic candles
and write one series file per market.

Examples:
  paperquant collect --days 30
  paperquant collect --symbol KRW-BTC --days 7 --out data/btc.csv --store`,
	RunE: runCollect,
}

var (
	collectSymbol string
	collectDays   int
	collectUntil  string
	collectOut    string
	collectStore  bool
)

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringVar(&collectSymbol, "symbol", "", "market to collect (default: every configured market)")
	collectCmd.Flags().IntVar(&collectDays, "days", 30, "days of history")
	collectCmd.Flags().StringVar(&collectUntil, "until", "", "collect candles opening before this instant (default: now)")
	collectCmd.Flags().StringVar(&collectOut, "out", "data/{symbol}.csv", "output path, {symbol} is replaced by the market")
	collectCmd.Flags().BoolVar(&collectStore, "store", false, "also write candles to ClickHouse")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	until := time.Now().UTC()
	if collectUntil != "" {
		t, ok := util.ParseTime(collectUntil)
		if !ok {
			return fmt.Errorf("invalid --until %q", collectUntil)
		}
		until = t
	}
	symbols := cfg.Market.Symbols
	if collectSymbol != "" {
		symbols = []string{collectSymbol}
	}
	if len(symbols) > 1 && !strings.Contains(collectOut, "{symbol}") {
		return errors.New("--out must contain {symbol} when collecting several markets")
	}

	var store drepo.CandleStore
	if collectStore {
		ch, cleanup, err := di.ProvideClickHouseClient(cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()
		if ch == nil {
			return errors.New("--store needs clickhouse.enabled")
		}
		store = di.ProvideCandleStore(cfg, ch, log)
	}

	src := upbit.NewCandleClient(cfg.Feed.RESTURL, cfg.Feed.RESTRPS, cfg.Feed.RESTTimeout)
	collector := usecase.NewCollector(src, store, log)
	for _, symbol := range symbols {
		series, err := collector.Collect(ctx, symbol, cfg.Market.Interval, collectDays, until)
		if err != nil {
			log.Error("collect failed", logger.String("symbol", symbol), logger.String("breaker", src.BreakerState()), logger.Error(err))
			return err
		}
		path := strings.ReplaceAll(collectOut, "{symbol}", symbol)
		if err := repository.WriteSeries(path, candleRows(series), nil, false); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Info("series written", logger.String("symbol", symbol), logger.String("path", path), logger.Int("candles", len(series)))
	}
	return nil
}

func candleRows(series []models.Candle) []models.SeriesRow {
	rows := make([]models.SeriesRow, len(series))
	for i, c := range series {
		rows[i] = models.SeriesRow{Candle: c}
	}
	return rows
}
