package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"PaperQuant/internal/domain/models"
	"PaperQuant/pkg/util"
)

var candleColumns = []string{
	"symbol", "open_time", "close_time", "open", "high", "low", "close", "volume", "trade_count", "synthetic",
}

var labelColumns = []string{"outcome", "holding_length", "realized_return"}

// WriteSeries writes rows as CSV keyed by close_time. featureNames selects the
// feature columns; withLabels adds the label columns. The file is replaced atomically.
func WriteSeries(path string, rows []models.SeriesRow, featureNames []string, withLabels bool) error {
	return util.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeSeries(w, rows, featureNames, withLabels)
	})
}

// EncodeSeries writes the CSV form of rows to w.
func EncodeSeries(w io.Writer, rows []models.SeriesRow, featureNames []string, withLabels bool) error {
	cw := csv.NewWriter(w)
	header := append([]string{}, candleColumns...)
	header = append(header, featureNames...)
	if withLabels {
		header = append(header, labelColumns...)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for i, r := range rows {
		c := r.Candle
		rec = rec[:0]
		rec = append(rec,
			c.Symbol,
			c.OpenTime.UTC().Format(time.RFC3339Nano),
			c.CloseTime.UTC().Format(time.RFC3339Nano),
			ff(c.Open), ff(c.High), ff(c.Low), ff(c.Close), ff(c.Volume),
			strconv.Itoa(c.TradeCount),
			strconv.FormatBool(c.Synthetic),
		)
		for _, name := range featureNames {
			v, ok := featureValue(r.Features, name)
			if !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, ff(v))
		}
		if withLabels {
			if r.Label == nil {
				return fmt.Errorf("row %d has no label", i)
			}
			rec = append(rec, string(r.Label.Outcome), strconv.Itoa(r.Label.HoldingLength), ff(r.Label.RealizedReturn))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSeries reads a file written by WriteSeries. It returns the feature
// column names found in the header.
func ReadSeries(path string) ([]models.SeriesRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	rows, names, err := DecodeSeries(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, names, nil
}

// DecodeSeries parses the CSV form produced by EncodeSeries.
func DecodeSeries(r io.Reader) ([]models.SeriesRow, []string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(candleColumns) {
		return nil, nil, errors.New("header too short")
	}
	for i, col := range candleColumns {
		if header[i] != col {
			return nil, nil, fmt.Errorf("column %d: want %q, got %q", i, col, header[i])
		}
	}
	rest := header[len(candleColumns):]
	withLabels := len(rest) >= len(labelColumns)
	if withLabels {
		tail := rest[len(rest)-len(labelColumns):]
		for i, col := range labelColumns {
			if tail[i] != col {
				withLabels = false
				break
			}
		}
	}
	names := rest
	if withLabels {
		names = rest[:len(rest)-len(labelColumns)]
	}
	names = append([]string(nil), names...)

	var out []models.SeriesRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		row, err := parseRow(rec, names, withLabels)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, row)
	}
	return out, names, nil
}

func parseRow(rec []string, names []string, withLabels bool) (models.SeriesRow, error) {
	var (
		row models.SeriesRow
		p   parser
	)
	c := &row.Candle
	c.Symbol = rec[0]
	c.OpenTime = p.time(rec[1])
	c.CloseTime = p.time(rec[2])
	c.Open = p.float(rec[3])
	c.High = p.float(rec[4])
	c.Low = p.float(rec[5])
	c.Close = p.float(rec[6])
	c.Volume = p.float(rec[7])
	c.TradeCount = p.int(rec[8])
	c.Synthetic = p.bool(rec[9])

	if len(names) > 0 {
		fv := models.FeatureVector{Symbol: c.Symbol, Timestamp: c.CloseTime, Names: names}
		vals := rec[len(candleColumns) : len(candleColumns)+len(names)]
		if vals[0] == "" {
			fv.Partial = true
		} else {
			fv.Values = make([]float64, len(vals))
			for i, s := range vals {
				fv.Values[i] = p.float(s)
			}
		}
		row.Features = &fv
	}
	if withLabels {
		base := len(candleColumns) + len(names)
		row.Label = &models.Label{
			Outcome:        models.Outcome(rec[base]),
			HoldingLength:  p.int(rec[base+1]),
			RealizedReturn: p.float(rec[base+2]),
		}
	}
	return row, p.err
}

// parser keeps the first conversion error.
type parser struct{ err error }

func (p *parser) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	p.keep(err)
	return v
}

func (p *parser) int(s string) int {
	v, err := strconv.Atoi(s)
	p.keep(err)
	return v
}

func (p *parser) bool(s string) bool {
	v, err := strconv.ParseBool(s)
	p.keep(err)
	return v
}

func (p *parser) time(s string) time.Time {
	v, err := time.Parse(time.RFC3339Nano, s)
	p.keep(err)
	return v.UTC()
}

func (p *parser) keep(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

func featureValue(fv *models.FeatureVector, name string) (float64, bool) {
	if fv == nil || fv.Partial {
		return 0, false
	}
	return fv.Value(name)
}

// ff formats with the shortest representation that parses back to the same float.
func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Candles extracts the candle column.
func Candles(rows []models.SeriesRow) []models.Candle {
	out := make([]models.Candle, len(rows))
	for i, r := range rows {
		out[i] = r.Candle
	}
	return out
}

// WriteTrades exports a trade ledger as CSV, replacing path atomically.
func WriteTrades(path string, trades []models.Trade) error {
	return util.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"id", "symbol", "entry_time", "exit_time", "entry_price", "exit_price", "size", "fees", "pnl", "exit_reason"})
		for _, t := range trades {
			_ = cw.Write([]string{
				t.ID, t.Symbol,
				t.EntryTime.UTC().Format(time.RFC3339Nano),
				t.ExitTime.UTC().Format(time.RFC3339Nano),
				ff(t.EntryPrice), ff(t.ExitPrice), ff(t.Size), ff(t.Fees), ff(t.PnL),
				string(t.Reason),
			})
		}
		cw.Flush()
		return cw.Error()
	})
}
