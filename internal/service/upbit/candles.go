package upbit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"PaperQuant/internal/domain/models"
	drepo "PaperQuant/internal/domain/repository"
	pkghttp "PaperQuant/pkg/http"
)

// DefaultRESTURL is the public Upbit quotation API root.
const DefaultRESTURL = "https://api.upbit.com/v1"

// MaxPage is the largest count the candle endpoint accepts.
const MaxPage = 200

const utcLayout = "2006-01-02T15:04:05"

// CandleClient implements CandleSource over the Upbit REST API.
type CandleClient struct {
	baseURL string
	http    *pkghttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	retries   int
	retryWait time.Duration
}

// NewCandleClient creates a client limited to rps requests per second.
func NewCandleClient(baseURL string, rps float64, timeout time.Duration) *CandleClient {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	if rps <= 0 {
		rps = 8
	}
	st := gobreaker.Settings{
		Name:     "upbit-candles",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// throttling means the API is up
		IsSuccessful: func(err error) bool {
			return err == nil || pkghttp.IsStatus(err, http.StatusTooManyRequests)
		},
	}
	return &CandleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    pkghttp.NewClient(pkghttp.WithTimeout(timeout)),
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		breaker:   gobreaker.NewCircuitBreaker(st),
		retries:   3,
		retryWait: time.Second,
	}
}

// WithRetry sets how often a throttled (429) request is retried and the base
// wait, which grows linearly per attempt.
func (c *CandleClient) WithRetry(retries int, wait time.Duration) *CandleClient {
	c.retries, c.retryWait = retries, wait
	return c
}

type restCandle struct {
	Market    string  `json:"market"`
	OpenUTC   string  `json:"candle_date_time_utc"`
	Open      float64 `json:"opening_price"`
	High      float64 `json:"high_price"`
	Low       float64 `json:"low_price"`
	Close     float64 `json:"trade_price"`
	Volume    float64 `json:"candle_acc_trade_volume"`
	Timestamp int64   `json:"timestamp"`
}

// CandlesBefore returns up to count candles whose open time is before the
// given instant, newest first, as the API serves them.
func (c *CandleClient) CandlesBefore(ctx context.Context, symbol string, iv drepo.Interval, before time.Time, count int) ([]models.Candle, error) {
	if count < 1 || count > MaxPage {
		return nil, fmt.Errorf("count must be in [1, %d], got %d", MaxPage, count)
	}
	if !drepo.IsValidInterval(iv) {
		return nil, fmt.Errorf("unsupported interval %q", iv)
	}
	var out []restCandle
	for attempt := 0; ; attempt++ {
		var err error
		out, err = c.fetch(ctx, symbol, iv, before, count)
		if err == nil {
			break
		}
		if !pkghttp.IsStatus(err, http.StatusTooManyRequests) || attempt >= c.retries {
			return nil, fmt.Errorf("upbit candles %s: %w", symbol, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.retryWait):
		}
	}

	width := iv.Duration()
	candles := make([]models.Candle, 0, len(out))
	for _, r := range out {
		open, err := time.ParseInLocation(utcLayout, r.OpenUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse candle time %q: %w", r.OpenUTC, err)
		}
		candles = append(candles, models.Candle{
			Symbol:    symbol,
			OpenTime:  open,
			CloseTime: open.Add(width),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return candles, nil
}

func (c *CandleClient) fetch(ctx context.Context, symbol string, iv drepo.Interval, before time.Time, count int) ([]restCandle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out []restCandle
		err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:  pkghttp.MethodGet,
			URL:     fmt.Sprintf("%s/candles/minutes/%d", c.baseURL, iv.Minutes()),
			Headers: map[string]string{"Accept": "application/json"},
			QueryParams: map[string][]string{
				"market": {symbol},
				"count":  {strconv.Itoa(count)},
				"to":     {before.UTC().Format(time.RFC3339)},
			},
		}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return res.([]restCandle), nil
}
// BreakerState reports the circuit state for health output.
func (c *CandleClient) BreakerState() string {
	return c.breaker.State().String()
}

var _ drepo.CandleSource = (*CandleClient)(nil)
