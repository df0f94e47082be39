package api

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/service/cache"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/risk"
	"PaperQuant/internal/usecase"
	xhttp "PaperQuant/pkg/http"
	xlogger "PaperQuant/pkg/logger"
	"PaperQuant/pkg/util"
)

// DenialCounter reports guard denials by reason.
type DenialCounter interface {
	Denials() map[risk.Reason]int
}

// HealthChecker is called by /healthz; a nil error means healthy.
type HealthChecker func() error

// Option configures StatusEchoHandler.
type Option func(*StatusEchoHandler)

// WithCandles serves /api/candles from persisted candles, caching rendered
// responses for ttl when c is not nil.
func WithCandles(uc *usecase.CandlesUseCase, c cache.BytesCache, ttl time.Duration) Option {
	return func(h *StatusEchoHandler) {
		h.candles, h.cache, h.cacheTTL = uc, c, ttl
	}
}

// WithHealth adds a named dependency check to /healthz.
func WithHealth(name string, check HealthChecker) Option {
	return func(h *StatusEchoHandler) {
		h.health[name] = check
	}
}

// StatusEchoHandler exposes the live paper account read-only.
type StatusEchoHandler struct {
	logger   *xlogger.Logger
	board    *usecase.StatusBoard
	book     *paper.Portfolio
	denials  DenialCounter
	candles  *usecase.CandlesUseCase
	cache    cache.BytesCache
	cacheTTL time.Duration
	health   map[string]HealthChecker
}

func NewStatusEchoHandler(logger *xlogger.Logger, board *usecase.StatusBoard, book *paper.Portfolio, denials DenialCounter, opts ...Option) *StatusEchoHandler {
	h := &StatusEchoHandler{
		logger:  logger,
		board:   board,
		book:    book,
		denials: denials,
		health:  make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/account", h.Account)
	g.GET("/positions", h.Positions)
	g.GET("/trades", h.Trades)
	g.GET("/stats", h.Stats)
	g.GET("/equity", h.Equity)
	g.GET("/guard", h.Guard)
	g.GET("/symbols", h.Symbols)
	if h.candles != nil {
		g.GET("/candles", h.Candles)
	}
}

type accountView struct {
	models.Account
	StartedAt time.Time `json:"started_at"`
	Candles   int64     `json:"candles"`
	LastAt    time.Time `json:"last_candle_at,omitempty"`
	Open      int       `json:"open_positions"`
}

func (h *StatusEchoHandler) Account(c echo.Context) error {
	n, last := h.board.Processed()
	return xhttp.SuccessResponse(c, accountView{
		Account:   h.board.Account(),
		StartedAt: h.board.StartedAt(),
		Candles:   n,
		LastAt:    last,
		Open:      len(h.book.Positions()),
	})
}

func (h *StatusEchoHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.book.Positions())
}

func (h *StatusEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	total := 0
	for _, t := range h.book.Trades() {
		if req.Symbol == "" || t.Symbol == req.Symbol {
			total++
		}
	}
	return xhttp.ListResponse(c, h.book.Page(req.Symbol, req.Offset, req.Limit), int64(total))
}

// startEquity backs the session start out of the ledger; equity only moves on closed trades.
func (h *StatusEchoHandler) startEquity(trades []models.Trade) float64 {
	eq := h.board.Account().Equity
	for _, t := range trades {
		eq -= t.PnL
	}
	return eq
}

func (h *StatusEchoHandler) Stats(c echo.Context) error {
	trades := h.book.Trades()
	return xhttp.SuccessResponse(c, paper.ComputeStats(h.startEquity(trades), trades))
}

func (h *StatusEchoHandler) Equity(c echo.Context) error {
	req := &models.EquityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	trades := h.book.Trades()
	curve := paper.EquityCurve(h.startEquity(trades), trades)
	if len(curve) > req.Points {
		curve = curve[len(curve)-req.Points:]
	}
	return xhttp.SuccessResponse(c, curve)
}

type denialView struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func (h *StatusEchoHandler) Guard(c echo.Context) error {
	out := make([]denialView, 0)
	if h.denials != nil {
		for r, n := range h.denials.Denials() {
			out = append(out, denialView{Reason: string(r), Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return xhttp.SuccessResponse(c, out)
}

func (h *StatusEchoHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.board.Symbols())
}

func (h *StatusEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	to := util.ParseTimeDefault(req.To, time.Now().UTC())
	from := util.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if from.After(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must not be after to"))
	}

	ctx := c.Request().Context()
	key := fmt.Sprintf("candles:%s:%d:%d:%d", req.Symbol, from.Unix(), to.Unix(), req.Limit)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(ctx, key); err == nil && ok {
			c.Response().Header().Set("X-Cache", "hit")
			return c.JSONBlob(http.StatusOK, b)
		} else if err != nil {
			h.logger.Warn("candle cache read failed", xlogger.Error(err))
		}
	}

	res, err := h.candles.GetCandles(ctx, usecase.GetCandlesParams{
		Symbol: req.Symbol,
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("candle store unavailable").Wrap(err))
	}

	if h.cache == nil {
		return xhttp.SuccessResponse(c, res)
	}
	b, err := xhttp.EncodeEnvelope(http.StatusOK, res)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if err := h.cache.SetBytes(ctx, key, b, h.cacheTTL); err != nil {
		h.logger.Warn("candle cache write failed", xlogger.Error(err))
	}
	c.Response().Header().Set("X-Cache", "miss")
	return c.JSONBlob(http.StatusOK, b)
}

func (h *StatusEchoHandler) Health(c echo.Context) error {
	failed := make(map[string]string)
	for name, check := range h.health {
		if err := check(); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, failed)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
