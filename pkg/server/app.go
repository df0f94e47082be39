package server

import (
	"context"
	"errors"
	"fmt"

	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/config"
	xhttp "PaperQuant/pkg/http"
	applogger "PaperQuant/pkg/logger"
)

// App encapsulates the live paper trader lifecycle: optional state restore, the
// status API and the live loop.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	runner     *usecase.LiveRunner
	httpServer *xhttp.Server
}

// New creates an App. httpServer may be nil when the API is disabled.
func New(cfg *config.Config, log *applogger.Logger, runner *usecase.LiveRunner, httpServer *xhttp.Server) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		runner:     runner,
		httpServer: httpServer,
	}
}

// Run blocks until ctx is cancelled or the live loop fails. Cancelling ctx
// drains queued ticks and candles before Run returns.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Redis.Restore {
		restored, err := a.runner.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if !restored {
			a.log.Info("no checkpoint found, starting fresh")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
		go func() {
			select {
			case err := <-a.httpServer.Err():
				a.log.Error("status api stopped, shutting down", applogger.Error(err))
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a.log.Info("live paper trading started",
		applogger.Strings("symbols", a.cfg.Market.Symbols),
		applogger.String("interval", string(a.cfg.Market.Interval)),
		applogger.String("feed", a.cfg.Feed.Source),
	)
	runErr := a.runner.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	a.log.Info("shutting down")
	if a.httpServer != nil {
		if err := a.httpServer.Stop(context.Background()); err != nil {
			a.log.Warn("http shutdown error", applogger.Error(err))
		}
	}
	return runErr
}
