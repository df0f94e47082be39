package server

import (
	"context"
	"errors"

	"PaperQuant/internal/usecase"
	"PaperQuant/pkg/config"
	applogger "PaperQuant/pkg/logger"
)

// Relay forwards the exchange tick feed onto the Kafka ticks topic so live
// traders can consume it with feed.source kafka.
type Relay struct {
	cfg   *config.Config
	feed  *usecase.StreamFeed
	relay *usecase.TickRelay
	log   *applogger.Logger
}

func NewRelay(cfg *config.Config, feed *usecase.StreamFeed, relay *usecase.TickRelay, log *applogger.Logger) *Relay {
	return &Relay{cfg: cfg, feed: feed, relay: relay, log: log}
}

// Run blocks until ctx is cancelled or the feed fails for good.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relaying ticks",
		applogger.Strings("symbols", r.cfg.Market.Symbols),
		applogger.String("topic", r.cfg.Kafka.TicksTopic),
	)
	err := r.feed.Run(ctx, r.relay)
	r.log.Info("relay stopped", applogger.Int64("relayed", r.relay.Sent()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
