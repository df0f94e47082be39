package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"PaperQuant/internal/domain/models"
	"PaperQuant/internal/domain/repository"
	"PaperQuant/internal/domain/service"
	"PaperQuant/internal/handler/api"
	mid "PaperQuant/internal/middleware"
	internalrepo "PaperQuant/internal/repository"
	"PaperQuant/internal/service/cache"
	"PaperQuant/internal/service/ratelimit"
	"PaperQuant/internal/service/upbit"
	"PaperQuant/internal/services/candles"
	"PaperQuant/internal/services/decision"
	"PaperQuant/internal/services/features"
	"PaperQuant/internal/services/paper"
	"PaperQuant/internal/services/risk"
	"PaperQuant/internal/usecase"
	pkgch "PaperQuant/pkg/clickhouse"
	"PaperQuant/pkg/config"
	xhttp "PaperQuant/pkg/http"
	pkgkafka "PaperQuant/pkg/kafka"
	"PaperQuant/pkg/logger"
	"PaperQuant/pkg/metrics"
	"PaperQuant/pkg/server"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if cfg.Metrics.Disabled {
		return metrics.NewNop()
	}
	return metrics.New(nil)
}

// ProvideClickHouseClient connects and creates the schema. It returns nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, log *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithPool(pkgch.PoolConfig{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 5 * time.Minute}),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready", logger.String("database", cfg.ClickHouse.Database))
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", logger.Error(err))
		}
	}, nil
}

// ProvideRedisClient returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config, log *logger.Logger) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("redis ready", logger.String("addr", cfg.Redis.Addr))
	return rdb, func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close error", logger.Error(err))
		}
	}, nil
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(p.RequiredAcks, p.MaxAttempts),
		pkgkafka.WithBatching(pkgkafka.BatchConfig{Size: p.BatchSize, Bytes: p.BatchBytes, Linger: p.Linger}),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}, nil
}

// ProvideCandleStore returns nil without ClickHouse.
func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) repository.CandleStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, log)
}

// ProvideLedgers collects every configured trade sink.
func ProvideLedgers(cfg *config.Config, ch *pkgch.Client, producer *pkgkafka.Producer) []repository.TradeLedger {
	var out []repository.TradeLedger
	if ch != nil {
		out = append(out, internalrepo.NewCHLedger(ch, cfg.ClickHouse.Database))
	}
	if producer != nil && cfg.Kafka.TradesTopic != "" {
		out = append(out, internalrepo.NewKafkaLedger(producer, cfg.Kafka.TradesTopic))
	}
	return out
}

// ProvideStateStore returns nil without Redis.
func ProvideStateStore(cfg *config.Config, rdb *redis.Client) repository.StateStore {
	if rdb == nil {
		return nil
	}
	return internalrepo.NewRedisStateStore(rdb, cfg.Redis.Prefix)
}

// ProvideResponseCache shares cached API responses through Redis when it is
// available and falls back to process memory.
func ProvideResponseCache(cfg *config.Config, rdb *redis.Client) cache.BytesCache {
	if rdb == nil {
		return cache.NewTTLCache()
	}
	return cache.NewRedisCache(rdb, cfg.Redis.Prefix+":api:")
}

func ProvideAccount(cfg *config.Config) *models.Account {
	return models.NewAccount(cfg.Risk.StartingEquity)
}

func ProvideStatusBoard(acct *models.Account) *usecase.StatusBoard {
	return usecase.NewStatusBoard(*acct)
}

func ProvidePortfolio(cfg *config.Config) *paper.Portfolio {
	return paper.New(cfg.Paper.FeeRate)
}

func ProvideRiskEngine(cfg *config.Config) (*risk.Engine, error) {
	return risk.NewEngine(cfg.Risk)
}

func ProvideDecisionEngine(cfg *config.Config, re *risk.Engine, book *paper.Portfolio, log *logger.Logger, m repository.Metrics) (*decision.Engine, error) {
	return decision.NewEngine(cfg.Decision, re, risk.NewGuard(cfg.Risk), book,
		decision.WithLogger(log.With(logger.String("component", "decision"))),
		decision.WithMetrics(m),
	)
}

func ProvideAggregator(cfg *config.Config, m repository.Metrics) (*candles.Aggregator, error) {
	return candles.New(cfg.IntervalDuration(), cfg.Market.LateTolerance, candles.WithMetrics(m))
}

func ProvideFeatureComputer(cfg *config.Config) *features.Computer {
	return features.NewComputer(cfg.IntervalDuration())
}

func ProvideTickPipeline(cfg *config.Config, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(m,
		mid.WithBufferSize(cfg.Feed.QueueSize),
		mid.WithSymbols(cfg.Market.Symbols),
	)
}

// ProvideUpbitFeed streams trades for the configured markets from Upbit.
func ProvideUpbitFeed(cfg *config.Config, m repository.Metrics, log *logger.Logger) *usecase.StreamFeed {
	l := log.With(logger.String("component", "upbit"))
	stream := upbit.NewStream(cfg.Feed.WebSocketURL, cfg.Market.Symbols, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, l)
	return usecase.NewStreamFeed(stream, m, l, cfg.Feed.ReconnectDelay)
}

// ProvideTickFeed picks the live tick source: the exchange itself or ticks
// relayed onto Kafka by another process.
func ProvideTickFeed(cfg *config.Config, m repository.Metrics, log *logger.Logger) (usecase.TickFeed, error) {
	switch cfg.Feed.Source {
	case "upbit":
		return ProvideUpbitFeed(cfg, m, log), nil
	case "kafka":
		c := cfg.Kafka.Consumer
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(c.GroupID),
			pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
			pkgkafka.WithConsumerDLQ(c.DLQTopic),
			pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
			pkgkafka.WithConsumerLogger(log.With(logger.String("component", "kafka"))),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		return usecase.NewKafkaFeed(consumer, cfg.Kafka.TicksTopic, m, log), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.Feed.Source)
	}
}

func ProvideLiveRunner(
	cfg *config.Config,
	feed usecase.TickFeed,
	pipe *mid.TickPipeline,
	agg *candles.Aggregator,
	fc *features.Computer,
	engine *decision.Engine,
	book *paper.Portfolio,
	scorer service.Scorer,
	acct *models.Account,
	board *usecase.StatusBoard,
	store repository.CandleStore,
	ledgers []repository.TradeLedger,
	state repository.StateStore,
	log *logger.Logger,
	m repository.Metrics,
) *usecase.LiveRunner {
	return usecase.NewLiveRunner(cfg.Live, feed, pipe, agg, fc, engine, book, scorer, acct, board,
		usecase.WithCandleStore(store),
		usecase.WithLedgers(ledgers...),
		usecase.WithStateStore(state),
		usecase.WithLiveLogger(log.With(logger.String("component", "live"))),
		usecase.WithLiveMetrics(m),
	)
}

func ProvideStatusHandler(
	cfg *config.Config,
	log *logger.Logger,
	board *usecase.StatusBoard,
	book *paper.Portfolio,
	engine *decision.Engine,
	feed usecase.TickFeed,
	store repository.CandleStore,
	respCache cache.BytesCache,
	ch *pkgch.Client,
	rdb *redis.Client,
) *api.StatusEchoHandler {
	opts := []api.Option{}
	if store != nil {
		opts = append(opts, api.WithCandles(usecase.NewCandlesUseCase(store, cfg.IntervalDuration()), respCache, cfg.Redis.CacheTTL))
	}
	if ch != nil {
		opts = append(opts, api.WithHealth("clickhouse", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return ch.Health(ctx)
		}))
	}
	if rdb != nil {
		opts = append(opts, api.WithHealth("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rdb.Ping(ctx).Err()
		}))
	}
	if f, ok := feed.(interface{ IsConnected() bool }); ok {
		opts = append(opts, api.WithHealth("feed", func() error {
			if !f.IsConnected() {
				return errors.New("feed disconnected")
			}
			return nil
		}))
	}
	return api.NewStatusEchoHandler(log, board, book, engine, opts...)
}

// ProvideHTTPServer returns nil when the status API is disabled.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.StatusEchoHandler) *xhttp.Server {
	if cfg.Server.Disabled {
		return nil
	}
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithMetrics(!cfg.Metrics.Disabled, nil, nil),
		xhttp.WithServerLogger(log.With(logger.String("component", "http"))),
	}
	if cfg.Server.RateLimitRPS > 0 {
		opts = append(opts, xhttp.WithRateLimit(ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute)))
	}
	return xhttp.NewServer([]xhttp.Handler{h}, opts...)
}

func ProvideApp(cfg *config.Config, log *logger.Logger, runner *usecase.LiveRunner, srv *xhttp.Server) *server.App {
	return server.New(cfg, log, runner, srv)
}

// ProvideTickPublisher publishes relayed ticks to the ticks topic.
func ProvideTickPublisher(cfg *config.Config, producer *pkgkafka.Producer) (repository.TickPublisher, error) {
	if producer == nil {
		return nil, errors.New("relay requires kafka.brokers")
	}
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic), nil
}

func ProvideTickRelay(pub repository.TickPublisher, m repository.Metrics, log *logger.Logger) *usecase.TickRelay {
	return usecase.NewTickRelay(pub, m, log, "kafka")
}

func ProvideRelay(cfg *config.Config, feed *usecase.StreamFeed, relay *usecase.TickRelay, log *logger.Logger) *server.Relay {
	return server.NewRelay(cfg, feed, relay, log)
}
