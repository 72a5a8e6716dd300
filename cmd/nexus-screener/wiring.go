package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nexus-trading/screener/internal/adapters/dexscreener"
	"github.com/nexus-trading/screener/internal/adapters/pocketuniverse"
	"github.com/nexus-trading/screener/internal/adapters/rugcheck"
	"github.com/nexus-trading/screener/internal/adapters/toxisol"
	"github.com/nexus-trading/screener/internal/audit"
	"github.com/nexus-trading/screener/internal/blacklist"
	"github.com/nexus-trading/screener/internal/bus"
	"github.com/nexus-trading/screener/internal/clickhouse"
	"github.com/nexus-trading/screener/internal/config"
	"github.com/nexus-trading/screener/internal/notify"
	"github.com/nexus-trading/screener/internal/observability"
	"github.com/nexus-trading/screener/internal/pipeline"
	"github.com/nexus-trading/screener/internal/report"
	"github.com/nexus-trading/screener/internal/scanner"
	"github.com/nexus-trading/screener/internal/storage"
	"github.com/nexus-trading/screener/internal/storage/memory"
	"github.com/nexus-trading/screener/internal/storage/postgres"
	"github.com/nexus-trading/screener/internal/storage/sqlite"
	"github.com/nexus-trading/screener/internal/token"
)

const recentPatterns = 100

// openStore opens the token/pattern store selected by database.type.
func openStore(ctx context.Context, db config.DatabaseConfig) (storage.Store, error) {
	switch db.Type {
	case "sqlite":
		st, err := sqlite.NewStore(db.Name)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := postgres.Open(ctx, db.DSN, db.MaxConns)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown database type %q", config.ErrConfiguration, db.Type)
	}
}

// service holds every long-lived component of a running screener.
type service struct {
	cfg *config.Config

	store     storage.Store
	blacklist *blacklist.Store
	metrics   *observability.Metrics
	health    *observability.HealthMonitor
	recorder  *audit.Recorder
	pipeline  *pipeline.Pipeline
	scanner   *scanner.Scanner
	reporter  *report.Reporter
	trader    *toxisol.Trader

	patternWriter *clickhouse.PatternWriter
	publisher     *bus.PatternPublisher
	redis         *notify.Redis

	// closers run in reverse order on shutdown.
	closers []func(ctx context.Context) error
}

func (s *service) onClose(fn func(ctx context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Close releases resources in reverse acquisition order: sinks first,
// then the blacklist, then the store.
func (s *service) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// buildService wires the screener. On error everything opened so far is
// closed again.
func buildService(ctx context.Context, cfg *config.Config, cfgPath string) (_ *service, err error) {
	s := &service{cfg: cfg, health: observability.NewHealthMonitor()}
	defer func() {
		if err != nil {
			if cerr := s.Close(context.Background()); cerr != nil {
				log.Warn().Err(cerr).Msg("wiring: cleanup after failed start")
			}
		}
	}()

	amount, err := decimal.NewFromString(cfg.Trade.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: trade.amount: %w", config.ErrConfiguration, err)
	}

	// Store first, so it is closed last.
	s.store, err = openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Type, err)
	}
	s.onClose(func(context.Context) error { return s.store.Close() })
	log.Info().Str("type", cfg.Database.Type).Msg("wiring: store opened")

	s.blacklist, err = blacklist.NewStore(blacklist.NewFilePersister(cfgPath))
	if err != nil {
		return nil, err
	}
	s.onClose(func(context.Context) error { return s.blacklist.Close() })

	s.metrics = observability.NewMetrics()
	bl := s.blacklist.Stats()
	s.metrics.SetBlacklistSize(bl.Coins, bl.Devs)

	// Adapters.
	dex, err := dexscreener.NewClient(dexscreener.Config{
		APIURL:      cfg.DexScreener.APIURL,
		Timeout:     seconds(cfg.DexScreener.TimeoutSeconds),
		MaxFailures: cfg.DexScreener.BreakerMaxFailures,
		Cooldown:    seconds(cfg.DexScreener.BreakerCooldownSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	s.health.RegisterAdapter(dex)

	rc, err := rugcheck.NewClient(rugcheck.Config{
		APIURL:            cfg.Rugcheck.APIURL,
		APIKey:            cfg.Rugcheck.APIKey,
		Chain:             cfg.Rugcheck.Chain,
		Timeout:           seconds(cfg.Rugcheck.TimeoutSeconds),
		RequestsPerSecond: cfg.Rugcheck.RequestsPerSecond,
		Burst:             cfg.Rugcheck.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	s.health.RegisterAdapter(rc)

	var verifier scanner.VolumeVerifier
	if cfg.FakeVolume.PocketUniverseEnabled {
		pu, err := pocketuniverse.NewClient(cfg.DexScreener.PocketUniverseAPI, seconds(cfg.DexScreener.TimeoutSeconds))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		s.health.RegisterAdapter(pu)
		verifier = pu
	}

	// Detectors.
	classifier, err := scanner.NewClassifier(cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	filter, err := scanner.NewThresholdFilter(cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	// Pattern sinks.
	sinks := []audit.Sink{s.metrics}
	if cfg.Kafka.Enabled {
		producer, err := bus.NewProducer(cfg.Kafka.Brokers,
			bus.WithClientID(cfg.Kafka.ClientID),
			bus.WithSchemaVersion(bus.SchemaVersion),
			bus.WithLinger(time.Duration(cfg.Kafka.LingerMs)*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		s.publisher = bus.NewPatternPublisher(producer, cfg.Kafka.Topic, serviceName)
		s.onClose(s.publisher.Close)
		sinks = append(sinks, s.publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("wiring: pattern stream enabled")
	}
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.NewClient(cfg.ClickHouse.DSN, clickhouse.Options{
			Database:     cfg.ClickHouse.Database,
			MaxOpenConns: cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns: cfg.ClickHouse.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.onClose(func(context.Context) error { return ch.Close() })
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		s.patternWriter = clickhouse.NewPatternWriter(ch,
			cfg.ClickHouse.BatchSize,
			time.Duration(cfg.ClickHouse.FlushIntervalMs)*time.Millisecond)
		s.onClose(func(context.Context) error { return s.patternWriter.Close() })
		sinks = append(sinks, s.patternWriter)
		log.Info().Str("database", ch.Database()).Msg("wiring: pattern analytics mirror enabled")
	}
	s.recorder = audit.NewRecorder(s.store, recentPatterns, sinks...)

	// Notifications.
	var notifiers notify.Multi
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram: %w", config.ErrConfiguration, err)
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.Redis.Enabled {
		s.redis, err = notify.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.Channel, cfg.General.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("redis notifier: %w", err)
		}
		s.onClose(func(context.Context) error { return s.redis.Close() })
		notifiers = append(notifiers, s.redis)
	}
	if len(notifiers) == 0 {
		log.Warn().Msg("wiring: no notification channel configured, notifications go to the log")
		notifiers = append(notifiers, notify.Log{})
	}

	s.trader = toxisol.NewTrader(toxisol.Config{
		BotUsername:      cfg.Telegram.ToxiSolBot,
		WalletAddress:    cfg.Telegram.WalletAddress,
		WalletPrivateKey: cfg.Telegram.WalletPrivateKey,
	})

	s.pipeline, err = pipeline.New(pipeline.Deps{
		Blacklist:  s.blacklist,
		RiskScan:   rc,
		Bundle:     scanner.NewBundleDetector(cfg.Bundle),
		FakeVolume: scanner.NewFakeVolumeDetector(cfg.FakeVolume, verifier),
		Filters:    filter,
		Classifier: classifier,
		Store:      s.store,
		Recorder:   s.recorder,
		Trader:     s.trader,
		Notifier:   notifiers,
		Observer:   s.metrics,
	}, pipeline.Options{
		TradeAction: token.TradeAction(cfg.Trade.Action),
		TradeAmount: amount,
		Workers:     cfg.DexScreener.Workers,
	})
	if err != nil {
		return nil, err
	}

	s.reporter = report.New(s.store, cfg.Analysis.TopN)

	s.scanner = scanner.NewScanner(scanner.Config{Interval: cfg.PollInterval()}, dex, s.pipeline)
	s.scanner.SetObserver(s.metrics)
	s.scanner.OnCycle(func(context.Context, scanner.CycleReport) {
		st := s.blacklist.Stats()
		s.metrics.SetBlacklistSize(st.Coins, st.Devs)
	})
	s.scanner.OnCycle(func(ctx context.Context, _ scanner.CycleReport) {
		s.runReport(ctx)
	})

	s.health.Register("store", s.storeHealth)
	return s, nil
}

func (s *service) runReport(ctx context.Context) {
	if err := s.reporter.Run(ctx, s.cfg.Analysis.ReportPath); err != nil {
		log.Error().Err(err).Msg("report: failed")
	}
}

func (s *service) storeHealth(ctx context.Context) observability.ComponentHealth {
	if _, err := s.store.TopTokensByMarketCap(ctx, 1); err != nil {
		return observability.ComponentHealth{Status: observability.StatusUnhealthy, Message: err.Error()}
	}
	return observability.ComponentHealth{Status: observability.StatusHealthy}
}

// stats is the /stats payload.
func (s *service) stats() any {
	out := map[string]any{
		"scanner":   s.scanner.Stats(),
		"recorder":  s.recorder.Stats(),
		"blacklist": s.blacklist.Stats(),
		"trader":    s.trader.Stats(),
	}
	if s.patternWriter != nil {
		flushes, errs, pending := s.patternWriter.Stats()
		out["clickhouse"] = map[string]any{"flushes": flushes, "errors": errs, "pending": pending}
	}
	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
