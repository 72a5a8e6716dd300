package main

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nexus-trading/screener/internal/observability"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll DexScreener and screen new tokens until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScreener(cmd.Context())
		},
	}
}

func runScreener(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().Msg("=============================================")
	log.Info().Msg("NEXUS Screener - Starting")
	log.Info().Msg("FETCH -> SCREEN -> CLASSIFY -> PERSIST -> TRADE")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("database", cfg.Database.Type).
		Dur("poll_interval", cfg.PollInterval()).
		Str("trade_action", cfg.Trade.Action).
		Str("trade_amount", cfg.Trade.Amount).
		Int("workers", cfg.DexScreener.Workers).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("clickhouse", cfg.ClickHouse.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Configuration loaded")

	svc, err := buildService(ctx, cfg, configPath)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if svc.patternWriter != nil {
		svc.patternWriter.Start(ctx)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.scanner.Start(ctx); err != nil {
			log.Error().Err(err).Msg("scanner: exited")
		}
	}()

	var scheduler *cron.Cron
	if spec := cfg.Analysis.ReportSchedule; spec != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(spec, func() { svc.runReport(ctx) }); err != nil {
			log.Error().Err(err).Str("schedule", spec).Msg("report: invalid schedule, scheduled reports disabled")
			scheduler = nil
		} else {
			scheduler.Start()
			log.Info().Str("schedule", spec).Msg("report: scheduled")
		}
	}

	var server *observability.Server
	if cfg.Metrics.Enabled {
		server = observability.NewServer(cfg.Metrics.Port, observability.ServerDeps{
			Health:    svc.health,
			Metrics:   svc.metrics,
			Stats:     svc.stats,
			Patterns:  svc.store,
			Recent:    svc.recorder,
			Blacklist: svc.blacklist,
		})
		server.Start()
	}

	log.Info().Msg("NEXUS Screener - Running")

	<-ctx.Done()
	log.Info().Msg("Shutting down Screener...")

	// The in-flight cycle finishes before anything it writes to is closed.
	wg.Wait()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("status server shutdown")
		}
	}

	if err := svc.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown: closing components")
	}

	st := svc.scanner.Stats()
	rs := svc.recorder.Stats()
	log.Info().
		Int64("cycles", st.Cycles).
		Int64("fetched", st.Fetched).
		Int64("rejected", st.Rejected).
		Int64("persisted", st.Persisted).
		Int64("traded", st.Traded).
		Int64("patterns", rs.Recorded).
		Msg("NEXUS Screener - Final Statistics")

	log.Info().Msg("NEXUS Screener - Shutdown complete")
	return nil
}
