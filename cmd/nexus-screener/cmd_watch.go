package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nexus-trading/screener/internal/bus"
)

func watchCmd() *cobra.Command {
	var (
		group     string
		fromStart bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail pattern events from the Kafka stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Kafka.Enabled {
				return errors.New("kafka is disabled in the configuration")
			}

			consumer, err := bus.NewPatternConsumer(cfg.Kafka.Brokers, group, cfg.Kafka.Topic, fromStart)
			if err != nil {
				return err
			}
			defer consumer.Close()

			log.Info().Str("topic", cfg.Kafka.Topic).Str("group", group).Msg("watch: consuming pattern events")
			err = consumer.Consume(cmd.Context(), printPattern)
			decoded, malformed := consumer.Counts()
			log.Info().Int64("decoded", decoded).Int64("malformed", malformed).Msg("watch: stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&group, "group", serviceName+"-watch", "Consumer group id")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Read from the earliest offset when the group has no position")
	return cmd
}

func printPattern(_ context.Context, pm bus.PatternMessage) error {
	p := pm.Pattern
	_, err := fmt.Fprintf(os.Stdout, "%s  %-16s %s  %s\n",
		time.Unix(p.DetectedAt, 0).UTC().Format(time.DateTime),
		p.PatternType, p.TokenAddress, p.Details)
	return err
}
