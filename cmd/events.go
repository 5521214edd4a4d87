/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/alagamento-br/apiserver/config"
	"github.com/alagamento-br/apiserver/internal/mq"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands on the incident event feed.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the incident event feed",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to incident events and log them",
	Long: `Subscribes to the configured broker (MQ_BACKEND) and logs every incident
event until interrupted. Usage:

	MQ_BACKEND=kafka alagamento events watch
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := observability.NewLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer broker.Close()

		channel := mq.NewEventPublisher(broker, cfg.MQ.Topic).Channel()
		logger.Info().Str("backend", cfg.MQ.Backend).Str("channel", channel).Msg("watching incident events")

		err = broker.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			event, err := mq.DecodeIncidentEvent(msg)
			if err != nil {
				// Malformed payloads are acked, not retried.
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping malformed event")
				return nil
			}
			logger.Info().
				Str("message_id", msg.ID).
				Str("type", event.Type).
				Int("incident_id", event.IncidentID).
				Int("actor_id", event.ActorID).
				Str("city", event.City).
				Time("occurred_at", event.OccurredAt).
				Msg("incident event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
