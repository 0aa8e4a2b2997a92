package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/adapters/liveclient"
	"github.com/campscout/event-logistics-api/internal/app/live"
	"github.com/campscout/event-logistics-api/internal/domain"
	platformclock "github.com/campscout/event-logistics-api/internal/platform/clock"
	"github.com/campscout/event-logistics-api/internal/platform/logging"
)

func watchCmd() *cobra.Command {
	var (
		apiURL         string
		token          string
		pollInterval   time.Duration
		reconnectEvery int
		idleTimeout    time.Duration
		logLevel       string
	)

	cmd := &cobra.Command{
		Use:   "watch [event-id]",
		Short: "Follow changes to one event, falling back to polling when push drops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("EVENTCTL_TOKEN")
			}
			log, err := logging.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg := liveclient.Config{BaseURL: apiURL, Token: token, IdleTimeout: idleTimeout, Logger: log}
			sub, err := liveclient.NewSSESubscriber(cfg)
			if err != nil {
				return err
			}
			poller, err := liveclient.NewHTTPPoller(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := platformclock.NewSystemClock().NewTicker(pollInterval)
			defer ticker.Stop()

			w := live.NewWatcher(domain.EventID(args[0]), sub, poller, ticker, live.Options{
				ReconnectEvery: reconnectEvery,
				Logger:         log,
			})
			notes := w.Subscribe(ctx)
			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			for n := range notes.C {
				if n.Change == nil {
					fmt.Fprintf(out, "%s  state %s -> %s\n", time.Now().Format(time.TimeOnly), n.Previous, n.State)
					continue
				}
				fmt.Fprintf(out, "%s  revision %d (%s)\n", n.Change.At.Local().Format(time.TimeOnly), n.Change.Revision, n.State)
			}
			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				log.Error("watch stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $EVENTCTL_TOKEN)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 10*time.Second, "polling interval while push is down")
	cmd.Flags().IntVar(&reconnectEvery, "reconnect-every", live.DefaultReconnectEvery, "polls between push reconnect attempts")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", liveclient.DefaultIdleTimeout, "drop a silent push stream after this long and poll instead")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	return cmd
}
