package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recach/recach/internal/live"
	"github.com/recach/recach/internal/notify"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor notification badges without the UI",
	Long: `Poll the badge sources and log every badge transition. Signing in or out
from another terminal is picked up while running. With --metrics-addr the
request, poll and badge metrics are served at /metrics.

Example usage:
  recach watch
  recach watch --metrics-addr :9464`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, rec, err := headless()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := signalContext()
	defer cancel()

	logger := svc.logger.With().Str("component", "watch").Logger()

	if err := svc.tokens.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("cannot watch storage")
	}

	watermark := notify.NewWatermark(svc.backend, svc.bus, svc.logger)
	badges := notify.NewBadges(notify.BadgesConfig{
		Source:    svc.client,
		Tokens:    svc.tokens,
		Watermark: watermark,
		Bus:       svc.bus,
		Interval:  svc.cfg.Polling.Badge.Duration,
		Metrics:   svc.metrics,
		Logger:    svc.logger,
	})
	badges.OnChange(func(s notify.BadgeState) {
		logger.Info().
			Bool(notify.BadgeCarets, s.Carets).
			Bool(notify.BadgeContacts, s.Contacts).
			Bool(notify.BadgeInbox, s.Inbox).
			Msg("badges changed")
		if call, ok := rec.Last(); ok && call.Hard {
			logger.Warn().Str("path", call.Path).Msg("session ended")
		}
	})

	if err := badges.Mount(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial badge load failed")
	}
	defer badges.Unmount()

	g, ctx := errgroup.WithContext(ctx)

	if watchMetricsAddr != "" {
		srv := &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           metricsMux(svc),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", watchMetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if svc.cfg.Live.Enabled {
		sub, err := live.New(live.Options{
			BaseURL: svc.client.BaseURL(),
			Tokens:  svc.tokens,
			Bus:     svc.bus,
			Logger:  svc.logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	logger.Info().Msg("watching badges, press Ctrl+C to stop")
	return g.Wait()
}

func metricsMux(svc *services) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", svc.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
