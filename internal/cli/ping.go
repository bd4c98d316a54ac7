package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ratio1/kvdb_sdk_go/internal/metrics"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

func newPingCmd(a *app) *cobra.Command {
	var (
		count       int
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure write, read and delete latency with a canary key",
		Long: `Write, read back and delete a canary key, printing the latency of each leg.
With --count 0 the probe repeats until interrupted. --metrics-addr serves the
client metrics, including the last latencies, for Prometheus to scrape.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var extra []kvdb.Option
			var obs *metrics.ClientObserver
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				var err error
				if obs, err = metrics.NewClientObserver(reg); err != nil {
					return err
				}
				extra = append(extra, kvdb.WithObserver(obs))
				stop := serveMetrics(a.logger, metricsAddr, reg)
				defer stop()
			}

			c, err := a.client(extra...)
			if err != nil {
				return err
			}
			for seq := 1; count <= 0 || seq <= count; seq++ {
				lat, err := c.Ping(ctx)
				if err != nil {
					return err
				}
				if obs != nil {
					obs.ObserveLatency(lat)
				}
				if err := a.printLatency(seq, lat); err != nil {
					return err
				}
				if seq == count {
					break
				}
				if wait(ctx, interval) != nil {
					return nil // interrupted
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of probes (0 = until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "pause between probes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func serveMetrics(logger *zap.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
