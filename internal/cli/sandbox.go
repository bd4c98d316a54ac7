package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ratio1/kvdb_sdk_go/internal/config"
	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/internal/observability"
	"github.com/Ratio1/kvdb_sdk_go/internal/sandbox"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/export"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvsdk"
)

// NewSandboxCmd builds the kvdb-sandbox command, a local stand-in for the
// remote database.
func NewSandboxCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "kvdb-sandbox",
		Short:        "Serve the key-value protocol locally with optional fault injection",
		Args:         cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runSandbox(cmd, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (YAML)")
	f.String("addr", "127.0.0.1:8080", "listen address")
	f.String("seed", "", "YAML or JSON seed file")
	f.Duration("latency", 0, "delay added to every request")
	f.String("fail", "", "failure injection, e.g. rate=0.1,code=503")
	f.Float64("rate-limit", 0, "requests per second before answering 429 (0 = unlimited)")
	f.Int("burst", 1, "requests allowed above --rate-limit in a burst")
	f.Bool("metrics", false, "expose Prometheus metrics on "+sandbox.MetricsPath)
	f.String("data-dir", "", "persist to a LevelDB directory instead of memory")
	f.String("log-level", "", "log level: debug|info|warn|error|silent")
	f.String("log-format", "", "log format: console|json")
	bindFlags(v, f, map[string]string{
		"sandbox.addr":       "addr",
		"sandbox.seed":       "seed",
		"sandbox.latency":    "latency",
		"sandbox.fail":       "fail",
		"sandbox.rate_limit": "rate-limit",
		"sandbox.burst":      "burst",
		"sandbox.metrics":    "metrics",
		"sandbox.data_dir":   "data-dir",
		"logging.level":      "log-level",
		"logging.format":     "log-format",
	})
	return cmd
}

func runSandbox(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()
	sc := cfg.Sandbox

	var store kvdb.Backend
	if sc.DataDir != "" {
		db, err := export.OpenLevelDB(sc.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	} else {
		store = mock.New()
	}
	if sc.Seed != "" {
		entries, err := devseed.Load(sc.Seed)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		if err := sandbox.Seed(ctx, store, entries); err != nil {
			return err
		}
		logger.Info("seeded store", zap.Int("entries", len(entries)), zap.String("path", sc.Seed))
	}

	opts := sandbox.Options{
		Latency:   sc.Latency,
		Fail:      sc.Fail,
		RateLimit: sc.RateLimit,
		Burst:     sc.Burst,
		Logger:    logger,
	}
	if sc.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts.Registry = reg
	}
	handler, err := sandbox.New(store, opts)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("sandbox listening",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("latency", sc.Latency),
		zap.Stringer("fail", sc.Fail),
		zap.Float64("rate_limit", sc.RateLimit),
		zap.Bool("persistent", sc.DataDir != ""),
	)

	host := ln.Addr().String()
	if strings.HasPrefix(sc.Addr, ":") {
		host = "localhost" + sc.Addr
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "export %s=%s\n", kvsdk.EnvMode, kvsdk.ModeHTTP)
	fmt.Fprintf(out, "export %s=http://%s\n", kvsdk.EnvURL, host)
	fmt.Fprintln(out)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
