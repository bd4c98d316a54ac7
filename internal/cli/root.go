// Package cli implements the kvdb and kvdb-sandbox command trees.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ratio1/kvdb_sdk_go/internal/config"
	"github.com/Ratio1/kvdb_sdk_go/internal/observability"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvsdk"
)

// app carries state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
	out     io.Writer
}

// NewRootCmd builds the kvdb command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "kvdb",
		Short: "Command line client for a Replit-style key-value database",
		Long: `kvdb reads and writes a remote key-value database over HTTP.

The database URL comes from --url, $KVDB_URL or $REPLIT_DB_URL. Without a URL
the commands run against an in-memory store (--mode mock).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
		PersistentPostRun: func(*cobra.Command, []string) { a.sync() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("url", "", "database URL (default $KVDB_URL or $REPLIT_DB_URL)")
	pf.String("mode", "", "runtime mode: auto|http|mock")
	pf.String("seed", "", "seed file loaded in mock mode")
	pf.Duration("sleep", kvdb.DefaultSleep, "wait after a rate limited call")
	pf.Int("retry-budget", kvdb.DefaultRetryBudget, "rate limited retries before giving up")
	pf.Duration("timeout", 10*time.Second, "HTTP request timeout")
	pf.Int("concurrency", kvdb.DefaultConcurrency, "parallel requests for bulk commands")
	pf.String("log-level", "", "log level: debug|info|warn|error|silent")
	pf.String("log-format", "", "log format: console|json")
	pf.StringP("output", "o", "", "output format: table|json")
	bindFlags(a.v, pf, map[string]string{
		"url":            "url",
		"mode":           "mode",
		"seed":           "seed",
		"sleep":          "sleep",
		"retry_budget":   "retry-budget",
		"timeout":        "timeout",
		"concurrency":    "concurrency",
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"output":         "output",
	})

	root.AddCommand(
		newGetCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newExistsCmd(a),
		newTypeCmd(a),
		newListCmd(a),
		newMathCmd(a),
		newAddCmd(a),
		newSubtractCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newAllCmd(a),
		newRawCmd(a),
		newStartsWithCmd(a),
		newClearCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newPingCmd(a),
	)
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.out = cfg, logger, cmd.OutOrStdout()
	return nil
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// client opens a client for the resolved mode. extra options are applied
// after the configured ones.
func (a *app) client(extra ...kvdb.Option) (*kvdb.Client, error) {
	opts := append(a.cfg.ClientOptions(a.logger), extra...)
	rt, err := kvsdk.Open(kvsdk.Settings{Mode: a.cfg.Mode, URL: a.cfg.URL, SeedPath: a.cfg.Seed}, opts...)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("runtime resolved", zap.String("mode", rt.Mode), zap.String("url", rt.Client.BaseURL()))
	return rt.Client, nil
}

func (a *app) jsonOutput() bool {
	return strings.EqualFold(a.cfg.Output, "json")
}

// withClient adapts a command body that needs a client.
func withClient(a *app, run func(cmd *cobra.Command, c *kvdb.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := a.client()
		if err != nil {
			return err
		}
		return run(cmd, c, args)
	}
}

func requireYes(yes bool, what string) error {
	if !yes {
		return fmt.Errorf("refusing to %s without --yes", what)
	}
	return nil
}
