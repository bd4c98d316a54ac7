// Package config loads CLI and sandbox settings from flags, KVDB_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "KVDB"

// Config is the resolved configuration of a kvdb command.
type Config struct {
	URL           string            `mapstructure:"url"`
	Mode          string            `mapstructure:"mode"`
	Seed          string            `mapstructure:"seed"`
	Sleep         time.Duration     `mapstructure:"sleep"`
	RetryBudget   int               `mapstructure:"retry_budget"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	Concurrency   int               `mapstructure:"concurrency"`
	ImportStagger time.Duration     `mapstructure:"import_stagger"`
	Headers       map[string]string `mapstructure:"headers"`
	Output        string            `mapstructure:"output"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Sandbox       SandboxConfig     `mapstructure:"sandbox"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SandboxConfig struct {
	Addr      string        `mapstructure:"addr"`
	Seed      string        `mapstructure:"seed"`
	Latency   time.Duration `mapstructure:"latency"`
	Fail      FailSpec      `mapstructure:"fail"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Metrics   bool          `mapstructure:"metrics"`
	DataDir   string        `mapstructure:"data_dir"`
}

// FailSpec injects errors into a fraction of sandbox requests. It is written
// as "rate=0.1,code=503".
type FailSpec struct {
	Rate float64
	Code int
}

func (f FailSpec) String() string {
	if f.Rate <= 0 {
		return ""
	}
	return fmt.Sprintf("rate=%g,code=%d", f.Rate, f.Code)
}

// ParseFailSpec parses "rate=<0..1>,code=<status>". Code defaults to 500.
func ParseFailSpec(s string) (FailSpec, error) {
	spec := FailSpec{Code: http.StatusInternalServerError}
	s = strings.TrimSpace(s)
	if s == "" {
		return FailSpec{}, nil
	}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return FailSpec{}, fmt.Errorf("config: fail spec %q: expected key=value", part)
		}
		switch strings.TrimSpace(k) {
		case "rate":
			r, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || r < 0 || r > 1 {
				return FailSpec{}, fmt.Errorf("config: fail rate %q must be within [0, 1]", v)
			}
			spec.Rate = r
		case "code":
			c, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || c < 400 || c > 599 {
				return FailSpec{}, fmt.Errorf("config: fail code %q must be a 4xx or 5xx status", v)
			}
			spec.Code = c
		default:
			return FailSpec{}, fmt.Errorf("config: fail spec: unknown key %q", k)
		}
	}
	return spec, nil
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "auto")
	v.SetDefault("sleep", kvdb.DefaultSleep)
	v.SetDefault("retry_budget", kvdb.DefaultRetryBudget)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("concurrency", kvdb.DefaultConcurrency)
	v.SetDefault("import_stagger", kvdb.DefaultImportStagger)
	v.SetDefault("output", "table")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("sandbox.addr", "127.0.0.1:8080")
	v.SetDefault("sandbox.seed", "")
	v.SetDefault("sandbox.latency", time.Duration(0))
	v.SetDefault("sandbox.fail", "")
	v.SetDefault("sandbox.rate_limit", 0.0)
	v.SetDefault("sandbox.burst", 1)
	v.SetDefault("sandbox.metrics", false)
	v.SetDefault("sandbox.data_dir", "")
}

// Load resolves the configuration. Flags bound to v take precedence over
// KVDB_* environment variables, which take precedence over file, a YAML
// file that may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("url", EnvPrefix+"_URL", kvdb.EnvURL)
	_ = v.BindEnv("mode", EnvPrefix+"_RUNTIME_MODE", EnvPrefix+"_MODE")
	_ = v.BindEnv("seed", EnvPrefix+"_MOCK_SEED", EnvPrefix+"_SEED")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationFromNumberHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		failSpecHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "auto", "http", "mock":
	default:
		return fmt.Errorf("config: mode %q must be auto, http or mock", c.Mode)
	}
	switch c.Output {
	case "table", "json":
	default:
		return fmt.Errorf("config: output %q must be table or json", c.Output)
	}
	if c.Sleep <= 0 {
		return fmt.Errorf("config: sleep must be positive")
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("config: retry_budget must not be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("config: concurrency must be positive")
	}
	if c.Sandbox.RateLimit < 0 {
		return fmt.Errorf("config: sandbox.rate_limit must not be negative")
	}
	return nil
}

// ClientOptions translates the configuration into kvdb client options.
func (c *Config) ClientOptions(logger *zap.Logger) []kvdb.Option {
	opts := []kvdb.Option{
		kvdb.WithRetryBudget(c.RetryBudget),
		kvdb.WithTimeout(c.Timeout),
		kvdb.WithConcurrency(c.Concurrency),
		kvdb.WithImportStagger(c.ImportStagger),
		kvdb.WithLogger(logger),
	}
	if len(c.Headers) > 0 {
		h := make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			h.Set(k, v)
		}
		opts = append(opts, kvdb.WithHeaders(h))
	}
	return opts
}

// CallOptions returns the per-call options shared by every command.
func (c *Config) CallOptions() *kvdb.Options {
	return &kvdb.Options{Sleep: c.Sleep}
}

// durationFromNumberHook reads bare numbers as milliseconds, so "sleep: 3500"
// in YAML or KVDB_SLEEP=3500 means 3.5s.
func durationFromNumberHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Millisecond, nil
		case int64:
			return time.Duration(n) * time.Millisecond, nil
		case float64:
			return time.Duration(n * float64(time.Millisecond)), nil
		case string:
			if ms, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return time.Duration(ms * float64(time.Millisecond)), nil
			}
		}
		return data, nil
	}
}

func failSpecHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(FailSpec{}) || from.Kind() != reflect.String {
			return data, nil
		}
		return ParseFailSpec(data.(string))
	}
}
