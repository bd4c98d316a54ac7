package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"KVDB_URL", "REPLIT_DB_URL", "KVDB_RUNTIME_MODE", "KVDB_MODE", "KVDB_SLEEP", "KVDB_OUTPUT", "KVDB_SANDBOX_FAIL", "KVDB_MOCK_SEED"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Mode)
	assert.Equal(t, 3500*time.Millisecond, cfg.Sleep)
	assert.Equal(t, 3, cfg.RetryBudget)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 150*time.Millisecond, cfg.ImportStagger)
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Sandbox.Addr)
	assert.Zero(t, cfg.Sandbox.Fail)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLIT_DB_URL", "https://kv.example.test/db")
	t.Setenv("KVDB_RUNTIME_MODE", "http")
	t.Setenv("KVDB_SLEEP", "1200")
	t.Setenv("KVDB_SANDBOX_FAIL", "rate=0.25,code=503")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://kv.example.test/db", cfg.URL)
	assert.Equal(t, "http", cfg.Mode)
	assert.Equal(t, 1200*time.Millisecond, cfg.Sleep)
	assert.Equal(t, FailSpec{Rate: 0.25, Code: 503}, cfg.Sandbox.Fail)

	t.Setenv("KVDB_URL", "https://primary.example.test")
	cfg, err = Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "https://primary.example.test", cfg.URL)
}

func TestLoadFileAndFlags(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "kvdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: mock
sleep: 2s
retry_budget: 5
headers:
  X-Team: storage
logging:
  level: debug
  format: json
sandbox:
  latency: 25
  fail:
    rate: 0.5
    code: 502
`), 0o600))

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("retry-budget", 0, "")
	require.NoError(t, flags.Parse([]string{"--retry-budget=7"}))
	require.NoError(t, v.BindPFlag("retry_budget", flags.Lookup("retry-budget")))

	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Mode)
	assert.Equal(t, 2*time.Second, cfg.Sleep)
	assert.Equal(t, 7, cfg.RetryBudget)
	assert.Equal(t, map[string]string{"x-team": "storage"}, cfg.Headers)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 25*time.Millisecond, cfg.Sandbox.Latency)
	assert.Equal(t, FailSpec{Rate: 0.5, Code: 502}, cfg.Sandbox.Fail)

	assert.Len(t, cfg.ClientOptions(zap.NewNop()), 6)
	assert.Equal(t, 2*time.Second, cfg.CallOptions().Sleep)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	t.Setenv("KVDB_RUNTIME_MODE", "carrier-pigeon")
	_, err := Load(viper.New(), "")
	require.Error(t, err)

	t.Setenv("KVDB_RUNTIME_MODE", "")
	t.Setenv("KVDB_OUTPUT", "xml")
	_, err = Load(viper.New(), "")
	require.Error(t, err)
}

func TestParseFailSpec(t *testing.T) {
	spec, err := ParseFailSpec("rate=0.1")
	require.NoError(t, err)
	assert.Equal(t, FailSpec{Rate: 0.1, Code: 500}, spec)
	assert.Equal(t, "rate=0.1,code=500", spec.String())

	empty, err := ParseFailSpec(" ")
	require.NoError(t, err)
	assert.Equal(t, "", empty.String())

	for _, bad := range []string{"rate", "rate=2", "code=200", "speed=1"} {
		_, err := ParseFailSpec(bad)
		assert.Error(t, err, bad)
	}
}
