package kvsdk

import (
	"fmt"
	"os"
	"strings"

	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
)

const (
	EnvMode     = "KVDB_RUNTIME_MODE"
	EnvURL      = "KVDB_URL"
	EnvMockSeed = "KVDB_MOCK_SEED"

	ModeAuto = "auto"
	ModeHTTP = "http"
	ModeMock = "mock"
)

// Settings selects how Open builds its client.
type Settings struct {
	Mode     string
	URL      string
	SeedPath string
}

// Runtime is a ready client and the mode it resolved to. Store is set only in
// mock mode.
type Runtime struct {
	Client *kvdb.Client
	Mode   string
	Store  *mock.Mock
}

// SettingsFromEnv reads KVDB_RUNTIME_MODE, KVDB_URL (falling back to
// REPLIT_DB_URL) and KVDB_MOCK_SEED.
func SettingsFromEnv() Settings {
	url := strings.TrimSpace(os.Getenv(EnvURL))
	if url == "" {
		url = strings.TrimSpace(os.Getenv(kvdb.EnvURL))
	}
	return Settings{
		Mode:     os.Getenv(EnvMode),
		URL:      url,
		SeedPath: strings.TrimSpace(os.Getenv(EnvMockSeed)),
	}
}

// NewFromEnv is Open(SettingsFromEnv(), opts...).
func NewFromEnv(opts ...kvdb.Option) (*Runtime, error) {
	return Open(SettingsFromEnv(), opts...)
}

// Open resolves s.Mode and builds the matching client.
func Open(s Settings, opts ...kvdb.Option) (*Runtime, error) {
	mode := strings.ToLower(strings.TrimSpace(s.Mode))
	url := strings.TrimSpace(s.URL)

	switch mode {
	case "", ModeAuto:
		if url != "" {
			return newHTTPRuntime(url, opts)
		}
		return newMockRuntime(s.SeedPath, opts)
	case ModeHTTP:
		if url == "" {
			return nil, fmt.Errorf("kvsdk: HTTP mode requires %s or %s", EnvURL, kvdb.EnvURL)
		}
		return newHTTPRuntime(url, opts)
	case ModeMock:
		return newMockRuntime(s.SeedPath, opts)
	default:
		return nil, fmt.Errorf("kvsdk: unsupported %s value %q", EnvMode, s.Mode)
	}
}

func newHTTPRuntime(url string, opts []kvdb.Option) (*Runtime, error) {
	client, err := kvdb.New(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("kvsdk: init HTTP client: %w", err)
	}
	return &Runtime{Client: client, Mode: ModeHTTP}, nil
}

func newMockRuntime(seedPath string, opts []kvdb.Option) (*Runtime, error) {
	store := mock.New()
	if seedPath = strings.TrimSpace(seedPath); seedPath != "" {
		entries, err := devseed.Load(seedPath)
		if err != nil {
			return nil, fmt.Errorf("kvsdk: load mock seed: %w", err)
		}
		if err := store.Seed(entries); err != nil {
			return nil, fmt.Errorf("kvsdk: apply mock seed: %w", err)
		}
	}
	return &Runtime{Client: kvdb.NewWithBackend(store, opts...), Mode: ModeMock, Store: store}, nil
}
