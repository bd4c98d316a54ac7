package devseed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseYAML(t *testing.T) {
	entries, err := Parse([]byte(`
- key: users:1
  value: {name: ada, score: 9}
- key: counter
  value: 3
- key: flags
  value: [true, false]
`))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "users:1", entries[0].Key)
	require.JSONEq(t, `{"name":"ada","score":9}`, string(entries[0].Value))
	require.JSONEq(t, `3`, string(entries[1].Value))
	require.JSONEq(t, `[true,false]`, string(entries[2].Value))
}

func TestParseExportFormat(t *testing.T) {
	entries, err := Parse([]byte(`[{"id":"a1","data":{"score":5}},{"id":"empty","data":null}]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a1", entries[0].Key)
	require.JSONEq(t, `{"score":5}`, string(entries[0].Value))
	require.Equal(t, "null", string(entries[1].Value))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`[{"value": 1}]`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"not": "a list"}`))
	require.Error(t, err)

	entries, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- key: hello\n  value: world\n"), 0o600))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, `"world"`, string(entries[0].Value))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
