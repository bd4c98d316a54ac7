package kvdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
)

func ids(records []kvdb.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestSortRecords(t *testing.T) {
	records := []kvdb.Record{
		{ID: "a1", Data: map[string]any{"score": 5}},
		{ID: "a2", Data: map[string]any{"score": 9.5}},
		{ID: "b1", Data: map[string]any{"score": 1}},
		{ID: "a3", Data: map[string]any{"name": "none"}},
		{ID: "a4", Data: map[string]any{"score": 9.5}},
		{ID: "a5", Data: "scalar"},
	}

	tests := []struct {
		name   string
		prefix string
		opts   *kvdb.Options
		want   []string
	}{
		{"descending with missing first", "a", &kvdb.Options{SortPath: ".score"}, []string{"a5", "a3", "a4", "a2", "a1"}},
		{"path without leading dot", "a", &kvdb.Options{SortPath: "score"}, []string{"a5", "a3", "a4", "a2", "a1"}},
		{"no sort path keeps order", "a", nil, []string{"a1", "a2", "a3", "a4", "a5"}},
		{"empty prefix matches all", "", &kvdb.Options{SortPath: ".score"}, []string{"a5", "a3", "a4", "a2", "a1", "b1"}},
		{"no match", "z", &kvdb.Options{SortPath: ".score"}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ids(kvdb.SortRecords(tc.prefix, records, tc.opts)))
		})
	}

	require.Equal(t, "a1", records[0].ID, "input must not be reordered")
}

func TestSortRecordsMixedTypes(t *testing.T) {
	records := []kvdb.Record{
		{ID: "n", Data: 3.0},
		{ID: "s", Data: "b"},
		{ID: "t", Data: true},
		{ID: "f", Data: false},
		{ID: "o", Data: []any{1}},
		{ID: "s2", Data: "a"},
	}
	got := kvdb.SortRecords("", records, &kvdb.Options{SortPath: "."})
	require.Equal(t, []string{"o", "t", "f", "s", "s2", "n"}, ids(got))
}

func TestSortRecordsNestedPath(t *testing.T) {
	records := []kvdb.Record{
		{ID: "u1", Data: map[string]any{"stats": map[string]any{"levels": []any{1.0, 4.0}}}},
		{ID: "u2", Data: map[string]any{"stats": map[string]any{"levels": []any{2.0, 7.0}}}},
		{ID: "u3", Data: map[string]any{"stats": map[string]any{"levels": []any{3.0}}}},
	}
	got := kvdb.SortRecords("u", records, &kvdb.Options{SortPath: ".stats.levels.1"})
	require.Equal(t, []string{"u3", "u2", "u1"}, ids(got))
}
