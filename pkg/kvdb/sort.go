package kvdb

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// SortRecords returns the records whose ID starts with prefix, ordered by the
// value found at opts.SortPath in descending order: a stable ascending sort,
// reversed. Records missing that value sort after every other record when
// ascending, so they come first in the result. Without a sort path the
// filtered records keep their input order. The input slice is not modified.
func SortRecords(prefix string, records []Record, opts *Options) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if strings.HasPrefix(rec.ID, prefix) {
			out = append(out, rec)
		}
	}
	path := splitPath(opts.sortPath())
	if path == nil {
		return out
	}

	keys := make([]sortKey, len(out))
	for i, rec := range out {
		v, ok := lookupPath(rec.Data, path)
		keys[i] = newSortKey(v, ok)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].less(keys[idx[b]])
	})
	sorted := make([]Record, len(idx))
	for i, j := range idx {
		sorted[len(idx)-1-i] = out[j]
	}
	return sorted
}

// splitPath turns ".stats.level" into ["stats", "level"]. "." addresses the
// data itself and yields an empty, non-nil path. An empty string yields nil.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "."), ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lookupPath(v any, path []string) (any, bool) {
	cur := v
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

const (
	rankNumber = iota
	rankString
	rankBool
	rankOther
	rankMissing
)

type sortKey struct {
	rank int
	num  float64
	str  string
	b    bool
}

func newSortKey(v any, ok bool) sortKey {
	if !ok {
		return sortKey{rank: rankMissing}
	}
	if n, isNum := asNumber(v); isNum {
		return sortKey{rank: rankNumber, num: n}
	}
	switch t := v.(type) {
	case string:
		return sortKey{rank: rankString, str: t}
	case bool:
		return sortKey{rank: rankBool, b: t}
	}
	return sortKey{rank: rankOther}
}

func (k sortKey) less(o sortKey) bool {
	if k.rank != o.rank {
		return k.rank < o.rank
	}
	switch k.rank {
	case rankNumber:
		return k.num < o.num
	case rankString:
		return k.str < o.str
	case rankBool:
		return !k.b && o.b
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
