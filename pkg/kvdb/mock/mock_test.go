package mock_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Ratio1/kvdb_sdk_go/internal/devseed"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb"
	"github.com/Ratio1/kvdb_sdk_go/pkg/kvdb/mock"
)

func TestMockRoundTrip(t *testing.T) {
	m := mock.New()
	ctx := context.Background()

	if err := m.SetRaw(ctx, "foo", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("SetRaw: %v", err)
	}
	data, err := m.GetRaw(ctx, "foo")
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected value %q", data)
	}

	// Returned bytes are a copy.
	data[0] = 'X'
	again, _ := m.GetRaw(ctx, "foo")
	if string(again) != `{"a":1}` {
		t.Fatalf("store mutated through returned slice: %q", again)
	}

	missing, err := m.GetRaw(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected absent key, got %q err=%v", missing, err)
	}

	if err := m.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", m.Len())
	}
}

func TestMockListKeys(t *testing.T) {
	m := mock.New()
	ctx := context.Background()
	for _, k := range []string{"pre2", "other", "pre1"} {
		if err := m.SetRaw(ctx, k, []byte("1")); err != nil {
			t.Fatalf("SetRaw %s: %v", k, err)
		}
	}

	keys, err := m.ListKeys(ctx, "pre")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if want := []string{"pre1", "pre2"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("ListKeys = %v, want %v", keys, want)
	}

	all, _ := m.ListKeys(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %v", all)
	}
}

func TestMockInjectedFailures(t *testing.T) {
	m := mock.New()
	ctx := context.Background()

	m.InjectRateLimit(2)
	for i := 0; i < 2; i++ {
		if _, err := m.GetRaw(ctx, "k"); !errors.Is(err, kvdb.ErrRateLimited) {
			t.Fatalf("call %d: expected rate limit, got %v", i, err)
		}
	}
	if _, err := m.GetRaw(ctx, "k"); err != nil {
		t.Fatalf("expected recovery after injected limits, got %v", err)
	}

	boom := errors.New("boom")
	m.InjectError(boom, 1)
	if err := m.SetRaw(ctx, "k", []byte("1")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := m.SetRaw(ctx, "k", []byte("1")); err != nil {
		t.Fatalf("SetRaw after injected error: %v", err)
	}

	if got := m.Calls("get"); got != 3 {
		t.Fatalf("expected 3 get calls, got %d", got)
	}
	if got := m.Calls("set"); got != 2 {
		t.Fatalf("expected 2 set calls, got %d", got)
	}
}

func TestMockSeed(t *testing.T) {
	entries, err := devseed.Parse([]byte("- key: a\n  value: 1\n- key: b\n  value: [x]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := mock.New()
	if err := m.Seed(entries); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	snap := m.Snapshot()
	if string(snap["a"]) != "1" || string(snap["b"]) != `["x"]` {
		t.Fatalf("unexpected snapshot: %q", snap)
	}

	if err := m.Seed([]devseed.Entry{{Key: "empty"}}); err == nil {
		t.Fatalf("expected error for seed entry without value")
	}
}

func TestMockOnCallAndContext(t *testing.T) {
	var seen []string
	m := mock.New(mock.WithOnCall(func(op, key string) { seen = append(seen, op+":"+key) }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.GetRaw(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"get:k"}) {
		t.Fatalf("unexpected hook calls: %v", seen)
	}
}
