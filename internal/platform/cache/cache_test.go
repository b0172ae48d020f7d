package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/ehr/cohortreports/internal/reporting/evaluation"
)

func newCache(t *testing.T, ttl time.Duration) *LevelCache {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	c := New(db, ttl, zerolog.Nop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLevelCache_RoundTrip(t *testing.T) {
	c := newCache(t, time.Hour)
	started := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	c.Put("artStart|endDate=2024-03-31", map[int]interface{}{
		7: started,
		8: evaluation.Record{"value": 350.0, "date": nil},
		9: nil,
	})

	got, ok := c.Get("artStart|endDate=2024-03-31")
	if !ok {
		t.Fatal("expected a hit")
	}
	if ts, _ := got[7].(time.Time); !ts.Equal(started) {
		t.Errorf("expected %s, got %v", started, got[7])
	}
	if rec, _ := got[8].(evaluation.Record); rec["value"] != 350.0 {
		t.Errorf("expected record with value 350, got %v", got[8])
	}
	if v, present := got[9]; !present || v != nil {
		t.Errorf("expected explicit nil for 9, got %v (present=%v)", v, present)
	}
}

func TestLevelCache_EmptyResultIsAHit(t *testing.T) {
	c := newCache(t, 0)
	c.Put("empty", map[int]interface{}{})
	got, ok := c.Get("empty")
	if !ok || got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil hit, got %v %v", got, ok)
	}
}

func TestLevelCache_Miss(t *testing.T) {
	c := newCache(t, time.Hour)
	if _, ok := c.Get("absent"); ok {
		t.Error("expected a miss")
	}
}

func TestLevelCache_ExpiryAndSweep(t *testing.T) {
	c := newCache(t, time.Hour)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("old", map[int]interface{}{1: "a"})
	now = now.Add(30 * time.Minute)
	c.Put("fresh", map[int]interface{}{1: "b"})
	now = now.Add(45 * time.Minute)

	if _, ok := c.Get("old"); ok {
		t.Error("expected old entry to be expired")
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("expected fresh entry to be served")
	}

	n, err := c.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry swept, got %d", n)
	}
}

var _ evaluation.Cache = (*LevelCache)(nil)
