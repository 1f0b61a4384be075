package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/post/123", "example.com/post/*"},
		{"https://example.com/post/456?utm=x", "example.com/post/*"},
		{"https://example.com/a/deadbeef01/b", "example.com/a/*/b"},
		{"https://example.com/about", "example.com/about"},
		{"https://Example.COM/about", "example.com/about"},
		{"not a url at all", "not a url at all"},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.url); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNormalizeKey_MergesNearDuplicates(t *testing.T) {
	a := NormalizeKey("https://shop.example.com/item/98765")
	b := NormalizeKey("https://shop.example.com/item/12345")
	if a != b {
		t.Errorf("near-duplicate URLs should share one pattern: %q vs %q", a, b)
	}
}

func TestVolatilityTracker_ChangeRate(t *testing.T) {
	tr := NewVolatilityTracker(10)
	url := "https://example.com/page"

	if _, ok := tr.Volatility(url); ok {
		t.Fatal("expected no history before any observation")
	}

	tr.Record(url, false)
	tr.Record(url, true)
	tr.Record(url, true)
	tr.Record(url, false)

	v, ok := tr.Volatility(url)
	if !ok {
		t.Fatal("expected history after observations")
	}
	if v != 0.5 {
		t.Errorf("volatility = %v, want 0.5 (2 changes / 4 checks)", v)
	}
}

func TestVolatilityTracker_IntervalEMA(t *testing.T) {
	tr := NewVolatilityTracker(10)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }
	url := "https://example.com/page"

	tr.Record(url, true) // first change, no interval yet
	now = now.Add(10 * time.Minute)
	tr.Record(url, true) // EMA seeds at 10m
	now = now.Add(20 * time.Minute)
	tr.Record(url, true) // EMA = 0.7*10m + 0.3*20m = 13m

	recs := tr.Export()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	want := 13 * time.Minute
	if recs[0].IntervalEMA != want {
		t.Errorf("IntervalEMA = %v, want %v", recs[0].IntervalEMA, want)
	}
}

func TestVolatilityTracker_DecayAfterQuietDay(t *testing.T) {
	tr := NewVolatilityTracker(10)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }
	url := "https://example.com/page"

	tr.Record(url, true)
	tr.Record(url, true)
	v, _ := tr.Volatility(url)
	if v != 1.0 {
		t.Fatalf("volatility = %v, want 1.0", v)
	}

	now = now.Add(25 * time.Hour)
	v, _ = tr.Volatility(url)
	if v != 0.5 {
		t.Errorf("decayed volatility = %v, want 0.5", v)
	}
}

func TestVolatilityTracker_EvictsLRU(t *testing.T) {
	tr := NewVolatilityTracker(3)
	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tr.Record(fmt.Sprintf("https://example.com/p%d", i), false)
		now = now.Add(time.Minute)
	}
	// p0 is the least recently checked; the next new key evicts it.
	tr.Record("https://example.com/p3", false)

	if tr.Len() != 3 {
		t.Fatalf("tracker holds %d records, want 3", tr.Len())
	}
	if _, ok := tr.Volatility("https://example.com/p0"); ok {
		t.Error("expected p0 to be evicted")
	}
	if _, ok := tr.Volatility("https://example.com/p3"); !ok {
		t.Error("expected p3 to be tracked")
	}
}

func TestVolatilityTracker_ExportImportRoundTrip(t *testing.T) {
	tr := NewVolatilityTracker(10)
	tr.Record("https://example.com/a", true)
	tr.Record("https://example.com/b", false)

	snapshot := tr.Export()

	restored := NewVolatilityTracker(10)
	restored.Import(snapshot)

	if restored.Len() != tr.Len() {
		t.Fatalf("restored %d records, want %d", restored.Len(), tr.Len())
	}
	for _, url := range []string{"https://example.com/a", "https://example.com/b"} {
		want, _ := tr.Volatility(url)
		got, ok := restored.Volatility(url)
		if !ok || got != want {
			t.Errorf("restored volatility for %s = %v (ok=%v), want %v", url, got, ok, want)
		}
	}
}
