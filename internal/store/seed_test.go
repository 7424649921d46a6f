package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEventSeedMissingFileIsNotAnError(t *testing.T) {
	events, err := LoadEventSeed(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadEventSeed returned error for a missing file: %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events for a missing file, got %v", events)
	}
}

func TestLoadEventSeedParsesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	contents := `
events:
  - day: 3
    title: "Central bank surprise cut"
    news: "Rates fall 50bps"
    trend: STRONG_UP
  - day: 10
    title: "Earnings miss"
    trend: DOWN
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	events, err := LoadEventSeed(path)
	if err != nil {
		t.Fatalf("LoadEventSeed returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events)=%d, expected 2", len(events))
	}

	if events[0].Day != 3 || events[0].Trend != TrendStrongUp {
		t.Fatalf("events[0]=%+v, unexpected", events[0])
	}
	if events[0].News == nil || *events[0].News != "Rates fall 50bps" {
		t.Fatalf("events[0].News=%v, expected a pointer to the fixture text", events[0].News)
	}
	if events[1].News != nil {
		t.Fatalf("events[1].News=%v, expected nil for an event with no news line", events[1].News)
	}
	for _, e := range events {
		if e.ID == "" {
			t.Fatalf("expected every seeded event to get a generated ID")
		}
	}
}
