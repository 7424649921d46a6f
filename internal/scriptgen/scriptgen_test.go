package scriptgen

import (
	"math/rand"
	"testing"

	"marketday/internal/store"
)

func TestGenerateProducesOneRowPerDay(t *testing.T) {
	p := DefaultParams()
	p.TotalDays = 30
	p.InitialPrice = 100
	p.TimeRatio = 600
	p.Rand = rand.New(rand.NewSource(42))

	days := Generate(nil, p)
	if len(days) != p.TotalDays {
		t.Fatalf("len(days)=%d, expected %d", len(days), p.TotalDays)
	}
	for i, d := range days {
		if d.Day != i+1 {
			t.Fatalf("days[%d].Day=%d, expected %d", i, d.Day, i+1)
		}
		if d.IsBroadcasted {
			t.Fatalf("days[%d].IsBroadcasted=true, a freshly generated day must start unbroadcast", i)
		}
	}
}

func TestGeneratePriceNeverDropsBelowFloor(t *testing.T) {
	p := DefaultParams()
	p.TotalDays = 200
	p.InitialPrice = 1
	p.BullDrift = -50 // pathological, forces the floor clamp
	p.Rand = rand.New(rand.NewSource(7))

	days := Generate(nil, p)
	for _, d := range days {
		if d.Price < 1.0 {
			t.Fatalf("day %d price=%v, expected >= 1.0 floor", d.Day, d.Price)
		}
	}
}

func TestGenerateIsDeterministicForAFixedSeed(t *testing.T) {
	events := []store.Event{{Day: 5, Title: "Rate hike", Trend: store.TrendStrongDown}}
	p := DefaultParams()
	p.TotalDays = 60
	p.InitialPrice = 100
	p.TimeRatio = 600

	p.Rand = rand.New(rand.NewSource(99))
	first := Generate(events, p)
	p.Rand = rand.New(rand.NewSource(99))
	second := Generate(events, p)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Price != second[i].Price {
			t.Fatalf("day %d price diverged: %v vs %v", i+1, first[i].Price, second[i].Price)
		}
	}
}

func TestGenerateAttachesEventTitleAndOffsetOnlyOnEventDays(t *testing.T) {
	events := []store.Event{{Day: 10, Title: "Earnings beat", Trend: store.TrendUp}}
	p := DefaultParams()
	p.TotalDays = 20
	p.InitialPrice = 100
	p.TimeRatio = 600
	p.Rand = rand.New(rand.NewSource(3))

	days := Generate(events, p)
	for _, d := range days {
		if d.Day == 10 {
			if d.Title == nil || *d.Title != "Earnings beat" {
				t.Fatalf("day 10 missing expected title, got %v", d.Title)
			}
			if d.PublishOffset == nil {
				t.Fatalf("day 10 expected a publish offset")
			}
			continue
		}
		if d.Title != nil {
			t.Fatalf("day %d unexpectedly carries a title: %v", d.Day, *d.Title)
		}
		if d.PublishOffset != nil {
			t.Fatalf("day %d unexpectedly carries a publish offset: %v", d.Day, *d.PublishOffset)
		}
	}
}

func TestGenerateFirstEventPerDayWins(t *testing.T) {
	events := []store.Event{
		{Day: 4, Title: "first", Trend: store.TrendUp},
		{Day: 4, Title: "second", Trend: store.TrendDown},
	}
	p := DefaultParams()
	p.TotalDays = 10
	p.InitialPrice = 100
	p.TimeRatio = 600
	p.Rand = rand.New(rand.NewSource(5))

	days := Generate(events, p)
	if days[3].Title == nil || *days[3].Title != "first" {
		t.Fatalf("expected first-listed event to win for day 4, got %v", days[3].Title)
	}
}
