package api

import (
	"testing"

	"marketday/internal/store"
)

func TestGatedHistoryHidesTitleAndNewsBeforeBroadcast(t *testing.T) {
	title, news := "Market Rally", "Stocks surge on earnings"
	history := []store.ScriptDay{
		{Day: 1, Price: 100, Title: &title, News: &news, IsBroadcasted: true},
		{Day: 2, Price: 105, Title: &title, News: &news, IsBroadcasted: false},
	}

	views := gatedHistory(history)
	if len(views) != 2 {
		t.Fatalf("len(views)=%d, expected 2", len(views))
	}

	if views[0].Title == nil || views[0].News == nil {
		t.Fatalf("day 1 is broadcasted, expected title/news to survive gating")
	}
	if views[1].Title != nil || views[1].News != nil {
		t.Fatalf("day 2 is not yet broadcasted, expected title/news to be gated out, got %+v", views[1])
	}
	if views[1].Day != 2 || views[1].Price != 105 {
		t.Fatalf("gating must not drop day/price even when title/news are hidden, got %+v", views[1])
	}
}

func TestGatedHistoryNeverExposesPublishOffset(t *testing.T) {
	offset := 42
	history := []store.ScriptDay{
		{Day: 1, Price: 100, IsBroadcasted: false, PublishOffset: &offset},
	}

	views := gatedHistory(history)
	// scriptDayView has no PublishOffset field at all; this test documents
	// that the wire type itself cannot leak it, not just that gating hides it.
	if views[0].Day != 1 {
		t.Fatalf("unexpected view: %+v", views[0])
	}
}
