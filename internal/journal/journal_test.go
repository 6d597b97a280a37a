package journal

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryJournalRecordsNewestFirst(t *testing.T) {
	j := NewMemoryJournal(10)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := j.Record(ctx, Event{
			Kind: EventStreamStarted,
			App:  fmt.Sprintf("h1#app%d", i),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].App != "h1#app2" || events[1].App != "h1#app1" {
		t.Fatalf("expected newest first, got %v", events)
	}
	if events[0].Time.IsZero() {
		t.Fatal("record must stamp a zero time")
	}
}

func TestMemoryJournalBoundsCapacity(t *testing.T) {
	j := NewMemoryJournal(4)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := j.Record(ctx, Event{Kind: EventApplicationCreated, App: fmt.Sprintf("a%d", i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	events, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected the ring to hold 4 events, got %d", len(events))
	}
	if events[0].App != "a9" || events[3].App != "a6" {
		t.Fatalf("ring kept the wrong events: %v", events)
	}
}

func TestMemoryJournalCloseIsIdempotent(t *testing.T) {
	j := NewMemoryJournal(0)
	ctx := context.Background()
	if err := j.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := j.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
