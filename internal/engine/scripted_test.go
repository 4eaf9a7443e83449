package engine

import (
	"context"
	"errors"
	"os"
	"testing"
)

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestScriptedEngine_HappyPath(t *testing.T) {
	dir := t.TempDir()
	eng := NewScriptedEngine(dir)

	events, err := eng.Process(context.Background(), []string{"a.jpg", "b.jpg", "c.jpg"}, DetailReduced)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := collect(t, events)
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d: %v", len(got), got)
	}
	if got[0].Type != EventProgress || got[0].Progress != 0.10 {
		t.Errorf("Expected progress 0.10, got %+v", got[0])
	}
	if got[1].Type != EventProgress || got[1].Progress != 0.55 {
		t.Errorf("Expected progress 0.55, got %+v", got[1])
	}
	if got[2].Type != EventComplete {
		t.Fatalf("Expected complete, got %+v", got[2])
	}

	asset := got[2].Asset
	if asset == nil {
		t.Fatal("Complete event carried no asset")
	}
	if asset.Format != FormatScenePack {
		t.Errorf("Expected format %q, got %q", FormatScenePack, asset.Format)
	}
	if asset.DetailLevel != DetailReduced {
		t.Errorf("Expected detail echo %q, got %q", DetailReduced, asset.DetailLevel)
	}
	info, err := os.Stat(asset.FileReference)
	if err != nil {
		t.Fatalf("Packaged scene not written: %v", err)
	}
	if info.Size() != asset.SizeBytes {
		t.Errorf("SizeBytes %d does not match file size %d", asset.SizeBytes, info.Size())
	}
}

func TestScriptedEngine_EmptyPhotoSet(t *testing.T) {
	eng := NewScriptedEngine("")
	if _, err := eng.Process(context.Background(), nil, DetailReduced); err == nil {
		t.Fatal("Expected error for empty photo set")
	}
}

func TestScriptedEngine_FailWith(t *testing.T) {
	boom := errors.New("feature matching diverged")
	eng := NewScriptedEngine("")
	eng.FailWith = boom

	events, err := eng.Process(context.Background(), []string{"a.jpg"}, DetailFull)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := collect(t, events)
	last := got[len(got)-1]
	if last.Type != EventError {
		t.Fatalf("Expected error event, got %+v", last)
	}
	if !errors.Is(last.Err, boom) {
		t.Errorf("Expected wrapped script error, got %v", last.Err)
	}
}

func TestScriptedEngine_CancelAcknowledged(t *testing.T) {
	eng := NewScriptedEngine("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before the first event is read

	events, err := eng.Process(ctx, []string{"a.jpg"}, DetailReduced)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := collect(t, events)
	last := got[len(got)-1]
	if last.Type != EventCancelled {
		t.Fatalf("Expected cancelled terminal event, got %+v", last)
	}
	for _, ev := range got {
		if ev.Type == EventComplete {
			t.Error("Cancelled run must never complete")
		}
	}
}

func TestScriptedEngine_OmitTerminal(t *testing.T) {
	eng := NewScriptedEngine("")
	eng.OmitTerminal = true

	events, err := eng.Process(context.Background(), []string{"a.jpg"}, DetailReduced)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got := collect(t, events)
	for _, ev := range got {
		if ev.Type != EventProgress {
			t.Errorf("Expected only progress events, got %+v", ev)
		}
	}
}

func TestParseDetailLevel(t *testing.T) {
	if _, err := ParseDetailLevel("reduced"); err != nil {
		t.Errorf("reduced should parse: %v", err)
	}
	if _, err := ParseDetailLevel("ultra"); err == nil {
		t.Error("ultra should not parse")
	}
}
