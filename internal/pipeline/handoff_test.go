package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"photoforge/internal/engine"
)

func TestHandoff_CompletedAsset(t *testing.T) {
	out := t.TempDir()
	coord := NewCoordinator(engine.NewScriptedEngine(out))
	defer coord.Close()
	handoff := NewHandoff(coord, nil)

	sess := readySession(t, t.TempDir(), 2)
	jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, coord, jobID)

	asset, ok := handoff.CompletedAsset(jobID)
	if !ok || asset == nil {
		t.Fatal("Expected a completed asset")
	}
	if asset.Format != engine.FormatScenePack {
		t.Errorf("Expected format %q, got %q", engine.FormatScenePack, asset.Format)
	}

	if _, ok := handoff.CompletedAsset("no-such-job"); ok {
		t.Error("Unknown job should have no asset")
	}
}

func TestHandoff_NoAssetForFailedJob(t *testing.T) {
	eng := engine.NewScriptedEngine("")
	eng.FailWith = errors.New("meshing failed")
	coord := NewCoordinator(eng)
	defer coord.Close()
	handoff := NewHandoff(coord, nil)

	sess := readySession(t, t.TempDir(), 2)
	jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, coord, jobID)

	if _, ok := handoff.CompletedAsset(jobID); ok {
		t.Error("Failed job should expose no asset")
	}
}

func TestHandoff_ReleaseDeletesUnlessRetained(t *testing.T) {
	t.Run("released asset file is deleted", func(t *testing.T) {
		coord := NewCoordinator(engine.NewScriptedEngine(t.TempDir()))
		defer coord.Close()
		handoff := NewHandoff(coord, nil)

		sess := readySession(t, t.TempDir(), 1)
		jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		snap := waitTerminal(t, coord, jobID)

		if err := handoff.Release(jobID); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if _, err := os.Stat(snap.Asset.FileReference); !os.IsNotExist(err) {
			t.Error("Asset file should be deleted on release")
		}
	})

	t.Run("retained asset file survives release", func(t *testing.T) {
		coord := NewCoordinator(engine.NewScriptedEngine(t.TempDir()))
		defer coord.Close()
		handoff := NewHandoff(coord, nil)

		sess := readySession(t, t.TempDir(), 1)
		jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		snap := waitTerminal(t, coord, jobID)

		handoff.Retain(jobID)
		if err := handoff.Release(jobID); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if _, err := os.Stat(snap.Asset.FileReference); err != nil {
			t.Errorf("Retained asset file should survive release: %v", err)
		}
		// The job record itself is gone either way
		if _, err := coord.Snapshot(jobID); !errors.Is(err, ErrUnknownJob) {
			t.Errorf("Expected job record released, got %v", err)
		}
	})
}

func TestHandoff_ReleaseActiveJobRejected(t *testing.T) {
	eng := newManualEngine()
	coord := NewCoordinator(eng)
	defer coord.Close()
	handoff := NewHandoff(coord, nil)

	sess := readySession(t, t.TempDir(), 1)
	jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := handoff.Release(jobID); !errors.Is(err, ErrJobActive) {
		t.Fatalf("Expected ErrJobActive, got %v", err)
	}

	eng.closeAbruptly()
	waitTerminal(t, coord, jobID)
}

func TestHandoff_RecordsCompletedAssets(t *testing.T) {
	coord := NewCoordinator(engine.NewScriptedEngine(t.TempDir()))
	defer coord.Close()
	spy := &recorderSpy{}
	NewHandoff(coord, spy)

	sess := readySession(t, t.TempDir(), 2)
	jobID, err := coord.Submit(context.Background(), sess, engine.DetailMedium)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, coord, jobID)

	records := spy.recorded()
	if len(records) != 1 {
		t.Fatalf("Expected 1 recorded asset, got %d", len(records))
	}
	if records[0].jobID != jobID || records[0].sessionID != sess.ID() {
		t.Errorf("Record carries wrong identifiers: %+v", records[0])
	}
	if records[0].asset.DetailLevel != engine.DetailMedium {
		t.Errorf("Record should echo detail level, got %q", records[0].asset.DetailLevel)
	}
}

func TestHandoff_ResetSessionCancelsAndCleans(t *testing.T) {
	eng := newManualEngine()
	coord := NewCoordinator(eng)
	defer coord.Close()
	handoff := NewHandoff(coord, nil)

	sess := readySession(t, t.TempDir(), 2)
	photos := sess.Snapshot()
	jobID, err := coord.Submit(context.Background(), sess, engine.DetailReduced)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	eng.progress(0.3)
	eng.ackCancelOnDone()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := handoff.ResetSession(ctx, sess); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}

	if sess.State().String() != "idle" {
		t.Errorf("Expected idle session after reset, got %s", sess.State())
	}
	for _, p := range photos {
		if _, err := os.Stat(p.FileReference); !os.IsNotExist(err) {
			t.Errorf("Photo %s should be deleted on reset", p.FileReference)
		}
	}
	if _, err := coord.Snapshot(jobID); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Expected job released on reset, got %v", err)
	}
}

func TestHandoff_ResetSessionWithNoJobs(t *testing.T) {
	coord := NewCoordinator(newManualEngine())
	defer coord.Close()
	handoff := NewHandoff(coord, nil)

	sess := readySession(t, t.TempDir(), 1)
	if err := handoff.ResetSession(context.Background(), sess); err != nil {
		t.Fatalf("ResetSession without jobs failed: %v", err)
	}
}
