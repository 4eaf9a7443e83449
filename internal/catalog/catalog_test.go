package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"photoforge/internal/engine"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeAssetFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("scene"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestCatalog_RecordAndGet(t *testing.T) {
	c := newTestCatalog(t)

	asset := engine.Asset{
		FileReference: writeAssetFile(t, "scene.pack"),
		Format:        engine.FormatScenePack,
		SizeBytes:     5,
		DetailLevel:   engine.DetailMedium,
	}
	if err := c.RecordAsset("job-1", "sess-1", asset); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}

	rec, err := c.Get("job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.SessionID != "sess-1" {
		t.Errorf("Expected session sess-1, got %s", rec.SessionID)
	}
	if rec.FileReference != asset.FileReference {
		t.Errorf("Expected file %s, got %s", asset.FileReference, rec.FileReference)
	}
	if rec.SizeBytes != 5 {
		t.Errorf("Expected 5 bytes, got %d", rec.SizeBytes)
	}
	if rec.DetailLevel != engine.DetailMedium {
		t.Errorf("Expected detail medium, got %s", rec.DetailLevel)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected a created_at timestamp")
	}

	if _, err := c.Get("no-such-job"); err == nil {
		t.Error("Expected error for unknown job")
	}
}

func TestCatalog_RecordIsIdempotentPerJob(t *testing.T) {
	c := newTestCatalog(t)

	first := engine.Asset{FileReference: "/tmp/a.pack", Format: engine.FormatScenePack, SizeBytes: 1, DetailLevel: engine.DetailReduced}
	second := engine.Asset{FileReference: "/tmp/b.pack", Format: engine.FormatScenePack, SizeBytes: 2, DetailLevel: engine.DetailFull}

	if err := c.RecordAsset("job-1", "sess-1", first); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}
	if err := c.RecordAsset("job-1", "sess-1", second); err != nil {
		t.Fatalf("Re-record failed: %v", err)
	}

	count, err := c.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single row after re-record, got %d", count)
	}

	rec, err := c.Get("job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.FileReference != "/tmp/b.pack" || rec.SizeBytes != 2 {
		t.Errorf("Expected the re-recorded asset to win, got %+v", rec)
	}
}

func TestCatalog_ListForSession(t *testing.T) {
	c := newTestCatalog(t)

	asset := engine.Asset{FileReference: "/tmp/x.pack", Format: engine.FormatScenePack, SizeBytes: 1, DetailLevel: engine.DetailReduced}
	for _, pair := range [][2]string{{"job-1", "sess-a"}, {"job-2", "sess-a"}, {"job-3", "sess-b"}} {
		if err := c.RecordAsset(pair[0], pair[1], asset); err != nil {
			t.Fatalf("RecordAsset failed: %v", err)
		}
	}

	all, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(all))
	}
	// Newest first
	if all[0].JobID != "job-3" {
		t.Errorf("Expected job-3 first, got %s", all[0].JobID)
	}

	forA, err := c.ListForSession("sess-a")
	if err != nil {
		t.Fatalf("ListForSession failed: %v", err)
	}
	if len(forA) != 2 {
		t.Errorf("Expected 2 records for sess-a, got %d", len(forA))
	}
}

func TestCatalog_Delete(t *testing.T) {
	c := newTestCatalog(t)

	asset := engine.Asset{FileReference: "/tmp/x.pack", Format: engine.FormatScenePack, SizeBytes: 1, DetailLevel: engine.DetailReduced}
	if err := c.RecordAsset("job-1", "sess-1", asset); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}

	if err := c.Delete("job-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get("job-1"); err == nil {
		t.Error("Expected record gone after delete")
	}

	// Absent record is not an error
	if err := c.Delete("job-1"); err != nil {
		t.Errorf("Second delete should be a no-op, got %v", err)
	}
}

func TestCatalog_PruneDropsStaleRecords(t *testing.T) {
	c := newTestCatalog(t)

	alive := writeAssetFile(t, "alive.pack")
	stale := writeAssetFile(t, "stale.pack")

	if err := c.RecordAsset("job-alive", "sess-1", engine.Asset{FileReference: alive, Format: engine.FormatScenePack, SizeBytes: 5, DetailLevel: engine.DetailReduced}); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}
	if err := c.RecordAsset("job-stale", "sess-1", engine.Asset{FileReference: stale, Format: engine.FormatScenePack, SizeBytes: 5, DetailLevel: engine.DetailReduced}); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}

	if err := os.Remove(stale); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	pruned, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned record, got %d", pruned)
	}

	if _, err := c.Get("job-alive"); err != nil {
		t.Errorf("Live record should survive prune: %v", err)
	}
	if _, err := c.Get("job-stale"); err == nil {
		t.Error("Stale record should be pruned")
	}
}

func TestCatalog_ReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")

	c, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	asset := engine.Asset{FileReference: "/tmp/x.pack", Format: engine.FormatScenePack, SizeBytes: 1, DetailLevel: engine.DetailReduced}
	if err := c.RecordAsset("job-1", "sess-1", asset); err != nil {
		t.Fatalf("RecordAsset failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected record to survive reopen, got %d rows", count)
	}
}
