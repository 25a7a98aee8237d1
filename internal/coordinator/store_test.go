package coordinator

import (
	"path/filepath"
	"testing"

	"distfs/internal/model"
)

func newTestStore(t *testing.T) *MetadataStore {
	t.Helper()
	s, err := NewMetadataStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	return s
}

func TestMetadataStore_UpdateFileMetadataThenAddFile(t *testing.T) {
	s := newTestStore(t)
	chunkID := model.ChunkID("c1")

	if err := s.UpdateFileMetadata("/r/a.txt", chunkID, []string{"10.0.0.1:7000"}, 1024); err != nil {
		t.Fatalf("UpdateFileMetadata: %v", err)
	}
	if err := s.AddFile("/r/a.txt", 1024, []model.ChunkID{chunkID}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	entry, ok := s.GetFileMetadata("/r/a.txt")
	if !ok {
		t.Fatal("expected file entry to exist")
	}
	if entry.TotalSize != 1024 {
		t.Fatalf("expected total_size 1024, got %d", entry.TotalSize)
	}
	if len(entry.ChunkIDs) != 1 || entry.ChunkIDs[0] != chunkID {
		t.Fatalf("expected single chunk id %s, got %v", chunkID, entry.ChunkIDs)
	}
	if got := entry.Locations(chunkID); len(got) != 1 || got[0] != "10.0.0.1:7000" {
		t.Fatalf("expected one committed location, got %v", got)
	}
	if entry.LastChunkOffset != 1024 {
		t.Fatalf("expected last_chunk_offset to track the committed chunk's byte length, got %d", entry.LastChunkOffset)
	}
}

func TestMetadataStore_UpdateChunkOffsetRejectsStale(t *testing.T) {
	s := newTestStore(t)
	chunkID := model.ChunkID("tail")
	if err := s.UpdateFileMetadata("/r/a.txt", chunkID, []string{"a"}, 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateChunkOffset("/r/a.txt", chunkID, 1050); err != nil {
		t.Fatalf("first offset update: %v", err)
	}
	if err := s.UpdateChunkOffset("/r/a.txt", chunkID, 900); err == nil {
		t.Fatal("expected stale offset to be rejected")
	}
	if err := s.UpdateChunkOffset("/r/a.txt", chunkID, 1100); err != nil {
		t.Fatalf("advancing offset should succeed: %v", err)
	}
}

func TestMetadataStore_ListFilesPrefixAndGlob(t *testing.T) {
	s := newTestStore(t)
	for _, p := range []string{"/r/a/one.txt", "/r/a/two.txt", "/r/b/three.txt"} {
		if err := s.UpdateFileMetadata(p, model.ChunkID(p), []string{"x"}, 1); err != nil {
			t.Fatal(err)
		}
	}

	all := s.ListFiles("")
	if len(all) != 3 {
		t.Fatalf("expected 3 files, got %d", len(all))
	}

	aOnly := s.ListFiles("/r/a")
	if len(aOnly) != 2 {
		t.Fatalf("expected 2 files under /r/a, got %v", aOnly)
	}

	glob := s.ListFiles("r/a/*.txt")
	if len(glob) != 2 {
		t.Fatalf("expected glob match of 2, got %v", glob)
	}
}

func TestMetadataStore_PersistsAcrossReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta")
	s, err := NewMetadataStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateFileMetadata("/r/a.txt", model.ChunkID("c1"), []string{"addr"}, 5); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewMetadataStore(dir, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	entry, ok := reloaded.GetFileMetadata("/r/a.txt")
	if !ok || entry.TotalSize != 5 {
		t.Fatalf("expected persisted entry to survive reload, got %+v ok=%v", entry, ok)
	}
}

func TestMetadataStore_RemoveLocationEnqueuesDeficit(t *testing.T) {
	s := newTestStore(t)
	chunkID := model.ChunkID("c1")
	if err := s.UpdateFileMetadata("/r/a.txt", chunkID, []string{"A", "B", "C"}, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveLocation("B", 3); err != nil {
		t.Fatal(err)
	}

	entry, _ := s.GetFileMetadata("/r/a.txt")
	if len(entry.Locations(chunkID)) != 2 {
		t.Fatalf("expected 2 remaining locations, got %v", entry.Locations(chunkID))
	}
	pending := s.PendingReplication()
	if len(pending) != 1 || pending[0].Deficit != 1 {
		t.Fatalf("expected deficit of 1, got %+v", pending)
	}
}
