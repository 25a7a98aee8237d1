package storageserver

import (
	"bytes"
	"testing"

	"distfs/internal/model"
	"distfs/internal/protocol"
)

func TestChunkStore_PrepareCommitRetrieve(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := model.ChunkID("c1")
	data := bytes.Repeat([]byte{0xAA}, 1024)

	if err := cs.Prepare(id, data, 1<<20); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if cs.Exists(id) {
		t.Fatal("chunk should not exist before commit")
	}
	if err := cs.Commit(id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !cs.Exists(id) {
		t.Fatal("chunk should exist after commit")
	}

	got, err := cs.Retrieve(id, 0, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("retrieved data does not match committed data")
	}
}

func TestChunkStore_CommitIsIdempotent(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := model.ChunkID("c1")
	data := []byte("hello")
	if err := cs.Prepare(id, data, 1<<20); err != nil {
		t.Fatal(err)
	}
	if err := cs.Commit(id); err != nil {
		t.Fatal(err)
	}
	if err := cs.Commit(id); err != nil {
		t.Fatalf("second commit should be a no-op success, got %v", err)
	}
}

func TestChunkStore_RollbackRemovesPreparedFile(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := model.ChunkID("c1")
	if err := cs.Prepare(id, []byte("data"), 1<<20); err != nil {
		t.Fatal(err)
	}
	if err := cs.Rollback(id); err != nil {
		t.Fatal(err)
	}
	if cs.Exists(id) {
		t.Fatal("rolled back chunk should not exist")
	}
	if err := cs.Commit(id); err == nil {
		t.Fatal("commit after rollback without a new prepare should fail")
	}
}

func TestChunkStore_PrepareInsufficientSpace(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = cs.Prepare(model.ChunkID("big"), make([]byte, 1024), 100)
	if err == nil {
		t.Fatal("expected insufficient_space error")
	}
	pe, ok := err.(*protocol.Error)
	if !ok || pe.Kind != protocol.ErrCapacity || !pe.Retryable {
		t.Fatalf("expected retryable capacity error, got %+v", err)
	}
}

func TestChunkStore_AppendLifecycle(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := model.ChunkID("tail")
	base := bytes.Repeat([]byte{0x01}, 1000)
	if err := cs.Prepare(id, base, 1<<20); err != nil {
		t.Fatal(err)
	}
	if err := cs.Commit(id); err != nil {
		t.Fatal(err)
	}

	tail := bytes.Repeat([]byte{0x02}, 24)
	if err := cs.PrepareAppend(id, tail, 1<<20); err != nil {
		t.Fatalf("PrepareAppend: %v", err)
	}
	newOffset, err := cs.CommitAppend(id, 1000)
	if err != nil {
		t.Fatalf("CommitAppend: %v", err)
	}
	if newOffset != 1024 {
		t.Fatalf("expected new offset 1024, got %d", newOffset)
	}

	got, err := cs.Retrieve(id, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1024 || !bytes.Equal(got[1000:], tail) {
		t.Fatalf("expected appended tail to be visible, got len=%d", len(got))
	}
}

func TestChunkStore_UsedBytesExcludesTmp(t *testing.T) {
	cs, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := model.ChunkID("c1")
	data := make([]byte, 500)
	if err := cs.Prepare(id, data, 1<<20); err != nil {
		t.Fatal(err)
	}

	used, err := cs.UsedBytes()
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Fatalf("expected 0 used bytes while only prepared (not committed), got %d", used)
	}

	if err := cs.Commit(id); err != nil {
		t.Fatal(err)
	}
	used, err = cs.UsedBytes()
	if err != nil {
		t.Fatal(err)
	}
	if used != 500 {
		t.Fatalf("expected 500 used bytes after commit, got %d", used)
	}
}
