package storageserver

import (
	"bytes"
	"testing"
	"time"

	"distfs/internal/model"
	"distfs/internal/protocol"
	"distfs/internal/rpc"
)

// testPeer is a minimal storage server stand-in used only to exercise
// Committer's 2PC fan-out: it serves prepare_chunk/commit_chunk/
// rollback_chunk against its own ChunkStore, with a fixed free-space
// budget (no heartbeat, no coordinator, no append support needed here).
type testPeer struct {
	store  *ChunkStore
	server *rpc.Server
	free   int64
}

func newTestPeer(t *testing.T, free int64) *testPeer {
	t.Helper()
	store, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv, err := rpc.NewServer("127.0.0.1:0", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := &testPeer{store: store, server: srv, free: free}

	srv.Handle(protocol.CmdPrepareChunk, func(payload []byte) (interface{}, error) {
		var req protocol.PrepareChunkRequest
		if err := protocol.Decode(payload, &req); err != nil {
			return nil, err
		}
		if err := p.store.Prepare(req.ChunkID, req.Data, p.free); err != nil {
			return protocol.Ack{OK: false, Error: err.(*protocol.Error)}, nil
		}
		return protocol.Ack{OK: true}, nil
	})
	srv.Handle(protocol.CmdCommitChunk, func(payload []byte) (interface{}, error) {
		var req protocol.CommitChunkRequest
		if err := protocol.Decode(payload, &req); err != nil {
			return nil, err
		}
		if err := p.store.Commit(req.ChunkID); err != nil {
			return protocol.Ack{OK: false, Error: err.(*protocol.Error)}, nil
		}
		return protocol.Ack{OK: true}, nil
	})
	srv.Handle(protocol.CmdRollbackChunk, func(payload []byte) (interface{}, error) {
		var req protocol.RollbackChunkRequest
		if err := protocol.Decode(payload, &req); err != nil {
			return nil, err
		}
		_ = p.store.Rollback(req.ChunkID)
		return protocol.Ack{OK: true}, nil
	})

	go srv.Serve()
	t.Cleanup(func() { _ = srv.Stop() })
	return p
}

func TestCommitter_StoreSucceedsAcrossReplicas(t *testing.T) {
	primaryStore, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	space, err := NewSpaceAccountant(primaryStore, 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = space.Close() })

	replica := newTestPeer(t, 1<<20)
	pool := rpc.NewPool(2 * time.Second)
	t.Cleanup(pool.CloseAll)

	committer := NewCommitter("primary", primaryStore, space, pool)
	data := bytes.Repeat([]byte{0xAA}, 1024)

	committed, perr := committer.Store(model.ChunkID("c1"), data, []string{replica.server.Addr().String()})
	if perr != nil {
		t.Fatalf("Store: %v", perr)
	}
	if len(committed) != 2 {
		t.Fatalf("expected both primary and replica to commit, got %v", committed)
	}
	if !replica.store.Exists(model.ChunkID("c1")) {
		t.Fatal("expected replica to hold the committed chunk")
	}
}

func TestCommitter_StoreRollsBackOnPrepareFailure(t *testing.T) {
	primaryStore, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Primary has almost no free space: its own local prepare fails.
	space, err := NewSpaceAccountant(primaryStore, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = space.Close() })

	replica := newTestPeer(t, 1<<20)
	pool := rpc.NewPool(2 * time.Second)
	t.Cleanup(pool.CloseAll)

	committer := NewCommitter("primary", primaryStore, space, pool)
	data := make([]byte, 1<<20) // 1 MiB, primary has only 100 bytes free

	committed, perr := committer.Store(model.ChunkID("c1"), data, []string{replica.server.Addr().String()})
	if perr == nil {
		t.Fatal("expected store to fail when primary's own prepare fails")
	}
	if len(committed) != 0 {
		t.Fatalf("expected no committed servers, got %v", committed)
	}
	if primaryStore.Exists(model.ChunkID("c1")) {
		t.Fatal("primary should not hold the chunk after rollback")
	}
	if replica.store.Exists(model.ChunkID("c1")) {
		t.Fatal("replica should have rolled back too")
	}
}

func TestCommitter_AppendAcrossReplicas(t *testing.T) {
	primaryStore, err := NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	space, err := NewSpaceAccountant(primaryStore, 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = space.Close() })

	id := model.ChunkID("tail")
	base := bytes.Repeat([]byte{0x01}, 1000)
	if err := primaryStore.Prepare(id, base, 1<<20); err != nil {
		t.Fatal(err)
	}
	if err := primaryStore.Commit(id); err != nil {
		t.Fatal(err)
	}

	pool := rpc.NewPool(2 * time.Second)
	t.Cleanup(pool.CloseAll)
	committer := NewCommitter("primary", primaryStore, space, pool)

	newOffset, committed, perr := committer.Append(id, bytes.Repeat([]byte{0x02}, 24), 1000, nil)
	if perr != nil {
		t.Fatalf("Append: %v", perr)
	}
	if newOffset != 1024 {
		t.Fatalf("expected new offset 1024, got %d", newOffset)
	}
	if len(committed) != 1 || committed[0] != "primary" {
		t.Fatalf("expected self-only commit set, got %v", committed)
	}
}
