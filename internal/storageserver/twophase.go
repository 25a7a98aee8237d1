package storageserver

import (
	"sync"

	"distfs/internal/model"
	"distfs/internal/protocol"
	"distfs/internal/rpc"
)

// Committer drives the primary side of the two-phase commit protocol
// from spec.md §4.2 against a set of replicas, and serves as the target
// side for prepare_chunk/commit_chunk/rollback_chunk requests a peer
// sends it.
type Committer struct {
	self  string
	store *ChunkStore
	space *SpaceAccountant
	pool  *rpc.Pool
}

// NewCommitter builds a Committer. self is this server's own address,
// used to exclude itself from any replica fan-out it drives.
func NewCommitter(self string, store *ChunkStore, space *SpaceAccountant, pool *rpc.Pool) *Committer {
	return &Committer{self: self, store: store, space: space, pool: pool}
}

// Store drives a full store_chunk 2PC attempt: prepare locally and
// against every replica in parallel, then either commit everywhere (with
// the degraded-commit policy: any subset that actually commits is a
// success) or roll back everywhere a prepare already succeeded. When this
// server's own prepare fails for lack of space the error is
// insufficient_space; any other prepare failure is reported as a
// retryable transport error.
func (c *Committer) Store(chunkID model.ChunkID, data []byte, replicas []string) ([]string, *protocol.Error) {
	okPeers, failed := c.prepareAll(chunkID, data, replicas)
	if len(failed) > 0 {
		c.rollbackAll(chunkID, okPeers)
		for _, peer := range failed {
			if peer == "" && int64(len(data)) > c.space.Free() {
				return nil, protocol.ErrInsufficientSpace()
			}
		}
		return nil, protocol.NewRetryableError(protocol.ErrTransport, "prepare failed on %d of %d replicas", len(failed), len(replicas)+1)
	}
	return c.commitAll(chunkID, okPeers), nil
}

// prepareAll prepares locally and on every replica concurrently,
// returning the peers (including "" for self) that answered ok and the
// ones that did not.
func (c *Committer) prepareAll(chunkID model.ChunkID, data []byte, replicas []string) (ok, failed []string) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	record := func(peer string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, peer)
			return
		}
		ok = append(ok, peer)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		record("", c.store.Prepare(chunkID, data, c.space.Free()))
	}()

	for _, addr := range replicas {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := protocol.PrepareChunkRequest{Command: protocol.CmdPrepareChunk, ChunkID: chunkID, Data: data}
			var resp protocol.Ack
			err := c.pool.Call(addr, req, &resp)
			if err == nil && !resp.OK {
				err = resp.Error
			}
			record(addr, err)
		}()
	}

	wg.Wait()
	return ok, failed
}

// commitAll sends commit_chunk to every peer that prepared ok, in
// parallel, and returns the subset that actually committed (spec §4.2:
// "any replica that fails commit_chunk is removed from the returned
// success set but does not fail the whole operation").
func (c *Committer) commitAll(chunkID model.ChunkID, prepared []string) []string {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var committed []string

	for _, peer := range prepared {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if peer == "" {
				err = c.store.Commit(chunkID)
			} else {
				req := protocol.CommitChunkRequest{Command: protocol.CmdCommitChunk, ChunkID: chunkID}
				var resp protocol.Ack
				err = c.pool.Call(peer, req, &resp)
				if err == nil && !resp.OK {
					err = resp.Error
				}
			}
			if err != nil {
				return
			}
			mu.Lock()
			committed = append(committed, peerAddress(peer, c.self))
			mu.Unlock()
		}()
	}
	wg.Wait()
	return committed
}

// rollbackAll sends rollback_chunk to every peer (including self, if
// present) that answered ok during prepare.
func (c *Committer) rollbackAll(chunkID model.ChunkID, prepared []string) {
	var wg sync.WaitGroup
	for _, peer := range prepared {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if peer == "" {
				_ = c.store.Rollback(chunkID)
				return
			}
			req := protocol.RollbackChunkRequest{Command: protocol.CmdRollbackChunk, ChunkID: chunkID}
			var resp protocol.Ack
			_ = c.pool.Call(peer, req, &resp)
		}()
	}
	wg.Wait()
}

func peerAddress(peer, self string) string {
	if peer == "" {
		return self
	}
	return peer
}

// Append performs a local prepare+commit of the append tail and, when
// replicas are given, forwards the same append_chunk command to each of
// them in parallel with Primary cleared (spec §4.2's append variant).
// The local result always succeeds or fails the whole call; replica
// forwarding is best-effort, matching the 2PC degraded-commit policy
// used for store_chunk.
func (c *Committer) Append(chunkID model.ChunkID, data []byte, offset int64, replicas []string) (newOffset int64, committed []string, rerr *protocol.Error) {
	if err := c.store.PrepareAppend(chunkID, data, c.space.Free()); err != nil {
		return 0, nil, toProtocolError(err)
	}
	newOffset, err := c.store.CommitAppend(chunkID, offset)
	if err != nil {
		_ = c.store.RollbackAppend(chunkID)
		return 0, nil, toProtocolError(err)
	}

	committed = []string{c.self}
	if len(replicas) == 0 {
		return newOffset, committed, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, addr := range replicas {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := protocol.AppendChunkRequest{
				Command: protocol.CmdAppendChunk,
				ChunkID: chunkID,
				Data:    data,
				Offset:  offset,
				Primary: false,
			}
			var resp protocol.AppendChunkResponse
			if err := c.pool.Call(addr, req, &resp); err != nil || !resp.OK {
				return
			}
			mu.Lock()
			committed = append(committed, addr)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return newOffset, committed, nil
}

func toProtocolError(err error) *protocol.Error {
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.ErrIntegrity, "%s", err.Error())
}

// Replicate reads the local committed payload for chunkID and drives a
// store_chunk-style 2PC against targets, with this server acting purely
// as the data source (it is never itself a member of targets, per spec
// §4.2).
func (c *Committer) Replicate(chunkID model.ChunkID, targets []string) []string {
	data, err := c.store.Retrieve(chunkID, 0, 0)
	if err != nil {
		return nil
	}
	okPeers, failed := c.prepareAll(chunkID, data, targets)
	// Self always "prepares" trivially since it already holds the chunk;
	// exclude it from the peer set committed below.
	peers := make([]string, 0, len(okPeers))
	for _, p := range okPeers {
		if p != "" {
			peers = append(peers, p)
		}
	}
	if len(failed) > 0 {
		c.rollbackAll(chunkID, peers)
	}
	return c.commitAll(chunkID, peers)
}
