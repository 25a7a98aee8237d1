package coordinator

import (
	"distfs/internal/model"
	"distfs/internal/placement"
	"distfs/internal/protocol"
)

// repairOnce is control loop #2. For every (path, chunk id) with a
// positive replication deficit it asks the placement engine for that
// many additional candidates excluding current holders, then instructs
// one current holder to push the payload to them via replicate_chunk
// (spec §4.1). It is idempotent: a chunk already at target replica
// count never appears in MetadataStore.PendingReplication.
func (c *Coordinator) repairOnce() {
	for _, pc := range c.store.PendingReplication() {
		c.repairChunk(pc)
	}
}

func (c *Coordinator) repairChunk(pc PendingChunk) {
	holders := c.store.Holders(pc.Path, pc.ChunkID)
	if len(holders) == 0 {
		c.logger.Error("repair: chunk has no live holders, data loss",
			"path", pc.Path, "chunk_id", pc.ChunkID.String())
		return
	}

	entry, ok := c.store.GetFileMetadata(pc.Path)
	size := c.cfg.ChunkSize
	if ok {
		if n, ok := entry.ChunkOffsets[pc.ChunkID]; ok && n > 0 {
			size = n
		}
	}

	exclude := make(map[string]bool, len(holders))
	for _, h := range holders {
		exclude[h] = true
	}
	ranked := placement.Rank(model.Location{}, c.candidatesFromMembership(exclude), size, c.weights)
	targets := placement.TopK(ranked, pc.Deficit)
	if len(targets) == 0 {
		c.logger.Warn("repair: no eligible targets this tick", "path", pc.Path, "chunk_id", pc.ChunkID.String())
		return
	}

	addrs := make([]string, len(targets))
	for i, t := range targets {
		addrs[i] = t.Address
	}

	source := holders[0]
	req := protocol.ReplicateChunkRequest{Command: protocol.CmdReplicateChunk, ChunkID: pc.ChunkID, Targets: addrs}
	var resp protocol.ReplicateChunkResponse
	if err := c.pool.Call(source, req, &resp); err != nil {
		c.logger.Warn("repair: replicate_chunk call failed", "source", source, "error", err)
		return
	}
	if !resp.OK || len(resp.Committed) == 0 {
		c.logger.Warn("repair: replicate_chunk reported no committed targets", "path", pc.Path, "chunk_id", pc.ChunkID.String())
		return
	}

	if err := c.store.ApplyReplication(pc.Path, pc.ChunkID, resp.Committed, c.cfg.ReplicationFactor); err != nil {
		c.logger.Error("repair: apply replication failed", "path", pc.Path, "chunk_id", pc.ChunkID.String(), "error", err)
		return
	}
	c.logger.Info("repair: replicated chunk", "path", pc.Path, "chunk_id", pc.ChunkID.String(), "targets", resp.Committed)
}
