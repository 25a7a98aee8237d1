package storageserver

import (
	"distfs/internal/model"
	"distfs/internal/protocol"
)

func (s *StorageServer) registerHandlers() {
	s.server.Handle(protocol.CmdStoreChunk, s.handleStoreChunk)
	s.server.Handle(protocol.CmdPrepareChunk, s.handlePrepareChunk)
	s.server.Handle(protocol.CmdCommitChunk, s.handleCommitChunk)
	s.server.Handle(protocol.CmdRollbackChunk, s.handleRollbackChunk)
	s.server.Handle(protocol.CmdRetrieveChunk, s.handleRetrieveChunk)
	s.server.Handle(protocol.CmdAppendChunk, s.handleAppendChunk)
	s.server.Handle(protocol.CmdReplicateChunk, s.handleReplicateChunk)
}

func (s *StorageServer) handleStoreChunk(payload []byte) (interface{}, error) {
	var req protocol.StoreChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	committed, err := s.committer.Store(req.ChunkID, req.Data, req.ReplicaServers)
	if err != nil {
		return protocol.StoreChunkResponse{OK: false, Error: err}, nil
	}
	return protocol.StoreChunkResponse{OK: true, Committed: committed}, nil
}

func (s *StorageServer) handlePrepareChunk(payload []byte) (interface{}, error) {
	var req protocol.PrepareChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := s.chunkStore.Prepare(req.ChunkID, req.Data, s.space.Free()); err != nil {
		return protocol.Ack{OK: false, Error: asStorageError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (s *StorageServer) handleCommitChunk(payload []byte) (interface{}, error) {
	var req protocol.CommitChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := s.chunkStore.Commit(req.ChunkID); err != nil {
		return protocol.Ack{OK: false, Error: asStorageError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (s *StorageServer) handleRollbackChunk(payload []byte) (interface{}, error) {
	var req protocol.RollbackChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := s.chunkStore.Rollback(req.ChunkID); err != nil {
		return protocol.Ack{OK: false, Error: asStorageError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (s *StorageServer) handleRetrieveChunk(payload []byte) (interface{}, error) {
	var req protocol.RetrieveChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	data, err := s.chunkStore.Retrieve(req.ChunkID, req.Offset, req.Length)
	if err != nil {
		return protocol.RetrieveChunkResponse{OK: false, Error: asStorageError(err)}, nil
	}
	return protocol.RetrieveChunkResponse{OK: true, Data: data}, nil
}

func (s *StorageServer) handleAppendChunk(payload []byte) (interface{}, error) {
	var req protocol.AppendChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}

	newOffset, committed, cerr := s.committer.Append(req.ChunkID, req.Data, req.Offset, req.ReplicaServers)
	if cerr != nil {
		return protocol.AppendChunkResponse{OK: false, Error: cerr}, nil
	}

	if req.Primary && req.FilePath != "" {
		s.reportChunkOffset(req.FilePath, req.ChunkID, newOffset)
	}

	return protocol.AppendChunkResponse{OK: true, NewOffset: newOffset, Committed: committed}, nil
}

// reportChunkOffset makes the single coordinator call spec §4.2 assigns
// to the primary after a successful append commit. A failure here is
// logged and not retried inline: the append to the client has already
// succeeded, and a stale chunk_offsets entry is repaired by the next
// append attempt observing it (spec §9's reject-stale-offset rule).
func (s *StorageServer) reportChunkOffset(path string, chunkID model.ChunkID, newOffset int64) {
	req := protocol.UpdateChunkOffsetRequest{
		Command:   protocol.CmdUpdateChunkOffset,
		Path:      path,
		ChunkID:   chunkID,
		NewOffset: newOffset,
	}
	var resp protocol.Ack
	if err := s.pool.Call(s.cfg.CoordinatorAddress, req, &resp); err != nil {
		s.logger.Warn("append: report chunk offset to coordinator failed", "path", path, "chunk_id", chunkID.String(), "error", err)
		return
	}
	if !resp.OK {
		s.logger.Warn("append: coordinator rejected chunk offset update", "path", path, "chunk_id", chunkID.String(), "error", resp.Error)
	}
}

func (s *StorageServer) handleReplicateChunk(payload []byte) (interface{}, error) {
	var req protocol.ReplicateChunkRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	committed := s.committer.Replicate(req.ChunkID, req.Targets)
	return protocol.ReplicateChunkResponse{OK: len(committed) > 0, Committed: committed}, nil
}

func asStorageError(err error) *protocol.Error {
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.ErrIntegrity, "%s", err.Error())
}
