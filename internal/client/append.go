package client

import (
	"fmt"

	"distfs/internal/model"
	"distfs/internal/protocol"
)

// Append extends remotePath with data. If the bytes fit in the current
// tail chunk's remaining room they're appended there directly; otherwise
// the tail chunk is topped off and the remainder is uploaded as new
// chunks, per spec §4.3.
func (c *Client) Append(remotePath string, data []byte) error {
	entry, err := c.getFileMetadata(remotePath)
	if err != nil {
		return err
	}
	if len(entry.ChunkIDs) == 0 {
		return fmt.Errorf("client: append to %s: file has no chunks yet", remotePath)
	}

	chunkSize := c.cfg.UploadChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 << 20
	}
	room := chunkSize - entry.LastChunkOffset
	newTotal := entry.TotalSize + int64(len(data))
	allChunkIDs := append([]model.ChunkID(nil), entry.ChunkIDs...)

	if int64(len(data)) <= room {
		if err := c.appendTail(remotePath, entry, data); err != nil {
			return err
		}
		return c.addFile(remotePath, newTotal, allChunkIDs)
	}

	first := data[:room]
	rest := data[room:]
	if err := c.appendTail(remotePath, entry, first); err != nil {
		return err
	}

	newIDs, err := c.appendNewChunks(remotePath, rest)
	if err != nil {
		return err
	}
	allChunkIDs = append(allChunkIDs, newIDs...)
	return c.addFile(remotePath, newTotal, allChunkIDs)
}

// appendTail issues append_chunk against the current holders of the
// file's tail chunk, trying each holder as primary in turn on a
// transport failure.
func (c *Client) appendTail(path string, entry *model.FileEntry, data []byte) error {
	holders := entry.Locations(entry.LastChunkID)
	if len(holders) == 0 {
		return fmt.Errorf("client: append to %s: tail chunk %s has no live holders", path, entry.LastChunkID)
	}

	var lastErr error
	for i, primary := range holders {
		replicas := make([]string, 0, len(holders)-1)
		replicas = append(replicas, holders[:i]...)
		replicas = append(replicas, holders[i+1:]...)

		req := protocol.AppendChunkRequest{
			Command:        protocol.CmdAppendChunk,
			ChunkID:        entry.LastChunkID,
			Data:           data,
			Offset:         entry.LastChunkOffset,
			FilePath:       path,
			ReplicaServers: replicas,
			Primary:        true,
		}
		var resp protocol.AppendChunkResponse
		if err := c.pool.Call(primary, req, &resp); err != nil {
			c.pool.Invalidate(primary)
			lastErr = err
			continue
		}
		if !resp.OK {
			lastErr = resp.Error
			if !isRetryable(resp.Error) {
				return resp.Error
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("client: append to %s: no holder accepted the tail append: %w", path, lastErr)
}

// appendNewChunks uploads rest as additional chunks of path, returning
// their minted ids in order.
func (c *Client) appendNewChunks(path string, rest []byte) ([]model.ChunkID, error) {
	chunks := split(path, rest, c.cfg.UploadChunkSize)
	ids := make([]model.ChunkID, 0, len(chunks))
	for _, chunk := range chunks {
		committed, err := c.storeChunkWithRetry(path, chunk)
		if err != nil {
			return ids, &PartialFailureError{Path: path, CommittedChunks: ids, FailedChunk: chunk.ID, Cause: err}
		}
		if err := c.updateFileMetadata(path, chunk.ID, committed, int64(len(chunk.Data))); err != nil {
			return ids, &PartialFailureError{Path: path, CommittedChunks: ids, FailedChunk: chunk.ID, Cause: err}
		}
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}
