package client

import (
	"fmt"
	"os"

	"distfs/internal/model"
	"distfs/internal/protocol"
)

// PartialFailureError reports that some chunks of an upload committed
// before one failed outright (spec §7: "A partial-failure upload leaves
// previously committed chunks intact; no garbage collection in core").
type PartialFailureError struct {
	Path            string
	CommittedChunks []model.ChunkID
	FailedChunk     model.ChunkID
	Cause           error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial_failure: %s: %d chunks committed before chunk %s failed: %v",
		e.Path, len(e.CommittedChunks), e.FailedChunk, e.Cause)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }

// Upload reads localPath, splits it into chunk_size pieces, and drives a
// store_chunk 2PC per chunk against coordinator-chosen placements (spec
// §4.3). Each successfully-committed chunk is reported to the
// coordinator immediately via update_file_metadata; add_file is called
// once at the end to finalize total_size and chunk order.
func (c *Client) Upload(localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("client: read %s: %w", localPath, err)
	}
	return c.uploadBytes(remotePath, data)
}

func (c *Client) uploadBytes(remotePath string, data []byte) error {
	chunks := split(remotePath, data, c.cfg.UploadChunkSize)
	chunkIDs := make([]model.ChunkID, 0, len(chunks))

	for _, chunk := range chunks {
		committed, err := c.storeChunkWithRetry(remotePath, chunk)
		if err != nil {
			return &PartialFailureError{
				Path:            remotePath,
				CommittedChunks: chunkIDs,
				FailedChunk:     chunk.ID,
				Cause:           err,
			}
		}
		if err := c.updateFileMetadata(remotePath, chunk.ID, committed, int64(len(chunk.Data))); err != nil {
			return &PartialFailureError{
				Path:            remotePath,
				CommittedChunks: chunkIDs,
				FailedChunk:     chunk.ID,
				Cause:           err,
			}
		}
		chunkIDs = append(chunkIDs, chunk.ID)
	}

	return c.addFile(remotePath, int64(len(data)), chunkIDs)
}

// storeChunkWithRetry drives one chunk's placement + store_chunk call,
// retrying with re-ranking on transport or insufficient_space failures
// (spec §4.3's failure-handling rule).
func (c *Client) storeChunkWithRetry(path string, chunk splitChunk) ([]string, error) {
	var committed []string
	err := withRetry(defaultMaxAttempts, defaultBackoff, func(attempt int) (bool, error) {
		servers, err := c.getChunkServers(int64(len(chunk.Data)))
		if err != nil {
			return isRetryable(err), err
		}

		primary := servers[0].Address
		replicas := make([]string, 0, len(servers)-1)
		for _, s := range servers[1:] {
			replicas = append(replicas, s.Address)
		}

		req := protocol.StoreChunkRequest{
			Command:        protocol.CmdStoreChunk,
			ChunkID:        chunk.ID,
			FilePath:       path,
			Data:           chunk.Data,
			ReplicaServers: replicas,
			ClientID:       c.id,
		}
		var resp protocol.StoreChunkResponse
		if err := c.pool.Call(primary, req, &resp); err != nil {
			c.pool.Invalidate(primary)
			return true, err
		}
		if !resp.OK {
			return isRetryable(resp.Error), resp.Error
		}
		committed = resp.Committed
		return false, nil
	})
	return committed, err
}

// isRetryable reports whether err is a transport error or a
// protocol.Error explicitly flagged retryable (spec §7: transport and
// capacity errors are retried with re-ranking; state/integrity/
// configuration errors are not).
func isRetryable(err error) bool {
	if pe, ok := err.(*protocol.Error); ok {
		return pe.Retryable || pe.Kind == protocol.ErrTransport
	}
	return true // a raw transport-level error (connection refused, EOF, ...)
}
