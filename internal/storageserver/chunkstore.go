package storageserver

import (
	"fmt"
	"os"
	"path/filepath"

	"distfs/internal/model"
	"distfs/internal/protocol"
)

// ChunkStore owns one storage server's data directory: committed chunk
// payloads named by chunk id, plus a .tmp/ subdirectory for prepared
// writes and in-flight append tails (spec §4.2, §6).
type ChunkStore struct {
	dataDir string
	tmpDir  string
	txns    *txnTable
}

// NewChunkStore creates dataDir and its .tmp subdirectory if missing.
func NewChunkStore(dataDir string) (*ChunkStore, error) {
	tmpDir := filepath.Join(dataDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("storageserver: create data directory: %w", err)
	}
	return &ChunkStore{dataDir: dataDir, tmpDir: tmpDir, txns: newTxnTable()}, nil
}

func (c *ChunkStore) finalPath(id model.ChunkID) string {
	return filepath.Join(c.dataDir, id.String())
}

func (c *ChunkStore) tmpPath(id model.ChunkID) string {
	return filepath.Join(c.tmpDir, id.String())
}

func (c *ChunkStore) appendTmpPath(id model.ChunkID) string {
	return filepath.Join(c.tmpDir, id.String()+".append")
}

// Exists reports whether id has a committed payload on disk.
func (c *ChunkStore) Exists(id model.ChunkID) bool {
	_, err := os.Stat(c.finalPath(id))
	return err == nil
}

// Prepare is the phase-1 handler: verify free space, write data to
// .tmp/<chunk_id> atomically (via a sibling temp file plus rename so a
// crash mid-write never leaves a partial prepare visible), and record
// PREPARED in the transaction table. A chunk already COMMITTED answers
// ok without rewriting, per spec §4.2's idempotence note.
func (c *ChunkStore) Prepare(id model.ChunkID, data []byte, freeBytes int64) error {
	if c.Exists(id) {
		c.txns.setCommitted(id)
		return nil
	}
	if int64(len(data)) > freeBytes {
		return protocol.ErrInsufficientSpace()
	}

	staging := c.tmpPath(id) + ".writing"
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	if err := os.Rename(staging, c.tmpPath(id)); err != nil {
		os.Remove(staging)
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	c.txns.setPrepared(id)
	return nil
}

// Commit is the phase-2 handler: rename .tmp/<chunk_id> into place.
// Idempotent if the final path already exists.
func (c *ChunkStore) Commit(id model.ChunkID) error {
	if c.Exists(id) {
		c.txns.setCommitted(id)
		return nil
	}
	if c.txns.get(id) != statePrepared {
		return protocol.NewError(protocol.ErrState, protocol.ReasonNotPrepared)
	}
	if err := os.Rename(c.tmpPath(id), c.finalPath(id)); err != nil {
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	c.txns.setCommitted(id)
	return nil
}

// Rollback removes .tmp/<chunk_id> if present; idempotent.
func (c *ChunkStore) Rollback(id model.ChunkID) error {
	if err := os.Remove(c.tmpPath(id)); err != nil && !os.IsNotExist(err) {
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	c.txns.setAbsent(id)
	return nil
}

// Retrieve returns the requested byte range of a committed chunk.
// length <= 0 means "through end of file".
func (c *ChunkStore) Retrieve(id model.ChunkID, offset, length int64) ([]byte, error) {
	f, err := os.Open(c.finalPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, protocol.NewError(protocol.ErrState, "%s: %s", protocol.ReasonUnknownChunk, id)
		}
		return nil, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	size := info.Size()
	if offset < 0 || offset > size {
		offset = 0
	}
	remaining := size - offset
	if length <= 0 || length > remaining {
		length = remaining
	}

	buf := make([]byte, length)
	if length > 0 {
		if _, err := f.ReadAt(buf, offset); err != nil {
			return nil, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
		}
	}
	return buf, nil
}

// PrepareAppend is append's phase-1 handler: stages the new tail bytes
// at .tmp/<chunk_id>.append without touching the committed file.
func (c *ChunkStore) PrepareAppend(id model.ChunkID, data []byte, freeBytes int64) error {
	if !c.Exists(id) {
		return protocol.NewError(protocol.ErrState, "%s: %s", protocol.ReasonUnknownChunk, id)
	}
	if int64(len(data)) > freeBytes {
		return protocol.ErrInsufficientSpace()
	}
	staging := c.appendTmpPath(id) + ".writing"
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	if err := os.Rename(staging, c.appendTmpPath(id)); err != nil {
		os.Remove(staging)
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	return nil
}

// CommitAppend opens the committed chunk, writes the staged tail bytes
// at offset, fsyncs, and returns the new valid-byte count.
func (c *ChunkStore) CommitAppend(id model.ChunkID, offset int64) (int64, error) {
	tail, err := os.ReadFile(c.appendTmpPath(id))
	if err != nil {
		return 0, protocol.NewError(protocol.ErrState, protocol.ReasonNotPrepared)
	}

	f, err := os.OpenFile(c.finalPath(id), os.O_WRONLY, 0o644)
	if err != nil {
		return 0, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	defer f.Close()

	if _, err := f.WriteAt(tail, offset); err != nil {
		return 0, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	if err := f.Sync(); err != nil {
		return 0, protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	_ = os.Remove(c.appendTmpPath(id))

	return offset + int64(len(tail)), nil
}

// RollbackAppend removes the staged append tail, if present.
func (c *ChunkStore) RollbackAppend(id model.ChunkID) error {
	if err := os.Remove(c.appendTmpPath(id)); err != nil && !os.IsNotExist(err) {
		return protocol.NewError(protocol.ErrIntegrity, "%s: %v", protocol.ReasonIOError, err)
	}
	return nil
}

// UsedBytes sums the sizes of the regular files directly in dataDir:
// committed chunks, plus server_info.json once it has been written.
// Subdirectories such as .tmp are skipped.
func (c *ChunkStore) UsedBytes() (int64, error) {
	var total int64
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue // skips .tmp
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// DataDir returns the chunk payload directory, for the space watcher.
func (c *ChunkStore) DataDir() string { return c.dataDir }
