// Package coordinator implements the single coordinator process: the
// authoritative metadata store, storage-server/client membership,
// placement ranking, and the two background control loops described in
// spec.md §4.1.
package coordinator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/model"
	"distfs/internal/protocol"
)

// metadataVersion is bumped if the on-disk envelope shape ever changes.
const metadataVersion = 1

// metadataDoc is the envelope persisted as metadata.json. Wrapping the
// file map in a versioned document (rather than writing the map bare)
// leaves room to evolve the format without an unversioned free-for-all.
type metadataDoc struct {
	Version int                         `json:"version"`
	Files   map[string]*model.FileEntry `json:"files"`
}

// MetadataStore is the coordinator's single exclusive-lock metadata
// table (spec §5: "a single exclusive lock... every mutating command
// acquires it, mutates, persists to disk, releases"). One MetadataStore
// is owned per Coordinator value; it carries no process-global state so
// tests can run several coordinators in one process (spec §9).
type MetadataStore struct {
	mu     sync.Mutex
	path   string
	files  map[string]*model.FileEntry
	logger *slog.Logger
}

// NewMetadataStore loads metadataDir/metadata.json if present and
// returns a ready store. A missing file is not an error — it means a
// fresh cluster. A malformed file is an integrity error and is returned
// to the caller, who per spec §7 must refuse to start.
func NewMetadataStore(metadataDir string, logger *slog.Logger) (*MetadataStore, error) {
	s := &MetadataStore{
		path:   filepath.Join(metadataDir, "metadata.json"),
		files:  make(map[string]*model.FileEntry),
		logger: logging.Default(logger),
	}

	var doc metadataDoc
	if err := config.ReadJSON(s.path, &doc); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("coordinator: load metadata: %w", err)
	}
	if doc.Files != nil {
		s.files = doc.Files
	}
	s.logger.Info("metadata loaded", "files", len(s.files))
	return s, nil
}

func (s *MetadataStore) persistLocked() error {
	doc := metadataDoc{Version: metadataVersion, Files: s.files}
	if err := config.AtomicWriteJSON(s.path, doc); err != nil {
		return fmt.Errorf("coordinator: persist metadata: %w", err)
	}
	return nil
}

// AddFile initializes a file entry if one does not already exist. It is
// a no-op (not an error) when the entry is already present, since
// upload's incremental update_file_metadata calls may have already
// created it by the time the client issues add_file (spec §4.1/§4.3).
func (s *MetadataStore) AddFile(path string, size int64, chunkIDs []model.ChunkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.files[path]
	if !ok {
		entry = model.NewFileEntry(path)
		s.files[path] = entry
	}
	entry.TotalSize = size
	for _, id := range chunkIDs {
		if !entry.HasChunk(id) {
			entry.ChunkIDs = append(entry.ChunkIDs, id)
		}
	}
	if len(entry.ChunkIDs) > 0 {
		entry.LastChunkID = entry.ChunkIDs[len(entry.ChunkIDs)-1]
	}
	return s.persistLocked()
}

// UpdateFileMetadata installs the committed location set for one chunk
// after a successful 2PC, auto-vivifying the file entry if this is the
// chunk's first commit (upload calls this once per committed chunk,
// ahead of any add_file call, per spec §4.3).
func (s *MetadataStore) UpdateFileMetadata(path string, chunkID model.ChunkID, locations []string, sizeDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.files[path]
	if !ok {
		entry = model.NewFileEntry(path)
		s.files[path] = entry
	}
	if !entry.HasChunk(chunkID) {
		entry.ChunkIDs = append(entry.ChunkIDs, chunkID)
	}
	entry.ChunkLocations[chunkID] = append([]string(nil), locations...)
	entry.TotalSize += sizeDelta
	entry.ChunkOffsets[chunkID] += sizeDelta
	entry.LastChunkID = chunkID
	entry.LastChunkOffset = entry.ChunkOffsets[chunkID]
	delete(entry.PendingReplication, chunkID)

	return s.persistLocked()
}

// UpdateChunkOffset records a new valid-byte-count for chunkID, enforcing
// the single-writer-to-tail mitigation from spec §9: a new offset that is
// not strictly greater than the current one is rejected so a losing
// concurrent appender is forced to retry against fresher state, rather
// than silently clobbering a racing append.
func (s *MetadataStore) UpdateChunkOffset(path string, chunkID model.ChunkID, newOffset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.files[path]
	if !ok {
		return protocol.NewError(protocol.ErrState, "%s: %s", protocol.ReasonUnknownFile, path)
	}
	if current, ok := entry.ChunkOffsets[chunkID]; ok && newOffset <= current {
		return protocol.NewError(protocol.ErrState, "stale offset %d <= current %d for chunk %s", newOffset, current, chunkID)
	}
	entry.ChunkOffsets[chunkID] = newOffset
	if chunkID == entry.LastChunkID {
		entry.LastChunkOffset = newOffset
	}
	return s.persistLocked()
}

// GetFileMetadata returns a defensive copy of path's entry, if any.
func (s *MetadataStore) GetFileMetadata(path string) (*model.FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.files[path]
	if !ok {
		return nil, false
	}
	return cloneEntry(entry), true
}

// ListFiles returns paths matching prefix, or every path if prefix is
// empty. A prefix with no glob metacharacters is treated as a plain
// path prefix; one containing "*", "?", or "[" is matched as a
// doublestar pattern (the same library the teacher uses for path
// matching elsewhere in the corpus).
func (s *MetadataStore) ListFiles(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.files))
	pattern := prefix
	glob := strings.ContainsAny(prefix, "*?[")
	if prefix != "" && !glob {
		pattern = prefix + "**"
	}

	for path := range s.files {
		switch {
		case prefix == "":
			out = append(out, path)
		case glob:
			if ok, _ := doublestar.Match(pattern, strings.TrimPrefix(path, "/")); ok {
				out = append(out, path)
			}
		default:
			if strings.HasPrefix(path, prefix) {
				out = append(out, path)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stats returns cluster-wide counts for get_cluster_stats.
func (s *MetadataStore) Stats() (files, chunks, pendingReplication int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files = len(s.files)
	for _, entry := range s.files {
		chunks += len(entry.ChunkIDs)
		pendingReplication += len(entry.PendingReplication)
	}
	return
}

// RemoveLocation strips addr from every chunk_locations entry across all
// files and, where the remaining count falls below target, records the
// deficit in pending_replication. Used by the membership reaper (spec
// I4, control loop #1).
func (s *MetadataStore) RemoveLocation(addr string, replicationFactor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, entry := range s.files {
		for _, id := range entry.ChunkIDs {
			locs, ok := entry.ChunkLocations[id]
			if !ok {
				continue
			}
			for i, a := range locs {
				if a != addr {
					continue
				}
				entry.ChunkLocations[id] = append(locs[:i], locs[i+1:]...)
				changed = true
				if d := entry.Deficit(id, replicationFactor); d > 0 {
					entry.PendingReplication[id] = d
				}
				break
			}
		}
	}
	if !changed {
		return nil
	}
	return s.persistLocked()
}

// PendingChunk names one (path, chunk id) pair with a positive
// replication deficit, returned by PendingReplication for the repair
// worker to consume.
type PendingChunk struct {
	Path    string
	ChunkID model.ChunkID
	Deficit int
}

// PendingReplication returns a snapshot of every chunk with
// pending_replication > 0, across all files.
func (s *MetadataStore) PendingReplication() []PendingChunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PendingChunk
	for path, entry := range s.files {
		for id, deficit := range entry.PendingReplication {
			if deficit > 0 {
				out = append(out, PendingChunk{Path: path, ChunkID: id, Deficit: deficit})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// Holders returns the current committed location set for (path, chunkID).
func (s *MetadataStore) Holders(path string, chunkID model.ChunkID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.files[path]
	if !ok {
		return nil
	}
	return entry.Locations(chunkID)
}

// ApplyReplication records that targets now hold chunkID, decrementing
// (and clearing, if satisfied) its pending_replication entry. Called by
// the repair worker after a successful replicate_chunk fan-out.
func (s *MetadataStore) ApplyReplication(path string, chunkID model.ChunkID, targets []string, replicationFactor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.files[path]
	if !ok {
		return protocol.NewError(protocol.ErrState, "%s: %s", protocol.ReasonUnknownFile, path)
	}
	for _, t := range targets {
		entry.AddLocation(chunkID, t)
	}
	if d := entry.Deficit(chunkID, replicationFactor); d > 0 {
		entry.PendingReplication[chunkID] = d
	} else {
		delete(entry.PendingReplication, chunkID)
	}
	return s.persistLocked()
}

func cloneEntry(e *model.FileEntry) *model.FileEntry {
	clone := model.NewFileEntry(e.Path)
	clone.TotalSize = e.TotalSize
	clone.ChunkIDs = append([]model.ChunkID(nil), e.ChunkIDs...)
	for k, v := range e.ChunkLocations {
		clone.ChunkLocations[k] = append([]string(nil), v...)
	}
	for k, v := range e.ChunkOffsets {
		clone.ChunkOffsets[k] = v
	}
	for k, v := range e.PendingReplication {
		clone.PendingReplication[k] = v
	}
	clone.LastChunkID = e.LastChunkID
	clone.LastChunkOffset = e.LastChunkOffset
	return clone
}
