// Package model holds the coordinator's in-memory and on-disk metadata
// shapes: file entries, chunk locations, storage-server and client
// records, and the derived location graph used by the placement engine.
package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ChunkID uniquely (probabilistically) identifies one chunk across the
// cluster. It is minted by the client at split time from the file path,
// the chunk's index within the file, and a creation timestamp, so retries
// never collide with an earlier attempt for the same chunk slot (spec I5).
type ChunkID string

// NewChunkID hashes (path, index, creation time) with a fast non-cryptographic
// hash. Identity, not tamper-resistance, is the requirement here: the chunk
// id is never used to verify payload integrity, only to name it.
func NewChunkID(path string, index int, createdAt time.Time) ChunkID {
	h := xxhash.New()
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(index)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(createdAt.UnixNano(), 10)))
	return ChunkID(fmt.Sprintf("c%016x", h.Sum64()))
}

func (c ChunkID) String() string { return string(c) }
