// Package client implements the client library from spec.md §4.3:
// splitting files into chunks, driving placement and two-phase commits
// against storage servers chosen by the coordinator, and reassembling
// files on read.
package client

import (
	"time"

	"distfs/internal/model"
)

// splitChunk is one slice of a file's bytes paired with the chunk id
// minted for it.
type splitChunk struct {
	ID   model.ChunkID
	Data []byte
}

// split divides data into chunkSize-sized pieces (the last possibly
// short), minting a content-independent chunk id for each from (path,
// index, creation time) so retried uploads never collide with an
// earlier attempt's ids (spec §3, I5).
func split(path string, data []byte, chunkSize int64) []splitChunk {
	if chunkSize <= 0 {
		chunkSize = 64 << 20
	}
	now := time.Now()
	var out []splitChunk
	for i := int64(0); i < int64(len(data)); i += chunkSize {
		end := i + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		index := len(out)
		out = append(out, splitChunk{
			ID:   model.NewChunkID(path, index, now),
			Data: data[i:end],
		})
	}
	return out
}
