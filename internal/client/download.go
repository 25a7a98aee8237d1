package client

import (
	"bytes"
	"fmt"
	"os"

	"distfs/internal/model"
	"distfs/internal/protocol"
)

// Download reconstructs remotePath by reading its chunks in order and
// writing them to localPath (spec §4.3).
func (c *Client) Download(remotePath, localPath string) error {
	entry, err := c.getFileMetadata(remotePath)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, id := range entry.ChunkIDs {
		holders := entry.ChunkLocations[id]
		if len(holders) == 0 {
			return fmt.Errorf("client: chunk %s of %s has no live holders", id, remotePath)
		}

		ordered := c.orderByRank(holders)
		data, err := c.retrieveFromAnyHolder(id, ordered)
		if err != nil {
			return err
		}
		buf.Write(data)
	}

	if err := os.WriteFile(localPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("client: write %s: %w", localPath, err)
	}
	return nil
}

// orderByRank places holders the coordinator currently ranks highest for
// this client first, falling back to the chunk's raw holder order for
// any holder the ranked list didn't return (e.g. a server near capacity
// for new placements but still a perfectly good read source).
func (c *Client) orderByRank(holders []string) []string {
	ranked, err := c.getChunkServers(0)
	if err != nil {
		return holders
	}
	rankIndex := make(map[string]int, len(ranked))
	for i, s := range ranked {
		rankIndex[s.Address] = i
	}

	ordered := append([]string(nil), holders...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			ri, iok := rankIndex[ordered[j]]
			rj, jok := rankIndex[ordered[j-1]]
			if iok && (!jok || ri < rj) {
				ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
				continue
			}
			break
		}
	}
	return ordered
}

func (c *Client) retrieveFromAnyHolder(id model.ChunkID, holders []string) ([]byte, error) {
	var lastErr error
	for _, addr := range holders {
		req := protocol.RetrieveChunkRequest{Command: protocol.CmdRetrieveChunk, ChunkID: id}
		var resp protocol.RetrieveChunkResponse
		if err := c.pool.Call(addr, req, &resp); err != nil {
			c.pool.Invalidate(addr)
			lastErr = err
			continue
		}
		if !resp.OK {
			lastErr = resp.Error
			continue
		}
		return resp.Data, nil
	}
	return nil, fmt.Errorf("client: no holder of chunk %s could serve it: %w", id.String(), lastErr)
}
