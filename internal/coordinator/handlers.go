package coordinator

import (
	"distfs/internal/model"
	"distfs/internal/placement"
	"distfs/internal/protocol"
)

func (c *Coordinator) registerHandlers() {
	c.server.Handle(protocol.CmdRegisterStorageServer, c.handleRegisterStorageServer)
	c.server.Handle(protocol.CmdRegisterClient, c.handleRegisterClient)
	c.server.Handle(protocol.CmdHeartbeat, c.handleHeartbeat)
	c.server.Handle(protocol.CmdGetChunkServers, c.handleGetChunkServers)
	c.server.Handle(protocol.CmdGetReplicaLocations, c.handleGetReplicaLocations)
	c.server.Handle(protocol.CmdAddFile, c.handleAddFile)
	c.server.Handle(protocol.CmdUpdateFileMetadata, c.handleUpdateFileMetadata)
	c.server.Handle(protocol.CmdUpdateChunkOffset, c.handleUpdateChunkOffset)
	c.server.Handle(protocol.CmdGetFileMetadata, c.handleGetFileMetadata)
	c.server.Handle(protocol.CmdListFiles, c.handleListFiles)
	c.server.Handle(protocol.CmdGetGraphData, c.handleGetGraphData)
	c.server.Handle(protocol.CmdGetServerInfo, c.handleGetServerInfo)
	c.server.Handle(protocol.CmdGetClusterStats, c.handleGetClusterStats)
}

func (c *Coordinator) handleRegisterStorageServer(payload []byte) (interface{}, error) {
	var req protocol.RegisterStorageServerRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	c.membership.RegisterServer(req.ID, req.Address, req.Location, req.SpaceLimit)
	c.ranks.invalidateAll()
	c.scanPendingReplicationFor(req.Address)
	return protocol.Ack{OK: true}, nil
}

func (c *Coordinator) handleRegisterClient(payload []byte) (interface{}, error) {
	var req protocol.RegisterClientRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	c.membership.RegisterClient(req.ID, req.Location)
	return protocol.Ack{OK: true}, nil
}

func (c *Coordinator) handleHeartbeat(payload []byte) (interface{}, error) {
	var req protocol.HeartbeatRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	_, wasLive := c.membership.Server(req.Address)
	c.membership.HeartbeatServer(req.Address, req.UsedBytes, req.Location)
	if !wasLive {
		// implicit re-registration (spec §4.2): a chunk reaped while this
		// server was unreachable may now be placeable on it again.
		c.ranks.invalidateAll()
	}
	return protocol.Ack{OK: true}, nil
}

// candidatesFromMembership builds the placement.Candidate set from every
// currently live storage server, optionally excluding a set of addresses.
func (c *Coordinator) candidatesFromMembership(exclude map[string]bool) []placement.Candidate {
	servers := c.membership.Servers()
	out := make([]placement.Candidate, 0, len(servers))
	for _, s := range servers {
		if exclude[s.Address] {
			continue
		}
		out = append(out, placement.Candidate{
			ID:       s.ID,
			Address:  s.Address,
			Location: s.Location,
			Free:     s.Free(),
			Limit:    s.SpaceLimit,
		})
	}
	return out
}

func (c *Coordinator) handleGetChunkServers(payload []byte) (interface{}, error) {
	var req protocol.GetChunkServersRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}

	client, ok := c.membership.Client(req.ClientID)
	loc := model.Location{}
	if ok {
		loc = client.Location
	}

	ranked := placement.Rank(loc, c.candidatesFromMembership(nil), req.NeededBytes, c.weights)
	top := placement.TopK(ranked, c.cfg.ReplicationFactor)
	if len(top) == 0 {
		return protocol.GetChunkServersResponse{
			OK:    false,
			Error: protocol.NewRetryableError(protocol.ErrCapacity, protocol.ReasonNoServersAvailable),
		}, nil
	}
	c.ranks.put(req.ClientID, top)

	servers := make([]protocol.ServerDescriptor, len(top))
	for i, r := range top {
		servers[i] = protocol.ServerDescriptor{ID: r.ID, Address: r.Address}
	}
	return protocol.GetChunkServersResponse{OK: true, Servers: servers}, nil
}

func (c *Coordinator) handleGetReplicaLocations(payload []byte) (interface{}, error) {
	var req protocol.GetReplicaLocationsRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}

	client, ok := c.membership.Client(req.ClientID)
	loc := model.Location{}
	if ok {
		loc = client.Location
	}

	exclude := make(map[string]bool, len(req.Exclude))
	for _, a := range req.Exclude {
		exclude[a] = true
	}

	ranked := placement.Rank(loc, c.candidatesFromMembership(exclude), req.Size, c.weights)
	top := placement.TopK(ranked, c.cfg.ReplicationFactor-len(req.Exclude))
	if len(top) == 0 {
		return protocol.GetChunkServersResponse{
			OK:    false,
			Error: protocol.NewRetryableError(protocol.ErrCapacity, protocol.ReasonNoServersAvailable),
		}, nil
	}

	servers := make([]protocol.ServerDescriptor, len(top))
	for i, r := range top {
		servers[i] = protocol.ServerDescriptor{ID: r.ID, Address: r.Address}
	}
	return protocol.GetChunkServersResponse{OK: true, Servers: servers}, nil
}

func (c *Coordinator) handleAddFile(payload []byte) (interface{}, error) {
	var req protocol.AddFileRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := c.store.AddFile(req.Path, req.Size, req.ChunkIDs); err != nil {
		return protocol.Ack{OK: false, Error: asProtocolError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (c *Coordinator) handleUpdateFileMetadata(payload []byte) (interface{}, error) {
	var req protocol.UpdateFileMetadataRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := c.store.UpdateFileMetadata(req.Path, req.ChunkID, req.Locations, req.SizeDelta); err != nil {
		return protocol.Ack{OK: false, Error: asProtocolError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (c *Coordinator) handleUpdateChunkOffset(payload []byte) (interface{}, error) {
	var req protocol.UpdateChunkOffsetRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	if err := c.store.UpdateChunkOffset(req.Path, req.ChunkID, req.NewOffset); err != nil {
		return protocol.Ack{OK: false, Error: asProtocolError(err)}, nil
	}
	return protocol.Ack{OK: true}, nil
}

func (c *Coordinator) handleGetFileMetadata(payload []byte) (interface{}, error) {
	var req protocol.GetFileMetadataRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	entry, ok := c.store.GetFileMetadata(req.Path)
	if !ok {
		return protocol.GetFileMetadataResponse{
			OK:    false,
			Error: protocol.NewError(protocol.ErrState, "%s: %s", protocol.ReasonUnknownFile, req.Path),
		}, nil
	}
	return protocol.GetFileMetadataResponse{OK: true, Entry: entry}, nil
}

func (c *Coordinator) handleListFiles(payload []byte) (interface{}, error) {
	var req protocol.ListFilesRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	return protocol.ListFilesResponse{OK: true, Paths: c.store.ListFiles(req.Prefix)}, nil
}

func (c *Coordinator) handleGetGraphData(payload []byte) (interface{}, error) {
	nodes := c.membership.Graph().Snapshot()
	out := make([]protocol.GraphNode, 0, len(nodes))
	for id, loc := range nodes {
		out = append(out, protocol.GraphNode{ID: id, Location: loc})
	}
	return protocol.GetGraphDataResponse{OK: true, Nodes: out}, nil
}

func (c *Coordinator) handleGetServerInfo(payload []byte) (interface{}, error) {
	var req protocol.GetServerInfoRequest
	if err := protocol.Decode(payload, &req); err != nil {
		return nil, err
	}
	rec, ok := c.membership.Server(req.Address)
	if !ok {
		return protocol.GetServerInfoResponse{
			OK:    false,
			Error: protocol.NewError(protocol.ErrState, "unknown storage server %s", req.Address),
		}, nil
	}
	chunkCount := 0
	c.store.mu.Lock()
	for _, entry := range c.store.files {
		for _, locs := range entry.ChunkLocations {
			for _, a := range locs {
				if a == req.Address {
					chunkCount++
					break
				}
			}
		}
	}
	c.store.mu.Unlock()
	return protocol.GetServerInfoResponse{
		OK:         true,
		ID:         rec.ID,
		Address:    rec.Address,
		Free:       rec.Free(),
		Used:       rec.UsedBytes,
		SpaceLimit: rec.SpaceLimit,
		ChunkCount: chunkCount,
	}, nil
}

func (c *Coordinator) handleGetClusterStats(payload []byte) (interface{}, error) {
	files, chunks, pending := c.store.Stats()
	c.membership.mu.RLock()
	clients := len(c.membership.clients)
	c.membership.mu.RUnlock()
	return protocol.GetClusterStatsResponse{
		OK:                 true,
		Files:              files,
		Chunks:             chunks,
		StorageServers:     len(c.membership.Servers()),
		Clients:            clients,
		PendingReplication: pending,
	}, nil
}

// scanPendingReplicationFor wakes the repair loop so chunks already listed
// in pending_replication get a pass right away, with the newly
// (re)registered server at address among the candidates, rather than
// waiting for the next scheduled tick. The pass covers every pending
// chunk, not only chunks that address once held.
func (c *Coordinator) scanPendingReplicationFor(address string) {
	_ = address
	c.repairWake.Notify()
}

func asProtocolError(err error) *protocol.Error {
	if pe, ok := err.(*protocol.Error); ok {
		return pe
	}
	return protocol.NewError(protocol.ErrState, "%s", err.Error())
}
