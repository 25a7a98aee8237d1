package protocol

import "distfs/internal/model"

// Command names, one per RPC the coordinator or a storage server accepts.
// These are the literal "command" field values on the wire.
const (
	CmdRegisterStorageServer = "register_storage_server"
	CmdRegisterClient        = "register_client"
	CmdHeartbeat             = "heartbeat"
	CmdGetChunkServers       = "get_chunk_servers"
	CmdGetReplicaLocations   = "get_replica_locations"
	CmdAddFile               = "add_file"
	CmdUpdateFileMetadata    = "update_file_metadata"
	CmdUpdateChunkOffset     = "update_chunk_offset"
	CmdGetFileMetadata       = "get_file_metadata"
	CmdListFiles             = "list_files"
	CmdGetGraphData          = "get_graph_data"
	CmdGetServerInfo         = "get_server_info"
	CmdGetClusterStats       = "get_cluster_stats"

	CmdStoreChunk     = "store_chunk"
	CmdPrepareChunk   = "prepare_chunk"
	CmdCommitChunk    = "commit_chunk"
	CmdRollbackChunk  = "rollback_chunk"
	CmdRetrieveChunk  = "retrieve_chunk"
	CmdAppendChunk    = "append_chunk"
	CmdReplicateChunk = "replicate_chunk"
)

// --- Coordinator requests/responses ---

type RegisterStorageServerRequest struct {
	Command    string         `msgpack:"command"`
	ID         string         `msgpack:"id"`
	Address    string         `msgpack:"address"`
	Location   model.Location `msgpack:"location"`
	SpaceLimit int64          `msgpack:"space_limit"`
}

type RegisterClientRequest struct {
	Command  string         `msgpack:"command"`
	ID       string         `msgpack:"id"`
	Location model.Location `msgpack:"location"`
}

type HeartbeatRequest struct {
	Command   string          `msgpack:"command"`
	Address   string          `msgpack:"address"`
	UsedBytes int64           `msgpack:"used_bytes"`
	Location  *model.Location `msgpack:"location,omitempty"`
}

type GetChunkServersRequest struct {
	Command     string `msgpack:"command"`
	ClientID    string `msgpack:"client_id"`
	NeededBytes int64  `msgpack:"needed_bytes"`
}

type ServerDescriptor struct {
	ID      string `msgpack:"id"`
	Address string `msgpack:"address"`
}

type GetChunkServersResponse struct {
	OK      bool               `msgpack:"ok"`
	Error   *Error             `msgpack:"error,omitempty"`
	Servers []ServerDescriptor `msgpack:"servers"`
}

type GetReplicaLocationsRequest struct {
	Command  string   `msgpack:"command"`
	ClientID string   `msgpack:"client_id"`
	ChunkID  model.ChunkID `msgpack:"chunk_id"`
	Size     int64    `msgpack:"size"`
	Exclude  []string `msgpack:"exclude"`
}

type AddFileRequest struct {
	Command  string        `msgpack:"command"`
	Path     string        `msgpack:"path"`
	Size     int64         `msgpack:"size"`
	ChunkIDs []model.ChunkID `msgpack:"chunk_ids"`
}

type UpdateFileMetadataRequest struct {
	Command   string        `msgpack:"command"`
	Path      string        `msgpack:"path"`
	ChunkID   model.ChunkID `msgpack:"chunk_id"`
	Locations []string      `msgpack:"locations"`
	SizeDelta int64         `msgpack:"size_delta"`
}

type UpdateChunkOffsetRequest struct {
	Command   string        `msgpack:"command"`
	Path      string        `msgpack:"path"`
	ChunkID   model.ChunkID `msgpack:"chunk_id"`
	NewOffset int64         `msgpack:"new_offset"`
}

type GetFileMetadataRequest struct {
	Command string `msgpack:"command"`
	Path    string `msgpack:"path"`
}

type GetFileMetadataResponse struct {
	OK    bool             `msgpack:"ok"`
	Error *Error           `msgpack:"error,omitempty"`
	Entry *model.FileEntry `msgpack:"entry,omitempty"`
}

type ListFilesRequest struct {
	Command string `msgpack:"command"`
	Prefix  string `msgpack:"prefix,omitempty"`
}

type ListFilesResponse struct {
	OK    bool     `msgpack:"ok"`
	Paths []string `msgpack:"paths"`
}

type GetGraphDataRequest struct {
	Command string `msgpack:"command"`
}

type GraphNode struct {
	ID       string        `msgpack:"id"`
	Location model.Location `msgpack:"location"`
}

type GetGraphDataResponse struct {
	OK    bool        `msgpack:"ok"`
	Nodes []GraphNode `msgpack:"nodes"`
}

type GetServerInfoRequest struct {
	Command string `msgpack:"command"`
	Address string `msgpack:"address"`
}

type GetServerInfoResponse struct {
	OK         bool   `msgpack:"ok"`
	Error      *Error `msgpack:"error,omitempty"`
	ID         string `msgpack:"id"`
	Address    string `msgpack:"address"`
	Free       int64  `msgpack:"free"`
	Used       int64  `msgpack:"used"`
	SpaceLimit int64  `msgpack:"space_limit"`
	ChunkCount int    `msgpack:"chunk_count"`
}

type GetClusterStatsRequest struct {
	Command string `msgpack:"command"`
}

type GetClusterStatsResponse struct {
	OK                  bool `msgpack:"ok"`
	Files               int  `msgpack:"files"`
	Chunks              int  `msgpack:"chunks"`
	StorageServers      int  `msgpack:"storage_servers"`
	Clients             int  `msgpack:"clients"`
	PendingReplication  int  `msgpack:"pending_replication"`
}

// Ack is the minimal generic response for commands with no payload
// beyond success/failure (register_*, heartbeat, add_file,
// update_file_metadata, update_chunk_offset).
type Ack struct {
	OK    bool   `msgpack:"ok"`
	Error *Error `msgpack:"error,omitempty"`
}

// --- Storage-server requests/responses ---

type StoreChunkRequest struct {
	Command        string   `msgpack:"command"`
	ChunkID        model.ChunkID `msgpack:"chunk_id"`
	FilePath       string   `msgpack:"file_path"`
	Data           []byte   `msgpack:"data"`
	ReplicaServers []string `msgpack:"replica_servers"`
	ClientID       string   `msgpack:"client_id"`
}

type StoreChunkResponse struct {
	OK        bool     `msgpack:"ok"`
	Error     *Error   `msgpack:"error,omitempty"`
	Committed []string `msgpack:"committed"`
}

type PrepareChunkRequest struct {
	Command string   `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
	Data    []byte   `msgpack:"data"`
}

type CommitChunkRequest struct {
	Command string   `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
}

type RollbackChunkRequest struct {
	Command string   `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
}

type RetrieveChunkRequest struct {
	Command string   `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
	Offset  int64    `msgpack:"offset,omitempty"`
	Length  int64    `msgpack:"length,omitempty"`
}

type RetrieveChunkResponse struct {
	OK    bool   `msgpack:"ok"`
	Error *Error `msgpack:"error,omitempty"`
	Data  []byte `msgpack:"data"`
}

type AppendChunkRequest struct {
	Command string        `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
	Data    []byte        `msgpack:"data"`
	Offset  int64         `msgpack:"offset"`

	// FilePath and Primary are set by the client on the initial call and
	// cleared by the primary when it forwards this same command to each
	// replica: a replica never re-forwards and never reports the new
	// offset to the coordinator itself.
	FilePath       string   `msgpack:"file_path,omitempty"`
	ReplicaServers []string `msgpack:"replica_servers,omitempty"`
	Primary        bool     `msgpack:"primary"`
}

type AppendChunkResponse struct {
	OK        bool     `msgpack:"ok"`
	Error     *Error   `msgpack:"error,omitempty"`
	NewOffset int64    `msgpack:"new_offset"`
	Committed []string `msgpack:"committed"`
}

type ReplicateChunkRequest struct {
	Command string   `msgpack:"command"`
	ChunkID model.ChunkID `msgpack:"chunk_id"`
	Targets []string `msgpack:"targets"`
}

type ReplicateChunkResponse struct {
	OK        bool     `msgpack:"ok"`
	Error     *Error   `msgpack:"error,omitempty"`
	Committed []string `msgpack:"committed"`
}
