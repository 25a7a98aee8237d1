package client

import (
	"log/slog"
	"time"

	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/model"
	"distfs/internal/protocol"
	"distfs/internal/rpc"
)

// Client is one client-library instance: a connection pool to the
// coordinator and every storage server it has talked to, its own
// location (for placement ranking), and the configured chunk size.
type Client struct {
	cfg    config.Client
	id     string
	loc    model.Location
	logger *slog.Logger
	pool   *rpc.Pool
}

// New builds a Client and registers it with the coordinator.
func New(cfg config.Client, id string, loc model.Location, logger *slog.Logger) (*Client, error) {
	logger = logging.Default(logger).With("role", "client")
	c := &Client{
		cfg:    cfg,
		id:     id,
		loc:    loc,
		logger: logger,
		pool:   rpc.NewPool(30 * time.Second),
	}
	if err := c.register(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) register() error {
	req := protocol.RegisterClientRequest{Command: protocol.CmdRegisterClient, ID: c.id, Location: c.loc}
	var resp protocol.Ack
	return c.pool.Call(c.cfg.CoordinatorAddress, req, &resp)
}

// Close releases every pooled connection.
func (c *Client) Close() { c.pool.CloseAll() }

func (c *Client) getChunkServers(neededBytes int64) ([]protocol.ServerDescriptor, error) {
	req := protocol.GetChunkServersRequest{Command: protocol.CmdGetChunkServers, ClientID: c.id, NeededBytes: neededBytes}
	var resp protocol.GetChunkServersResponse
	if err := c.pool.Call(c.cfg.CoordinatorAddress, req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, resp.Error
	}
	return resp.Servers, nil
}

func (c *Client) getFileMetadata(path string) (*model.FileEntry, error) {
	req := protocol.GetFileMetadataRequest{Command: protocol.CmdGetFileMetadata, Path: path}
	var resp protocol.GetFileMetadataResponse
	if err := c.pool.Call(c.cfg.CoordinatorAddress, req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, resp.Error
	}
	return resp.Entry, nil
}

func (c *Client) updateFileMetadata(path string, chunkID model.ChunkID, locations []string, sizeDelta int64) error {
	req := protocol.UpdateFileMetadataRequest{
		Command:   protocol.CmdUpdateFileMetadata,
		Path:      path,
		ChunkID:   chunkID,
		Locations: locations,
		SizeDelta: sizeDelta,
	}
	var resp protocol.Ack
	if err := c.pool.Call(c.cfg.CoordinatorAddress, req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return resp.Error
	}
	return nil
}

func (c *Client) addFile(path string, size int64, chunkIDs []model.ChunkID) error {
	req := protocol.AddFileRequest{Command: protocol.CmdAddFile, Path: path, Size: size, ChunkIDs: chunkIDs}
	var resp protocol.Ack
	if err := c.pool.Call(c.cfg.CoordinatorAddress, req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return resp.Error
	}
	return nil
}
