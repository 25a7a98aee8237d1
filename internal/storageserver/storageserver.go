package storageserver

import (
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/model"
	"distfs/internal/protocol"
	"distfs/internal/rpc"
)

// identity is the small persisted document at server_info.json (spec
// §6) letting a restarted storage server keep the same id and port
// rather than re-registering under a fresh identity every time.
type identity struct {
	ID   string `json:"id"`
	Port int    `json:"port"`
}

// StorageServer is one chunk-holding process: the composition root for
// its chunk store, space accountant, 2PC committer, RPC server, and
// heartbeat loop (spec §4.2).
type StorageServer struct {
	id       string
	address  string
	location model.Location
	cfg      config.StorageServer
	logger   *slog.Logger

	chunkStore *ChunkStore
	space      *SpaceAccountant
	committer  *Committer
	pool       *rpc.Pool

	server    *rpc.Server
	scheduler gocron.Scheduler
}

// New constructs a StorageServer from cfg. id, if empty, is loaded from
// a prior server_info.json or minted fresh. loc is this server's
// placement coordinate.
func New(cfg config.StorageServer, id string, loc model.Location, logger *slog.Logger) (*StorageServer, error) {
	logger = logging.Default(logger).With("role", "storageserver")

	chunkStore, err := NewChunkStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	infoPath := filepath.Join(cfg.DataDir, "server_info.json")
	var info identity
	if err := config.ReadJSON(infoPath, &info); err == nil {
		if id == "" {
			id = info.ID
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	limitBytes := cfg.SpaceLimitMB << 20
	space, err := NewSpaceAccountant(chunkStore, limitBytes, logger)
	if err != nil {
		return nil, err
	}

	return &StorageServer{
		id:         id,
		location:   loc,
		cfg:        cfg,
		logger:     logger,
		chunkStore: chunkStore,
		space:      space,
		pool:       rpc.NewPool(30 * time.Second),
	}, nil
}

// Start binds the listener (auto-assigning a port at or above the port
// recorded in server_info.json, or cfg.BasePort when none is recorded),
// persists identity, registers with the coordinator, and starts the
// heartbeat loop.
func (s *StorageServer) Start() error {
	infoPath := filepath.Join(s.cfg.DataDir, "server_info.json")
	basePort := s.cfg.BasePort
	var prior identity
	if err := config.ReadJSON(infoPath, &prior); err == nil && prior.Port > 0 {
		basePort = prior.Port
	}
	srv, err := bindAutoPort("0.0.0.0", basePort)
	if err != nil {
		return err
	}
	s.server = srv
	s.address = srv.Addr().String()
	s.committer = NewCommitter(s.address, s.chunkStore, s.space, s.pool)
	s.registerHandlers()

	port, err := portOf(s.address)
	if err != nil {
		return err
	}
	if err := config.AtomicWriteJSON(infoPath, identity{ID: s.id, Port: port}); err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(); err != nil {
			s.logger.Error("storage server listener stopped", "error", err)
		}
	}()

	if err := s.registerWithCoordinator(); err != nil {
		s.logger.Warn("initial registration with coordinator failed, will retry on next heartbeat", "error", err)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = sched

	interval := time.Duration(s.cfg.HeartbeatIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.heartbeatOnce),
		gocron.WithName("heartbeat"),
	); err != nil {
		return err
	}
	sched.Start()

	s.logger.Info("storage server started", "id", s.id, "address", s.address)
	return nil
}

// Addr returns the server's bound listen address. Only valid after Start.
func (s *StorageServer) Addr() string { return s.address }

func (s *StorageServer) registerWithCoordinator() error {
	req := protocol.RegisterStorageServerRequest{
		Command:    protocol.CmdRegisterStorageServer,
		ID:         s.id,
		Address:    s.address,
		Location:   s.location,
		SpaceLimit: s.cfg.SpaceLimitMB << 20,
	}
	var resp protocol.Ack
	return s.pool.Call(s.cfg.CoordinatorAddress, req, &resp)
}

// Stop shuts down the heartbeat loop, listener, and space watcher.
func (s *StorageServer) Stop() error {
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
	}
	_ = s.space.Close()
	s.pool.CloseAll()
	if s.server != nil {
		return s.server.Stop()
	}
	return nil
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("storageserver: parse port from %q: %w", addr, err)
	}
	return strconv.Atoi(portStr)
}
