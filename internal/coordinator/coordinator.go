package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"distfs/internal/config"
	"distfs/internal/logging"
	"distfs/internal/notify"
	"distfs/internal/placement"
	"distfs/internal/rpc"
)

// Coordinator owns every piece of coordinator-side state: the metadata
// store, membership registry, rank cache, and the two background
// control loops. It is an owned value threaded through its handlers
// rather than ambient global state, so a test can run several in one
// process (spec §9).
type Coordinator struct {
	cfg    config.Coordinator
	logger *slog.Logger

	store      *MetadataStore
	membership *Membership
	ranks      *rankCache
	weights    placement.Weights
	pool       *rpc.Pool

	// repairWake lets reapOnce pull the next repair pass forward instead
	// of leaving newly-orphaned chunks under-replicated until the
	// control loop's next scheduled tick.
	repairWake *notify.Signal

	server    *rpc.Server
	scheduler gocron.Scheduler
	stop      chan struct{}
}

// New builds a Coordinator from cfg, loading persisted metadata from
// cfg.MetadataDir. It does not start listening or the control loops;
// call Start for that.
func New(cfg config.Coordinator, logger *slog.Logger) (*Coordinator, error) {
	logger = logging.Default(logger).With("role", "coordinator")

	store, err := NewMetadataStore(cfg.MetadataDir, logger)
	if err != nil {
		return nil, err
	}

	weights := placement.Weights{Distance: cfg.DistanceWeight, Space: cfg.SpaceWeight}
	if weights.Distance == 0 && weights.Space == 0 {
		weights = placement.DefaultWeights
	}

	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		membership: NewMembership(),
		ranks:      newRankCache(),
		weights:    weights,
		pool:       rpc.NewPool(30 * time.Second),
		repairWake: notify.NewSignal(),
		stop:       make(chan struct{}),
	}, nil
}

// Start binds the listener, registers command handlers, and starts the
// two control loops. It returns once the listener is bound; Serve runs
// in its own goroutine.
func (c *Coordinator) Start() error {
	srv, err := rpc.NewServer(
		addr(c.cfg.Host, c.cfg.Port),
		0, 0, // coordinator traffic is metadata-only; no accept-rate cap
		c.logger,
	)
	if err != nil {
		return err
	}
	c.server = srv
	c.registerHandlers()

	go func() {
		if err := c.server.Serve(); err != nil {
			c.logger.Error("coordinator listener stopped", "error", err)
		}
	}()

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	c.scheduler = sched

	interval := time.Duration(c.cfg.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(c.reapOnce),
		gocron.WithName("membership-reaper"),
	); err != nil {
		return err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(c.repairOnce),
		gocron.WithName("replication-repair"),
	); err != nil {
		return err
	}

	go c.watchRepairWake()

	sched.Start()
	c.logger.Info("coordinator started", "address", c.server.Addr().String())
	return nil
}

// Addr returns the coordinator's bound listen address. Only valid after
// Start; useful when cfg.Port is 0 and the OS picked a port.
func (c *Coordinator) Addr() string {
	return c.server.Addr().String()
}

// Stop shuts down the listener, control loops, and the outbound
// connection pool.
func (c *Coordinator) Stop() error {
	close(c.stop)
	if c.scheduler != nil {
		_ = c.scheduler.Shutdown()
	}
	c.pool.CloseAll()
	if c.server != nil {
		return c.server.Stop()
	}
	return nil
}

// watchRepairWake runs repairOnce immediately whenever reapOnce signals
// that a server was just reclaimed, rather than waiting out the rest of
// the current heartbeat interval with chunks under-replicated.
func (c *Coordinator) watchRepairWake() {
	for {
		select {
		case <-c.stop:
			return
		case <-c.repairWake.C():
			c.repairOnce()
		}
	}
}

func addr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
