package storageserver

import (
	"log/slog"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"distfs/internal/logging"
)

// SpaceAccountant caches the storage server's used-bytes figure so
// store_chunk/prepare_chunk don't re-walk the data directory on every
// request (spec §4.2: "a cached value is maintained across operations
// to avoid rewalking on every request"). The cache is invalidated by an
// fsnotify watcher on the data directory rather than a polling timer,
// so a commit/rollback from another process (or an admin deleting a
// chunk by hand) is picked up promptly.
type SpaceAccountant struct {
	store   *ChunkStore
	limit   int64
	used    atomic.Int64
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewSpaceAccountant performs an initial directory walk and starts
// watching for changes. Callers should call Close on shutdown.
func NewSpaceAccountant(store *ChunkStore, limitBytes int64, logger *slog.Logger) (*SpaceAccountant, error) {
	logger = logging.Default(logger)
	used, err := store.UsedBytes()
	if err != nil {
		return nil, err
	}

	a := &SpaceAccountant{store: store, limit: limitBytes, logger: logger, stop: make(chan struct{})}
	a.used.Store(used)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Without the watcher, used-bytes stays at this initial walk's
		// figure (plus any Note deltas) until the server restarts.
		logger.Warn("space watcher unavailable, used_bytes will not auto-refresh", "error", err)
		return a, nil
	}
	if err := watcher.Add(store.DataDir()); err != nil {
		logger.Warn("space watcher: add data dir failed", "error", err)
		_ = watcher.Close()
		return a, nil
	}
	a.watcher = watcher
	go a.watchLoop()
	return a, nil
}

func (a *SpaceAccountant) watchLoop() {
	for {
		select {
		case <-a.stop:
			return
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if used, err := a.store.UsedBytes(); err == nil {
				a.used.Store(used)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("space watcher error", "error", err)
		}
	}
}

// Used returns the cached used-bytes figure.
func (a *SpaceAccountant) Used() int64 { return a.used.Load() }

// Free returns the cached free-bytes figure; never negative.
func (a *SpaceAccountant) Free() int64 {
	f := a.limit - a.used.Load()
	if f < 0 {
		return 0
	}
	return f
}

// Note records a delta directly (e.g. immediately after a local commit),
// so a request on the same server doesn't have to wait for the next
// fsnotify event to see its own write reflected.
func (a *SpaceAccountant) Note(delta int64) {
	a.used.Add(delta)
}

// Close stops the watcher goroutine.
func (a *SpaceAccountant) Close() error {
	close(a.stop)
	if a.watcher != nil {
		return a.watcher.Close()
	}
	return nil
}
