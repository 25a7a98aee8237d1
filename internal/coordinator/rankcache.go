package coordinator

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"distfs/internal/placement"
)

// rankCacheSize bounds how many clients' ranked server lists are kept
// warm at once; a cluster with more concurrent clients than this simply
// recomputes rankings more often, never incorrectly.
const rankCacheSize = 4096

// rankCache holds each client's most recently computed ranked server
// list (spec §3: "client record... cached ranked server list"). It is
// invalidated wholesale when a storage server joins, reappears or is
// reaped, rather than per-entry, since a single joining or reaped server
// can shift every client's ranking.
type rankCache struct {
	cache *lru.Cache[string, []placement.Ranked]
}

func newRankCache() *rankCache {
	c, err := lru.New[string, []placement.Ranked](rankCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// rankCacheSize never is.
		panic(err)
	}
	return &rankCache{cache: c}
}

func (r *rankCache) get(clientID string) ([]placement.Ranked, bool) {
	return r.cache.Get(clientID)
}

func (r *rankCache) put(clientID string, ranked []placement.Ranked) {
	r.cache.Add(clientID, ranked)
}

// invalidateAll drops every cached ranking; called whenever a storage
// server registers, heartbeats while the coordinator holds no record for
// it, or is reaped.
func (r *rankCache) invalidateAll() {
	r.cache.Purge()
}
