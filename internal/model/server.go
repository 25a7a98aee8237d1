package model

import (
	"math"
	"time"
)

// Location is a 2-D coordinate used for both storage servers and clients;
// the placement engine scores purely on Euclidean distance in this space.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two locations.
func (l Location) Distance(o Location) float64 {
	dx := l.X - o.X
	dy := l.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// ServerRecord is the coordinator's view of one storage server's identity,
// liveness, location, and capacity. It is purely in-memory: restarts
// rediscover servers via register_storage_server / heartbeat, never from
// persisted metadata (spec §4.1 persistence note).
type ServerRecord struct {
	ID         string
	Address    string
	Location   Location
	SpaceLimit int64
	UsedBytes  int64
	LastSeen   time.Time
}

// Free returns the server's remaining capacity; never negative.
func (s *ServerRecord) Free() int64 {
	f := s.SpaceLimit - s.UsedBytes
	if f < 0 {
		return 0
	}
	return f
}

// ClientRecord is the coordinator's view of one client: its location (for
// ranking) and last heartbeat. The cached ranked server list is held
// separately by the rank cache so that eviction policy lives in one place.
type ClientRecord struct {
	ID       string
	Location Location
	LastSeen time.Time
}
