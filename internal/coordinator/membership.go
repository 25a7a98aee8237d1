package coordinator

import (
	"sync"
	"time"

	"distfs/internal/model"
)

// Membership tracks live storage-server and client records under one
// lock, separate from the metadata lock (spec §5: "heartbeat updates use
// a server-table lock independent of the metadata lock to avoid
// blocking client operations behind membership scans"). It also owns
// the location graph both record types are registered into.
type Membership struct {
	mu      sync.RWMutex
	servers map[string]*model.ServerRecord // keyed by address
	clients map[string]*model.ClientRecord // keyed by client id
	graph   *model.Graph
}

// NewMembership returns an empty registry.
func NewMembership() *Membership {
	return &Membership{
		servers: make(map[string]*model.ServerRecord),
		clients: make(map[string]*model.ClientRecord),
		graph:   model.NewGraph(),
	}
}

// RegisterServer creates or refreshes a storage-server record. Idempotent
// per spec §4.1: calling it again for the same address just updates
// location/space_limit and bumps last_seen.
func (m *Membership) RegisterServer(id, address string, loc model.Location, spaceLimit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.servers[address]
	if !ok {
		rec = &model.ServerRecord{ID: id, Address: address}
		m.servers[address] = rec
	}
	rec.ID = id
	rec.Location = loc
	rec.SpaceLimit = spaceLimit
	rec.LastSeen = time.Now()
	m.graph.Upsert(address, loc)
}

// RegisterClient creates or refreshes a client record.
func (m *Membership) RegisterClient(id string, loc model.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.clients[id]
	if !ok {
		rec = &model.ClientRecord{ID: id}
		m.clients[id] = rec
	}
	rec.Location = loc
	rec.LastSeen = time.Now()
	m.graph.Upsert(id, loc)
}

// HeartbeatServer refreshes last_seen/used_bytes (and optionally
// location) for address, re-registering it from scratch if the
// coordinator had already reaped it (spec §4.2: "the heartbeat path
// implicitly re-registers if unknown").
func (m *Membership) HeartbeatServer(address string, usedBytes int64, loc *model.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.servers[address]
	if !ok {
		rec = &model.ServerRecord{ID: address, Address: address}
		m.servers[address] = rec
	}
	rec.UsedBytes = usedBytes
	rec.LastSeen = time.Now()
	if loc != nil {
		rec.Location = *loc
		m.graph.Upsert(address, *loc)
	}
}

// HeartbeatClient refreshes last_seen for a client id.
func (m *Membership) HeartbeatClient(id string, loc *model.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.clients[id]
	if !ok {
		rec = &model.ClientRecord{ID: id}
		m.clients[id] = rec
	}
	rec.LastSeen = time.Now()
	if loc != nil {
		rec.Location = *loc
		m.graph.Upsert(id, *loc)
	}
}

// Servers returns a defensive copy of every live server record.
func (m *Membership) Servers() []*model.ServerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.ServerRecord, 0, len(m.servers))
	for _, rec := range m.servers {
		cp := *rec
		out = append(out, &cp)
	}
	return out
}

// Server returns a copy of the record for address, if live.
func (m *Membership) Server(address string) (*model.ServerRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.servers[address]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Client returns a copy of the record for id, if live.
func (m *Membership) Client(id string) (*model.ClientRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.clients[id]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Graph exposes the shared location graph for get_graph_data.
func (m *Membership) Graph() *model.Graph { return m.graph }

// Expired returns the addresses of every storage server whose last
// heartbeat is older than threshold, for the membership reaper.
func (m *Membership) Expired(threshold time.Duration) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []string
	for addr, rec := range m.servers {
		if now.Sub(rec.LastSeen) > threshold {
			out = append(out, addr)
		}
	}
	return out
}

// Reap removes address from the registry and the location graph.
func (m *Membership) Reap(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.servers, address)
	m.graph.Remove(address)
}
