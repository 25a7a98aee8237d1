package storageserver

import "distfs/internal/protocol"

// heartbeatOnce sends one heartbeat to the coordinator (spec §4.2). A
// send failure is logged and dropped, not queued for retry: the next
// tick carries fresher used_bytes anyway, and the coordinator treats an
// unreachable server as missing only after reapThresholdMultiple misses.
func (s *StorageServer) heartbeatOnce() {
	req := protocol.HeartbeatRequest{
		Command:   protocol.CmdHeartbeat,
		Address:   s.address,
		UsedBytes: s.space.Used(),
		Location:  &s.location,
	}
	var resp protocol.Ack
	if err := s.pool.Call(s.cfg.CoordinatorAddress, req, &resp); err != nil {
		s.logger.Warn("heartbeat failed", "coordinator", s.cfg.CoordinatorAddress, "error", err)
		return
	}
	if !resp.OK {
		s.logger.Warn("heartbeat rejected", "error", resp.Error)
	}
}
