package storageserver

import (
	"fmt"

	"distfs/internal/rpc"
)

// maxPortScan bounds how many ports past base_port a storage server will
// try before giving up (spec §6: base_port is "starting port for
// auto-assign").
const maxPortScan = 1000

// bindAutoPort tries base_port, base_port+1, ... until one binds, so
// several storage servers can share a host without colliding (spec §4.2:
// "listens on an auto-assigned port").
func bindAutoPort(host string, basePort int) (*rpc.Server, error) {
	var lastErr error
	for i := 0; i < maxPortScan; i++ {
		port := basePort + i
		addr := fmt.Sprintf("%s:%d", host, port)
		srv, err := rpc.NewServer(addr, 0, 0, nil)
		if err == nil {
			return srv, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("storageserver: no free port found in [%d, %d]: %w", basePort, basePort+maxPortScan-1, lastErr)
}
