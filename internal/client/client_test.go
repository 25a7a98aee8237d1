package client_test

import (
	"bytes"
	"os"
	"testing"

	"distfs/internal/client"
	"distfs/internal/config"
	"distfs/internal/coordinator"
	"distfs/internal/model"
	"distfs/internal/storageserver"
)

// harness wires one coordinator and n storage servers in-process and
// returns a ready client, matching spec §8's scenario style (start a
// small real cluster, drive it through the client library, assert on
// observable outcomes).
type harness struct {
	coord   *coordinator.Coordinator
	servers []*storageserver.StorageServer
	client  *client.Client
}

func newHarness(t *testing.T, chunkSize int64, replicationFactor, numServers int) *harness {
	t.Helper()

	coordCfg := config.DefaultCoordinator()
	coordCfg.Host = "127.0.0.1"
	coordCfg.Port = 0
	coordCfg.ChunkSize = chunkSize
	coordCfg.ReplicationFactor = replicationFactor
	coordCfg.MetadataDir = t.TempDir()
	coordCfg.HeartbeatIntervalSeconds = 1

	coord, err := coordinator.New(coordCfg, nil)
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	if err := coord.Start(); err != nil {
		t.Fatalf("coordinator.Start: %v", err)
	}
	t.Cleanup(func() { _ = coord.Stop() })

	var servers []*storageserver.StorageServer
	for i := 0; i < numServers; i++ {
		ssCfg := config.DefaultStorageServer()
		ssCfg.BasePort = 0
		ssCfg.DataDir = t.TempDir()
		ssCfg.HeartbeatIntervalSecs = 1
		ssCfg.SpaceLimitMB = 64
		ssCfg.CoordinatorAddress = coord.Addr()

		ss, err := storageserver.New(ssCfg, "", model.Location{X: float64(i), Y: 0}, nil)
		if err != nil {
			t.Fatalf("storageserver.New: %v", err)
		}
		if err := ss.Start(); err != nil {
			t.Fatalf("storageserver.Start: %v", err)
		}
		t.Cleanup(func() { _ = ss.Stop() })
		servers = append(servers, ss)
	}

	clientCfg := config.DefaultClient()
	clientCfg.UploadChunkSize = chunkSize
	clientCfg.CoordinatorAddress = coord.Addr()

	c, err := client.New(clientCfg, "test-client", model.Location{}, nil)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(c.Close)

	return &harness{coord: coord, servers: servers, client: c}
}

func TestClient_UploadDownloadRoundTrip(t *testing.T) {
	h := newHarness(t, 1024, 1, 1)

	local := t.TempDir() + "/in.txt"
	out := t.TempDir() + "/out.txt"
	data := bytes.Repeat([]byte{0xAB}, 2500) // spans three chunks at chunk_size 1024

	if err := os.WriteFile(local, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := h.client.Upload(local, "/greeting.txt"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := h.client.Download("/greeting.txt", out); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(data))
	}
}

// TestClient_AppendAcrossChunkBoundary reproduces spec scenario 5's exact
// numbers: a 1000-byte file at chunk_size 1024, appended with 100 bytes.
// The first 24 bytes top off the tail chunk (offset 1000 -> 1024); the
// remaining 76 bytes become a new chunk at offset 0 -> 76.
func TestClient_AppendAcrossChunkBoundary(t *testing.T) {
	h := newHarness(t, 1024, 1, 1)

	local := t.TempDir() + "/base.bin"
	appendLocal := t.TempDir() + "/tail.bin"
	out := t.TempDir() + "/final.bin"

	base := bytes.Repeat([]byte{0x01}, 1000)
	tail := bytes.Repeat([]byte{0x02}, 100)

	if err := os.WriteFile(local, base, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(appendLocal, tail, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := h.client.Upload(local, "/journal.bin"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	tailData, err := os.ReadFile(appendLocal)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.client.Append("/journal.bin", tailData); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := h.client.Download("/journal.bin", out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	want := append(append([]byte{}, base...), tail...)
	if !bytes.Equal(got, want) {
		t.Fatalf("append result mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}
