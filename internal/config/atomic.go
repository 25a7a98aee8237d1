package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteJSON marshals v and writes it to path via a temp-file-plus-
// rename so a crash mid-write never leaves a half-written document —
// the same pattern spec.md §5 mandates for metadata.json, generalized
// here so the coordinator's metadata store and a storage server's
// server_info.json share one implementation.
func AtomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// ReadJSON loads and unmarshals path into dst. A missing file returns
// os.ErrNotExist unwrapped so callers can distinguish "never written yet"
// from "corrupt" (spec §7: integrity errors on startup are fatal, a
// missing file is not).
func ReadJSON(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: malformed document at %s: %w", path, err)
	}
	return nil
}
