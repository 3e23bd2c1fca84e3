package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"agentboard/pkg/logger"
	"agentboard/pkg/models"
)

type snapshotDoc struct {
	TakenAt string                   `json:"taken_at"`
	Agents  []models.RegisteredAgent `json:"agents"`
}

// Snapshot writes a best-effort JSON dump of the registry for crash
// diagnostics. The file is never read back as authoritative state; a
// restarted server starts empty and agents re-register. Written via a
// temp file and rename so readers never observe a torn document.
func (r *Registry) Snapshot(path string) error {
	doc := snapshotDoc{
		TakenAt: time.Now().UTC().Format(time.RFC3339),
		Agents:  r.List(ListFilter{}),
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = os.Remove(name)
		return err
	}
	tmp.Close()
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	logger.Debug("registry_snapshot_written", "path", path, "agents", len(doc.Agents))
	return nil
}
