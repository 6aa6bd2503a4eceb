// Package persist provides the atomic-JSON-file persistence discipline
// shared by the health and cost trackers: serialize under the caller's
// lock, write to a sibling temp file, fsync, then rename onto the
// final path.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SaveJSON writes v to path atomically: marshal -> write <path>.tmp ->
// fsync -> rename. Callers must hold whatever mutex protects v.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadJSON reads and unmarshals path into v. A missing file is treated
// as "no prior state" (returns nil, leaving v untouched). A present but
// corrupt file is also treated as "no prior state", but logs a warning
// rather than failing the caller.
func LoadJSON(path string, v any, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		logger.Warn("persisted state file is corrupt; starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	return nil
}
