package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the canonical runtime directory layout resolved by
// EnsureStateDirs. Other packages read these instead of rebuilding paths.
type Paths struct {
	Store     string
	State     string
	Audit     string
	Sweep     string
	Telemetry string
	Crash     string
	Abort     string
	Tmp       string
}

var PathsVar Paths

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// the provided DB path. It verifies paths are not symlinks and have
// restrictive permissions, and that they are writable by the process.
func EnsureStateDirs(dbPath string) error {
	p := Paths{
		Store: filepath.Join(dbPath, "store"),
		State: filepath.Join(dbPath, "state"),
	}
	p.Audit = filepath.Join(p.State, "audit")
	p.Sweep = filepath.Join(p.State, "sweep")
	p.Telemetry = filepath.Join(p.State, "telemetry")
	p.Crash = filepath.Join(p.State, "crash")
	p.Abort = filepath.Join(p.State, "abort")
	p.Tmp = filepath.Join(p.State, "tmp")

	paths := []string{p.Store, p.Audit, p.Sweep, p.Telemetry, p.Crash, p.Abort, p.Tmp}

	for _, d := range paths {
		// ensure parent exists
		if err := os.MkdirAll(filepath.Dir(d), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", d, err)
		}

		// if path exists, reject symlinks and non-directories
		if fi, err := os.Lstat(d); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", d)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", d)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", d)
			}
		}

		// create directory if missing
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", d, err)
		}

		// double-check no symlink after creation
		if fi2, err := os.Lstat(d); err == nil {
			if fi2.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", d)
			}
			if fi2.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode after creation: %s", d)
			}
		}

		// writability check: create and remove a temp file
		tmp, err := os.CreateTemp(d, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", d, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	PathsVar = p
	return nil
}
