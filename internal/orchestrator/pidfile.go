package orchestrator

import (
	"fmt"
	"os"
	"strconv"
)

// writePIDFile atomically creates path containing the current process
// ID, refusing to overwrite an existing file (including a dangling or
// pre-existing symlink, since O_EXCL rejects any existing directory
// entry regardless of what it points to).
func writePIDFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("pid file %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fmt.Errorf("pid file %q: write: %w", path, err)
	}
	return nil
}

// removePIDFile deletes path, ignoring an already-absent file.
func removePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pid file %q: remove: %w", path, err)
	}
	return nil
}
