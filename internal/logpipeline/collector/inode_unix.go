package collector

import (
	"fmt"
	"os"
	"syscall"
)

// inodeOf returns f's inode number, used to detect log rotation (the
// path gets reopened by logrotate/similar, leaving the original inode
// behind under the old, now-unlinked name).
func inodeOf(f *os.File) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("collector: stat: %w", err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("collector: unsupported platform for inode tracking")
	}
	return stat.Ino, nil
}

// fileRotated reports whether the file currently at path has a
// different inode than the one the collector has open.
func fileRotated(path string, openInode uint64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false, fmt.Errorf("collector: unsupported platform for inode tracking")
	}
	return stat.Ino != openInode, nil
}
