package sbomscanner

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/sbomscanner/parser"
)

// maxLockfileBytes caps how large a single lockfile this scanner will
// read. A larger file is skipped and logged rather than rejected
// outright, so one oversized or adversarial lockfile doesn't stop the
// scan of every other directory.
const maxLockfileBytes = 32 << 20 // 32 MiB

// discoverLockfiles lists the lockfiles directly inside dir — one
// level, no recursion into subdirectories, matching the scope of a
// single scan target. Returns full paths in directory-listing order.
func discoverLockfiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sbomscanner: read dir %s: %w", dir, err)
	}

	recognized := make(map[string]bool, len(parser.RecognizedNames()))
	for _, n := range parser.RecognizedNames() {
		recognized[n] = true
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if recognized[e.Name()] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// scanDirectory discovers and parses every recognized lockfile directly
// inside dir, returning the combined package list. Used by both the
// manual (CLI-triggered) scan path and the periodic background scan —
// the one codepath keeps their behavior identical.
func scanDirectory(logger *zap.Logger, dir string) ([]parser.Package, error) {
	lockfiles, err := discoverLockfiles(dir)
	if err != nil {
		return nil, err
	}

	var all []parser.Package
	for _, path := range lockfiles {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("sbom scan: stat failed, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		if info.Size() > maxLockfileBytes {
			logger.Warn("sbom scan: lockfile exceeds size cap, skipping", zap.String("path", path), zap.Int64("size", info.Size()))
			continue
		}

		p, ok := parser.ForLockfile(path)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("sbom scan: read failed, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		pkgs, err := p.Parse(data)
		if err != nil {
			logger.Warn("sbom scan: parse failed, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		all = append(all, pkgs...)
	}
	return all, nil
}
