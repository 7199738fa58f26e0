// Package collector reads raw log lines from a source and hands them,
// with a format hint, to the pipeline. Only a file-tailing collector is
// implemented — the one source type the spec actually requires.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dongwonkwak/ironpost/internal/logpipeline/parser"
)

// Line is one raw collected log line plus the format hint its
// collector already knows (it's the collector's job to know what shape
// its source produces; the parser never guesses).
type Line struct {
	Source string
	Format parser.Format
	Raw    []byte
}

// Collector reads from one configured source until ctx is canceled,
// sending each line it reads to out. Collector implementations should
// never block indefinitely inside Run once ctx is done.
type Collector interface {
	Run(ctx context.Context, out chan<- Line) error
}

// FileTail collects lines appended to a file, polling for new content
// and re-opening the file when it detects rotation (the underlying
// file's inode changes out from under the open handle).
type FileTail struct {
	Path       string
	Format     parser.Format
	PollPeriod time.Duration
}

// Run tails the file until ctx is canceled. A missing file is retried
// on the same poll interval rather than treated as fatal, since a log
// source commonly doesn't exist yet at daemon startup.
func (f *FileTail) Run(ctx context.Context, out chan<- Line) error {
	period := f.PollPeriod
	if period <= 0 {
		period = time.Second
	}

	var (
		file   *os.File
		reader *bufio.Reader
		inode  uint64
	)
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if file == nil {
				opened, currentInode, err := openAtEnd(f.Path)
				if err != nil {
					continue
				}
				file, inode = opened, currentInode
				reader = bufio.NewReader(file)
			}

			if rotated, err := fileRotated(f.Path, inode); err == nil && rotated {
				_ = file.Close()
				file = nil
				continue
			}

			for {
				line, err := reader.ReadBytes('\n')
				if len(line) > 0 {
					raw := make([]byte, len(line))
					copy(raw, line)
					select {
					case out <- Line{Source: f.Path, Format: f.Format, Raw: raw}:
					case <-ctx.Done():
						return nil
					}
				}
				if err != nil {
					break // caught up to EOF, wait for the next tick
				}
			}
		}
	}
}

func openAtEnd(path string) (*os.File, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("collector: open %s: %w", path, err)
	}
	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("collector: seek %s: %w", path, err)
	}
	ino, err := inodeOf(file)
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}
	return file, ino, nil
}
