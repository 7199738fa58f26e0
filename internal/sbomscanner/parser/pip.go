package parser

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// PipParser extracts pinned packages from a requirements.txt-style
// file: "name==version" lines, ignoring comments, blank lines, and
// unpinned or option lines (those carry no resolvable version so
// they're outside this parser's scope).
type PipParser struct{}

func (PipParser) Ecosystem() ironcore.Ecosystem { return ironcore.EcosystemPip }

func (PipParser) Parse(data []byte) ([]Package, error) {
	var out []Package

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.Index(line, " ;"); idx >= 0 {
			line = line[:idx] // strip environment markers
		}
		parts := strings.SplitN(line, "==", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if name == "" || version == "" {
			continue
		}
		out = append(out, Package{Name: name, Version: version, Ecosystem: ironcore.EcosystemPip})
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErr(ironcore.EcosystemPip, err.Error())
	}
	return out, nil
}
