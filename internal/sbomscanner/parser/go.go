package parser

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// GoParser extracts resolved modules from a go.sum file. go.sum lists
// each module twice (once for the module zip hash, once for its
// go.mod hash); the go.mod-only lines are skipped so each module
// version is reported once.
type GoParser struct{}

func (GoParser) Ecosystem() ironcore.Ecosystem { return ironcore.EcosystemGo }

func (GoParser) Parse(data []byte) ([]Package, error) {
	seen := make(map[string]bool)
	var out []Package

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		module, version := fields[0], fields[1]
		if strings.HasSuffix(version, "/go.mod") {
			continue
		}
		key := module + "@" + version
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Package{Name: module, Version: version, Ecosystem: ironcore.EcosystemGo})
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErr(ironcore.EcosystemGo, err.Error())
	}
	return out, nil
}
