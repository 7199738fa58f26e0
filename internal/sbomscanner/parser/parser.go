// Package parser extracts a flat package list from a dependency
// lockfile. Each ecosystem gets its own minimal, purpose-built parser —
// none of these try to be a full manifest resolver, only enough to
// recover (name, version) pairs for vulnerability matching.
package parser

import (
	"fmt"
	"path/filepath"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// Package is one resolved dependency extracted from a lockfile.
type Package struct {
	Name      string
	Version   string
	Ecosystem ironcore.Ecosystem
}

// Parser extracts packages from one lockfile's raw bytes.
type Parser interface {
	Ecosystem() ironcore.Ecosystem
	Parse(data []byte) ([]Package, error)
}

var byFileName = map[string]Parser{
	"Cargo.lock":        CargoParser{},
	"package-lock.json": NpmParser{},
	"go.sum":            GoParser{},
	"requirements.txt":  PipParser{},
}

// ForLockfile returns the Parser registered for the given lockfile base
// name, or (nil, false) if the name isn't a recognized lockfile.
func ForLockfile(path string) (Parser, bool) {
	p, ok := byFileName[filepath.Base(path)]
	return p, ok
}

// RecognizedNames returns every lockfile base name this package can
// parse, used by the scanner's directory-discovery pass.
func RecognizedNames() []string {
	names := make([]string, 0, len(byFileName))
	for n := range byFileName {
		names = append(names, n)
	}
	return names
}

func parseErr(eco ironcore.Ecosystem, reason string) error {
	return &ironcore.SbomError{Reason: fmt.Sprintf("%s: %s", eco, reason)}
}
