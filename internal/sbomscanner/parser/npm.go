package parser

import (
	"encoding/json"
	"strings"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// NpmParser extracts resolved packages from an npm package-lock.json
// file. Supports the v2/v3 "packages" layout (keyed by node_modules
// path) and falls back to the legacy v1 "dependencies" layout when
// "packages" is absent.
type NpmParser struct{}

func (NpmParser) Ecosystem() ironcore.Ecosystem { return ironcore.EcosystemNpm }

func (NpmParser) Parse(data []byte) ([]Package, error) {
	var doc struct {
		Packages map[string]struct {
			Version string `json:"version"`
		} `json:"packages"`
		Dependencies map[string]struct {
			Version string `json:"version"`
		} `json:"dependencies"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, parseErr(ironcore.EcosystemNpm, err.Error())
	}

	var out []Package
	if len(doc.Packages) > 0 {
		for path, p := range doc.Packages {
			name := npmNameFromPath(path)
			if name == "" || p.Version == "" {
				continue
			}
			out = append(out, Package{Name: name, Version: p.Version, Ecosystem: ironcore.EcosystemNpm})
		}
		return out, nil
	}
	for name, p := range doc.Dependencies {
		if name == "" || p.Version == "" {
			continue
		}
		out = append(out, Package{Name: name, Version: p.Version, Ecosystem: ironcore.EcosystemNpm})
	}
	return out, nil
}

// npmNameFromPath extracts a package name from a "packages" key, which
// is a node_modules-relative path such as "node_modules/foo" or
// "node_modules/@scope/bar" or "node_modules/foo/node_modules/baz" for
// a nested dependency. Returns the last path segment (or scoped pair).
func npmNameFromPath(path string) string {
	path = strings.TrimPrefix(path, "node_modules/")
	if path == "" {
		return "" // the root package entry itself
	}
	idx := strings.LastIndex(path, "node_modules/")
	if idx >= 0 {
		path = path[idx+len("node_modules/"):]
	}
	return path
}
