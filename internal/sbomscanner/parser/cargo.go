package parser

import (
	"github.com/BurntSushi/toml"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// CargoParser extracts resolved packages from a Cargo.lock file.
type CargoParser struct{}

func (CargoParser) Ecosystem() ironcore.Ecosystem { return ironcore.EcosystemCargo }

func (CargoParser) Parse(data []byte) ([]Package, error) {
	var doc struct {
		Package []struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, parseErr(ironcore.EcosystemCargo, err.Error())
	}

	out := make([]Package, 0, len(doc.Package))
	for _, p := range doc.Package {
		if p.Name == "" || p.Version == "" {
			continue
		}
		out = append(out, Package{Name: p.Name, Version: p.Version, Ecosystem: ironcore.EcosystemCargo})
	}
	return out, nil
}
