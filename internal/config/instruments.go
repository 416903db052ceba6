package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kjannette/stocksync/internal/models"
	"gopkg.in/yaml.v3"
)

type instrumentsFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

// LoadInstruments reads the registry seed file. Symbols must be unique and
// every entry needs both a name and a symbol.
func LoadInstruments(path string) ([]models.Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instruments %s: %w", path, err)
	}

	var f instrumentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse instruments %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Instruments))
	out := make([]models.Instrument, 0, len(f.Instruments))
	for i, in := range f.Instruments {
		in.Name = strings.TrimSpace(in.Name)
		in.Symbol = strings.TrimSpace(in.Symbol)
		if in.Name == "" || in.Symbol == "" {
			return nil, fmt.Errorf("instruments %s: entry %d needs name and symbol", path, i+1)
		}
		if seen[in.Symbol] {
			return nil, fmt.Errorf("instruments %s: duplicate symbol %s", path, in.Symbol)
		}
		seen[in.Symbol] = true
		out = append(out, in)
	}
	return out, nil
}
