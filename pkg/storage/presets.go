package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/solarledger/solarledger/pkg/types"
	"gopkg.in/yaml.v3"
)

type presetsFile struct {
	Presets []types.Preset `yaml:"presets"`
}

// LoadPresetsFile reads a YAML document of the form
//
//	presets:
//	  - id: this-month
//	    name: This month
//	    granularity: day
//	    periods: 31
//
// and validates every preset in it.
func LoadPresetsFile(path string) ([]types.Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f presetsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Presets))
	for i, p := range f.Presets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("preset %d: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("preset %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	return f.Presets, nil
}

// SeedPresets upserts presets into db.
func SeedPresets(ctx context.Context, db Database, presets []types.Preset) error {
	for _, p := range presets {
		if err := db.UpsertPreset(ctx, p); err != nil {
			return fmt.Errorf("failed to seed preset %s: %w", p.ID, err)
		}
	}
	return nil
}
