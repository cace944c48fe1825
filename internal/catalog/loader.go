package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML catalog. Sections left out of the file keep the
// values from Default.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// trialCounts tells an explicit 0 apart from a missing key
type trialCounts struct {
	ComparisonTrials *int `yaml:"comparison_trials"`
	RetestTrials     *int `yaml:"retest_trials"`
}

// Parse decodes a YAML catalog and validates it
func Parse(data []byte) (*Catalog, error) {
	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	var counts trialCounts
	if err := yaml.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cat := Default()
	if len(file.Categories) > 0 {
		cat.Categories = file.Categories
	}
	if len(file.Resolutions) > 0 {
		cat.Resolutions = file.Resolutions
	}
	if len(file.GapPairs) > 0 {
		cat.GapPairs = file.GapPairs
	}
	if counts.ComparisonTrials != nil {
		cat.ComparisonTrials = *counts.ComparisonTrials
	}
	if counts.RetestTrials != nil {
		cat.RetestTrials = *counts.RetestTrials
	}
	if file.ExpectedAccuracy != nil {
		cat.ExpectedAccuracy = file.ExpectedAccuracy
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}

	slog.Info("catalog loaded",
		"categories", len(cat.Categories),
		"images", len(cat.Images()),
		"tiers", len(cat.Resolutions),
		"gap_pairs", len(cat.GapPairs),
	)
	return cat, nil
}

// Load returns the catalog at path, or the default catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		cat := Default()
		return cat, cat.Validate()
	}
	return LoadFile(path)
}
