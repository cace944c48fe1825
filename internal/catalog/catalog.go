package catalog

import (
	"errors"
	"fmt"

	"github.com/keen-eye/survey-engine/internal/models"
)

// ErrInvalidCatalog is returned for any catalog misconfiguration
var ErrInvalidCatalog = errors.New("invalid catalog")

// CategorySpec describes one image category and how many images it holds
type CategorySpec struct {
	Name   models.Category `yaml:"name" json:"name"`
	Label  string          `yaml:"label" json:"label"`
	Images int             `yaml:"images" json:"images"`
}

// ResolutionSpec describes one resolution tier
type ResolutionSpec struct {
	Name    models.Resolution `yaml:"name" json:"name"`
	Width   int               `yaml:"width" json:"width"`
	Height  int               `yaml:"height" json:"height"`
	Quality int               `yaml:"quality" json:"quality"`
}

// GapPair is an ordered pair of tiers to compare, Lower strictly below Higher
type GapPair struct {
	Lower  models.Resolution `yaml:"lower" json:"lower"`
	Higher models.Resolution `yaml:"higher" json:"higher"`
}

// Catalog is the static configuration the question generator works from
type Catalog struct {
	Categories       []CategorySpec     `yaml:"categories"`
	Resolutions      []ResolutionSpec   `yaml:"resolutions"`
	GapPairs         []GapPair          `yaml:"gap_pairs"`
	ComparisonTrials int                `yaml:"comparison_trials"`
	RetestTrials     int                `yaml:"retest_trials"`
	ExpectedAccuracy map[string]float64 `yaml:"expected_accuracy"`
}

// Default returns the stock catalog: 20 images over three categories, five
// tiers, nine gap pairs ordered from adjacent to three-step, 22 comparisons
// and 3 retests.
func Default() *Catalog {
	return &Catalog{
		Categories: []CategorySpec{
			{Name: models.CategoryProduct, Label: "Product", Images: 7},
			{Name: models.CategoryHuman, Label: "Human", Images: 7},
			{Name: models.CategoryNature, Label: "Nature", Images: 6},
		},
		Resolutions: []ResolutionSpec{
			{Name: models.Res480p, Width: 854, Height: 480, Quality: 60},
			{Name: models.Res720p, Width: 1280, Height: 720, Quality: 70},
			{Name: models.Res1080p, Width: 1920, Height: 1080, Quality: 80},
			{Name: models.Res1440p, Width: 2560, Height: 1440, Quality: 85},
			{Name: models.Res4K, Width: 3840, Height: 2160, Quality: 90},
		},
		GapPairs: []GapPair{
			{models.Res480p, models.Res720p},
			{models.Res720p, models.Res1080p},
			{models.Res1080p, models.Res1440p},
			{models.Res1440p, models.Res4K},
			{models.Res480p, models.Res1080p},
			{models.Res720p, models.Res1440p},
			{models.Res1080p, models.Res4K},
			{models.Res480p, models.Res1440p},
			{models.Res720p, models.Res4K},
		},
		ComparisonTrials: 22,
		RetestTrials:     3,
		ExpectedAccuracy: map[string]float64{
			"480p-720p":   0.90,
			"720p-1080p":  0.75,
			"1080p-1440p": 0.65,
			"1440p-4k":    0.55,
			"480p-1080p":  0.95,
			"720p-1440p":  0.85,
			"1080p-4k":    0.80,
		},
	}
}

// Validate checks the catalog for configuration errors
func (c *Catalog) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", ErrInvalidCatalog)
	}

	seenCat := make(map[models.Category]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("%w: category name is required", ErrInvalidCatalog)
		}
		if seenCat[cat.Name] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.Name)
		}
		seenCat[cat.Name] = true
		if cat.Images <= 0 {
			return fmt.Errorf("%w: category %q must have at least one image", ErrInvalidCatalog, cat.Name)
		}
	}

	if len(c.Resolutions) < 2 {
		return fmt.Errorf("%w: at least two resolution tiers are required", ErrInvalidCatalog)
	}

	seenRes := make(map[models.Resolution]bool, len(c.Resolutions))
	for _, res := range c.Resolutions {
		if res.Name == "" {
			return fmt.Errorf("%w: resolution name is required", ErrInvalidCatalog)
		}
		if seenRes[res.Name] {
			return fmt.Errorf("%w: duplicate resolution %q", ErrInvalidCatalog, res.Name)
		}
		seenRes[res.Name] = true
	}

	if len(c.GapPairs) == 0 {
		return fmt.Errorf("%w: at least one gap pair is required", ErrInvalidCatalog)
	}

	prev := 0
	for i, p := range c.GapPairs {
		lo, okLo := c.Rank(p.Lower)
		hi, okHi := c.Rank(p.Higher)
		if !okLo || !okHi {
			return fmt.Errorf("%w: gap pair %d references unknown tier (%s, %s)", ErrInvalidCatalog, i, p.Lower, p.Higher)
		}
		if lo >= hi {
			return fmt.Errorf("%w: gap pair %d lower tier %s is not below %s", ErrInvalidCatalog, i, p.Lower, p.Higher)
		}
		d := hi - lo
		if d > 3 {
			return fmt.Errorf("%w: gap pair %d spans %d tiers, max is 3", ErrInvalidCatalog, i, d)
		}
		// pairs are grouped adjacent, then two-step, then three-step
		if d < prev {
			return fmt.Errorf("%w: gap pair %d spans %d tiers after a %d-tier pair; order pairs by gap",
				ErrInvalidCatalog, i, d, prev)
		}
		prev = d
	}

	if c.ComparisonTrials <= 0 {
		return fmt.Errorf("%w: comparison_trials must be positive", ErrInvalidCatalog)
	}
	if c.RetestTrials < 0 {
		return fmt.Errorf("%w: retest_trials must not be negative", ErrInvalidCatalog)
	}
	if c.RetestTrials > c.ComparisonTrials {
		return fmt.Errorf("%w: retest_trials (%d) exceeds comparison_trials (%d)",
			ErrInvalidCatalog, c.RetestTrials, c.ComparisonTrials)
	}

	return nil
}

// Images enumerates every catalog image in fixed category order
func (c *Catalog) Images() []models.CatalogImage {
	var images []models.CatalogImage
	for _, cat := range c.Categories {
		for i := 1; i <= cat.Images; i++ {
			images = append(images, models.CatalogImage{
				Category: cat.Name,
				ImageID:  fmt.Sprintf("%s-%02d", cat.Name, i),
			})
		}
	}
	return images
}

// Tiers returns the tier labels low to high
func (c *Catalog) Tiers() []models.Resolution {
	tiers := make([]models.Resolution, len(c.Resolutions))
	for i, r := range c.Resolutions {
		tiers[i] = r.Name
	}
	return tiers
}

// CategoryNames returns the category names in catalog order
func (c *Catalog) CategoryNames() []models.Category {
	names := make([]models.Category, len(c.Categories))
	for i, cat := range c.Categories {
		names[i] = cat.Name
	}
	return names
}

// Rank returns the position of a tier, 0 being the lowest
func (c *Catalog) Rank(res models.Resolution) (int, bool) {
	for i, r := range c.Resolutions {
		if r.Name == res {
			return i, true
		}
	}
	return 0, false
}

// TestTypeOf classifies a gap pair by tier distance. Validate keeps the gap
// list grouped by distance, so this is also the pair's group in the list.
func (c *Catalog) TestTypeOf(p GapPair) models.TestType {
	lo, _ := c.Rank(p.Lower)
	hi, _ := c.Rank(p.Higher)
	switch hi - lo {
	case 1:
		return models.TestAdjacent
	case 2:
		return models.TestTwoStep
	default:
		return models.TestThreeStep
	}
}

// TotalTrials is the length of every generated sequence
func (c *Catalog) TotalTrials() int {
	return c.ComparisonTrials + c.RetestTrials
}

// Info converts the catalog to its client-facing description
func (c *Catalog) Info() models.CatalogInfo {
	info := models.CatalogInfo{
		ComparisonTrials: c.ComparisonTrials,
		RetestTrials:     c.RetestTrials,
		TotalQuestions:   c.TotalTrials(),
	}
	for _, cat := range c.Categories {
		info.Categories = append(info.Categories, models.CategoryInfo{
			Name:   cat.Name,
			Label:  cat.Label,
			Images: cat.Images,
		})
	}
	for _, r := range c.Resolutions {
		info.Resolutions = append(info.Resolutions, models.ResolutionInfo{
			Name:    r.Name,
			Width:   r.Width,
			Height:  r.Height,
			Quality: r.Quality,
		})
	}
	return info
}
