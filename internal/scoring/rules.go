package scoring

import (
	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/models"
)

// PercentileBand maps every score at or above MinScore to Percentile
type PercentileBand struct {
	MinScore   int
	Percentile int
}

// GradeBand maps every score at or above MinScore to a grade
type GradeBand struct {
	MinScore int
	Grade    models.Grade
}

// TierPair is an ordered (lower, higher) pair of tiers
type TierPair struct {
	Lower  models.Resolution
	Higher models.Resolution
}

// Rules holds the fixed constants of the score derivation
type Rules struct {
	// RecommendationPairs are inspected in order; the first one whose
	// accuracy falls below Threshold yields its lower tier.
	RecommendationPairs   []TierPair
	Threshold             float64
	DefaultRecommendation models.Resolution

	// PercentileBands must be sorted by MinScore descending. Scores below
	// every band get FloorPercentile. This is a coarse banding of the score,
	// not a percentile computed against other users.
	PercentileBands []PercentileBand
	FloorPercentile int

	GradeBands []GradeBand
	FloorGrade models.Grade

	// Categories listed in the per-category breakdown
	Categories []models.Category

	// ExpectedAccuracy per canonical pair key, attached to detection rates
	ExpectedAccuracy map[string]float64
}

// DefaultRules returns the stock scoring constants
func DefaultRules() Rules {
	return Rules{
		RecommendationPairs: []TierPair{
			{models.Res720p, models.Res1080p},
			{models.Res1080p, models.Res1440p},
			{models.Res1440p, models.Res4K},
		},
		Threshold:             0.75,
		DefaultRecommendation: models.Res1080p,
		PercentileBands: []PercentileBand{
			{MinScore: 90, Percentile: 95},
			{MinScore: 80, Percentile: 85},
			{MinScore: 70, Percentile: 70},
			{MinScore: 60, Percentile: 50},
			{MinScore: 50, Percentile: 30},
		},
		FloorPercentile: 15,
		GradeBands: []GradeBand{
			{MinScore: 90, Grade: models.Grade{Emoji: "🏆", Text: "Exceptional eye"}},
			{MinScore: 80, Grade: models.Grade{Emoji: "🥇", Text: "Excellent eye"}},
			{MinScore: 70, Grade: models.Grade{Emoji: "🥈", Text: "Good eye"}},
			{MinScore: 60, Grade: models.Grade{Emoji: "🥉", Text: "Average eye"}},
		},
		FloorGrade: models.Grade{Emoji: "💪", Text: "Needs practice"},
		Categories: []models.Category{
			models.CategoryProduct,
			models.CategoryHuman,
			models.CategoryNature,
		},
	}
}

// Percentile returns the band for a score
func (r Rules) Percentile(score int) int {
	for _, b := range r.PercentileBands {
		if score >= b.MinScore {
			return b.Percentile
		}
	}
	return r.FloorPercentile
}

// Grade returns the headline grade for a score
func (r Rules) Grade(score int) models.Grade {
	for _, b := range r.GradeBands {
		if score >= b.MinScore {
			return b.Grade
		}
	}
	return r.FloorGrade
}

// DeviceLabel turns a device class into a display label
func DeviceLabel(deviceType string) string {
	switch deviceType {
	case models.DeviceMobile:
		return "Mobile"
	case models.DeviceTablet:
		return "Tablet"
	default:
		return "Desktop"
	}
}

// RulesFor adapts the default rules to a catalog's categories and
// expected accuracies
func RulesFor(cat *catalog.Catalog) Rules {
	rules := DefaultRules()
	rules.Categories = cat.CategoryNames()
	rules.ExpectedAccuracy = cat.ExpectedAccuracy
	return rules
}

// NewCatalogEngine creates an engine using the catalog's tier order
func NewCatalogEngine(cat *catalog.Catalog) *Engine {
	return NewEngine(RulesFor(cat), cat.Tiers())
}
