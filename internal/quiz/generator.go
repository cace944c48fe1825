// Package quiz builds the randomized trial sequence for one survey session.
package quiz

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/models"
)

// Generator builds trial sequences from a validated catalog
type Generator struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	images  []models.CatalogImage
	rng     *rand.Rand
}

// NewGenerator validates the catalog and returns a generator drawing from src.
// A nil src seeds from the clock.
func NewGenerator(cat *catalog.Catalog, src rand.Source) (*Generator, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}

	return &Generator{
		catalog: cat,
		images:  cat.Images(),
		rng:     rand.New(src),
	}, nil
}

// Catalog returns the catalog the generator was built from
func (g *Generator) Catalog() *catalog.Catalog {
	return g.catalog
}

// Generate returns a freshly shuffled sequence of comparison and retest trials
func (g *Generator) Generate() []models.Trial {
	g.mu.Lock()
	defer g.mu.Unlock()

	comparisons := g.comparisons()
	retests := g.retests(comparisons)

	trials := make([]models.Trial, 0, len(comparisons)+len(retests))
	trials = append(trials, comparisons...)
	trials = append(trials, retests...)

	g.shuffle(trials)
	return trials
}

// comparisons builds the comparison trials in construction order. The first
// len(images) trials use every image once; later ones reuse random images.
func (g *Generator) comparisons() []models.Trial {
	pairs := g.catalog.GapPairs
	trials := make([]models.Trial, 0, g.catalog.ComparisonTrials)

	for i := 0; i < g.catalog.ComparisonTrials; i++ {
		var img models.CatalogImage
		if i < len(g.images) {
			img = g.images[i]
		} else {
			img = g.images[g.rng.IntN(len(g.images))]
		}

		pair := pairs[i%len(pairs)]
		leftHigher := g.rng.IntN(2) == 0

		t := models.Trial{
			ID:       i + 1,
			Category: img.Category,
			ImageID:  img.ImageID,
			TestType: g.catalog.TestTypeOf(pair),
		}
		if leftHigher {
			t.LeftResolution, t.RightResolution = pair.Higher, pair.Lower
			t.CorrectAnswer = models.SideLeft
		} else {
			t.LeftResolution, t.RightResolution = pair.Lower, pair.Higher
			t.CorrectAnswer = models.SideRight
		}

		trials = append(trials, t)
	}

	return trials
}

// retests samples distinct comparison trials and mirrors them
func (g *Generator) retests(comparisons []models.Trial) []models.Trial {
	n := g.catalog.RetestTrials
	if n == 0 {
		return nil
	}

	pool := make([]models.Trial, len(comparisons))
	copy(pool, comparisons)
	g.shuffle(pool)

	nextID := len(comparisons) + 1
	retests := make([]models.Trial, 0, n)
	for _, src := range pool[:n] {
		retests = append(retests, models.Trial{
			ID:              nextID,
			Category:        src.Category,
			ImageID:         src.ImageID,
			LeftResolution:  src.RightResolution,
			RightResolution: src.LeftResolution,
			CorrectAnswer:   src.CorrectAnswer.Opposite(),
			IsRetest:        true,
			RetestOf:        src.ID,
			TestType:        src.TestType,
		})
		nextID++
	}

	return retests
}

// shuffle is an in-place Fisher-Yates shuffle
func (g *Generator) shuffle(trials []models.Trial) {
	for i := len(trials) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		trials[i], trials[j] = trials[j], trials[i]
	}
}
