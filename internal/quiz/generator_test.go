package quiz

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/models"
)

func newTestGenerator(t *testing.T, cat *catalog.Catalog, seed uint64) *Generator {
	t.Helper()
	g, err := NewGenerator(cat, rand.NewPCG(seed, seed+1))
	require.NoError(t, err)
	return g
}

func TestGenerateSequenceShape(t *testing.T) {
	cat := catalog.Default()

	for seed := uint64(1); seed <= 50; seed++ {
		g := newTestGenerator(t, cat, seed)
		trials := g.Generate()

		require.Len(t, trials, cat.ComparisonTrials+cat.RetestTrials)

		ids := make(map[int]bool)
		retests := 0
		for _, tr := range trials {
			assert.False(t, ids[tr.ID], "duplicate trial id %d", tr.ID)
			ids[tr.ID] = true

			assert.NotEqual(t, tr.LeftResolution, tr.RightResolution)

			left, _ := cat.Rank(tr.LeftResolution)
			right, _ := cat.Rank(tr.RightResolution)
			if left > right {
				assert.Equal(t, models.SideLeft, tr.CorrectAnswer)
			} else {
				assert.Equal(t, models.SideRight, tr.CorrectAnswer)
			}

			if tr.IsRetest {
				retests++
			}
		}
		assert.Equal(t, cat.RetestTrials, retests)
	}
}

func TestComparisonsUseEachImageOnceBeforeReuse(t *testing.T) {
	cat := catalog.Default()
	g := newTestGenerator(t, cat, 7)

	comparisons := g.comparisons()
	images := cat.Images()

	seen := make(map[string]bool)
	for i := 0; i < len(images); i++ {
		assert.Equal(t, images[i].ImageID, comparisons[i].ImageID, "trial %d", i)
		assert.False(t, seen[comparisons[i].ImageID])
		seen[comparisons[i].ImageID] = true
	}
}

func TestComparisonsCycleGapPairs(t *testing.T) {
	cat := catalog.Default()
	g := newTestGenerator(t, cat, 3)

	for i, tr := range g.comparisons() {
		pair := cat.GapPairs[i%len(cat.GapPairs)]
		got := []models.Resolution{tr.LeftResolution, tr.RightResolution}
		assert.ElementsMatch(t, []models.Resolution{pair.Lower, pair.Higher}, got, "trial %d", i)
		assert.Equal(t, cat.TestTypeOf(pair), tr.TestType)
		assert.Equal(t, i+1, tr.ID)
	}
}

func TestRetestsMirrorDistinctSources(t *testing.T) {
	cat := catalog.Default()

	for seed := uint64(1); seed <= 50; seed++ {
		g := newTestGenerator(t, cat, seed)
		trials := g.Generate()

		byID := make(map[int]models.Trial)
		for _, tr := range trials {
			byID[tr.ID] = tr
		}

		sources := make(map[int]bool)
		for _, tr := range trials {
			if !tr.IsRetest {
				continue
			}
			src, ok := byID[tr.RetestOf]
			require.True(t, ok, "retest %d has no source", tr.ID)
			assert.False(t, src.IsRetest)
			assert.False(t, sources[src.ID], "source %d sampled twice", src.ID)
			sources[src.ID] = true

			assert.Equal(t, src.Category, tr.Category)
			assert.Equal(t, src.ImageID, tr.ImageID)
			assert.Equal(t, src.LeftResolution, tr.RightResolution)
			assert.Equal(t, src.RightResolution, tr.LeftResolution)
			assert.Equal(t, src.CorrectAnswer.Opposite(), tr.CorrectAnswer)
			assert.Greater(t, tr.ID, cat.ComparisonTrials)
		}
	}
}

func TestGenerateShufflesOrder(t *testing.T) {
	g := newTestGenerator(t, catalog.Default(), 11)
	trials := g.Generate()

	ids := make([]int, len(trials))
	for i, tr := range trials {
		ids[i] = tr.ID
	}
	assert.False(t, sort.IntsAreSorted(ids), "sequence should not stay in construction order")
}

func TestGenerateIsReproducibleForSeed(t *testing.T) {
	a := newTestGenerator(t, catalog.Default(), 42).Generate()
	b := newTestGenerator(t, catalog.Default(), 42).Generate()
	assert.Equal(t, a, b)
}

func TestAllTrialsRetestedWhenCountsMatch(t *testing.T) {
	cat := catalog.Default()
	cat.ComparisonTrials = 4
	cat.RetestTrials = 4

	trials := newTestGenerator(t, cat, 5).Generate()
	assert.Len(t, trials, 8)
}

func TestNoRetestsConfigured(t *testing.T) {
	cat := catalog.Default()
	cat.RetestTrials = 0

	trials := newTestGenerator(t, cat, 5).Generate()
	assert.Len(t, trials, cat.ComparisonTrials)
	for _, tr := range trials {
		assert.False(t, tr.IsRetest)
	}
}

func TestNewGeneratorRejectsInvalidCatalog(t *testing.T) {
	cat := catalog.Default()
	cat.RetestTrials = cat.ComparisonTrials + 1

	_, err := NewGenerator(cat, nil)
	assert.ErrorIs(t, err, catalog.ErrInvalidCatalog)

	cat = catalog.Default()
	cat.Categories[0].Images = 0
	_, err = NewGenerator(cat, nil)
	assert.ErrorIs(t, err, catalog.ErrInvalidCatalog)
}
