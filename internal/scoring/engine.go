// Package scoring derives accuracy, detection rates, consistency and the
// resolution recommendation from a finished answer sequence.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/keen-eye/survey-engine/internal/models"
)

// Input validation errors
var (
	ErrNoAnswers       = errors.New("no answers to score")
	ErrMalformedAnswer = errors.New("malformed answer")
)

// Engine scores answer sequences. It holds no state besides its rules and
// tier order, so Score is a pure function of its arguments.
type Engine struct {
	rules Rules
	tiers []models.Resolution
	rank  map[models.Resolution]int
}

// NewEngine creates an engine for the given tier order (low to high)
func NewEngine(rules Rules, tiers []models.Resolution) *Engine {
	rank := make(map[models.Resolution]int, len(tiers))
	for i, t := range tiers {
		rank[t] = i
	}
	return &Engine{rules: rules, tiers: tiers, rank: rank}
}

var defaultEngine = NewEngine(DefaultRules(), models.DefaultResolutions)

// Score scores answers with the default rules and tiers
func Score(answers []models.Answer, device models.DeviceInfo, completedAt time.Time) (*models.Result, error) {
	return defaultEngine.Score(answers, device, completedAt)
}

// Rules returns the engine's rules
func (e *Engine) Rules() Rules {
	return e.rules
}

// Score validates answers and derives the full result
func (e *Engine) Score(answers []models.Answer, device models.DeviceInfo, completedAt time.Time) (*models.Result, error) {
	analysis, err := e.Analyze(answers, device, completedAt)
	if err != nil {
		return nil, err
	}
	return e.Summarize(*analysis), nil
}

// Summarize derives the user-facing result from an aggregate record
func (e *Engine) Summarize(analysis models.Analysis) *models.Result {
	score := int(math.Round(analysis.Accuracy * 100))
	percentile := e.rules.Percentile(score)
	deviceType := analysis.DeviceInfo.DeviceType

	return &models.Result{
		Score:          score,
		Percentile:     percentile,
		TopPercent:     100 - percentile,
		Recommendation: e.Recommend(analysis.DetectionRates),
		Grade:          e.rules.Grade(score),
		DeviceType:     deviceType,
		DeviceLabel:    DeviceLabel(deviceType),
		Analysis:       analysis,
	}
}

// Analyze builds the aggregate record for a finished answer sequence
func (e *Engine) Analyze(answers []models.Answer, device models.DeviceInfo, completedAt time.Time) (*models.Analysis, error) {
	if err := e.validate(answers); err != nil {
		return nil, err
	}

	correct := 0
	times := make(stats.Float64Data, 0, len(answers))
	for i := range answers {
		if answers[i].IsCorrect() {
			correct++
		}
		times = append(times, float64(answers[i].ResponseTimeMs))
	}

	consistency, retests := e.Consistency(answers)

	return &models.Analysis{
		DeviceInfo:       device,
		TotalQuestions:   len(answers),
		CorrectCount:     correct,
		Accuracy:         float64(correct) / float64(len(answers)),
		ConsistencyScore: consistency,
		RetestCount:      retests,
		DetectionRates:   e.DetectionRates(answers),
		CategoryScores:   e.categoryScores(answers),
		AvgResponseTime:  mean(times),
		ResponseTime:     responseTimeStats(times),
		CompletedAt:      completedAt,
	}, nil
}

// PairKey canonicalizes an unordered tier pair as "lower-higher" in tier order
func (e *Engine) PairKey(a, b models.Resolution) string {
	if e.rank[a] > e.rank[b] {
		a, b = b, a
	}
	return string(a) + "-" + string(b)
}

// DetectionRates groups answers by unordered tier pair
func (e *Engine) DetectionRates(answers []models.Answer) map[string]models.DetectionRate {
	type bucket struct {
		correct int
		total   int
		rtSum   float64
	}

	buckets := make(map[string]*bucket)
	for i := range answers {
		a := &answers[i]
		key := e.PairKey(a.LeftImage, a.RightImage)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		b.rtSum += float64(a.ResponseTimeMs)
		if a.IsCorrect() {
			b.correct++
		}
	}

	rates := make(map[string]models.DetectionRate, len(buckets))
	for key, b := range buckets {
		acc := float64(b.correct) / float64(b.total)
		lo, hi := wilson(b.correct, b.total)
		rate := models.DetectionRate{
			Accuracy:        acc,
			AvgResponseTime: b.rtSum / float64(b.total),
			SampleSize:      b.total,
			CILow:           lo,
			CIHigh:          hi,
		}
		if exp, ok := e.rules.ExpectedAccuracy[key]; ok {
			rate.Expected = &exp
		}
		rates[key] = rate
	}

	return rates
}

// Consistency compares every retest answer with the first non-retest answer
// for the same category and unordered tier pair. A retest is consistent when
// both answers have the same correctness; a retest with no original counts as
// inconsistent. Returns nil when there are no retests.
func (e *Engine) Consistency(answers []models.Answer) (*float64, int) {
	retests, consistent := 0, 0

	for i := range answers {
		r := &answers[i]
		if !r.IsRetest {
			continue
		}
		retests++

		key := e.PairKey(r.LeftImage, r.RightImage)
		for j := range answers {
			o := &answers[j]
			if o.IsRetest || o.Category != r.Category || e.PairKey(o.LeftImage, o.RightImage) != key {
				continue
			}
			if o.IsCorrect() == r.IsCorrect() {
				consistent++
			}
			break
		}
	}

	if retests == 0 {
		return nil, 0
	}
	score := float64(consistent) / float64(retests)
	return &score, retests
}

// Recommend applies the ordered recommendation rule to a detection-rate table
func (e *Engine) Recommend(rates map[string]models.DetectionRate) models.Resolution {
	for _, p := range e.rules.RecommendationPairs {
		rate, ok := rates[e.PairKey(p.Lower, p.Higher)]
		if ok && rate.Accuracy < e.rules.Threshold {
			return p.Lower
		}
	}
	return e.rules.DefaultRecommendation
}

func (e *Engine) categoryScores(answers []models.Answer) map[models.Category]*float64 {
	scores := make(map[models.Category]*float64, len(e.rules.Categories))
	for _, cat := range e.rules.Categories {
		correct, total := 0, 0
		for i := range answers {
			if answers[i].Category != cat {
				continue
			}
			total++
			if answers[i].IsCorrect() {
				correct++
			}
		}
		if total == 0 {
			scores[cat] = nil
			continue
		}
		acc := float64(correct) / float64(total)
		scores[cat] = &acc
	}
	return scores
}

func (e *Engine) validate(answers []models.Answer) error {
	if len(answers) == 0 {
		return ErrNoAnswers
	}

	for i := range answers {
		a := &answers[i]
		switch {
		case a.Category == "":
			return fmt.Errorf("%w: answer %d has no category", ErrMalformedAnswer, i)
		case !a.CorrectAnswer.Valid():
			return fmt.Errorf("%w: answer %d has correct answer %q", ErrMalformedAnswer, i, a.CorrectAnswer)
		case !a.UserAnswer.Valid():
			return fmt.Errorf("%w: answer %d has user answer %q", ErrMalformedAnswer, i, a.UserAnswer)
		case a.LeftImage == a.RightImage:
			return fmt.Errorf("%w: answer %d compares %s with itself", ErrMalformedAnswer, i, a.LeftImage)
		case a.ResponseTimeMs < 0:
			return fmt.Errorf("%w: answer %d has negative response time", ErrMalformedAnswer, i)
		}
		if _, ok := e.rank[a.LeftImage]; !ok {
			return fmt.Errorf("%w: answer %d has unknown tier %q", ErrMalformedAnswer, i, a.LeftImage)
		}
		if _, ok := e.rank[a.RightImage]; !ok {
			return fmt.Errorf("%w: answer %d has unknown tier %q", ErrMalformedAnswer, i, a.RightImage)
		}
	}

	return nil
}

func mean(data stats.Float64Data) float64 {
	m, err := stats.Mean(data)
	if err != nil {
		return 0
	}
	return m
}

func responseTimeStats(data stats.Float64Data) models.ResponseTimeStats {
	median, _ := stats.Median(data)
	sd, _ := stats.StandardDeviation(data)
	lo, _ := stats.Min(data)
	hi, _ := stats.Max(data)
	return models.ResponseTimeStats{
		Mean:   mean(data),
		Median: median,
		StdDev: sd,
		Min:    lo,
		Max:    hi,
	}
}

// wilson returns the 95% Wilson score interval for correct/total
func wilson(correct, total int) (float64, float64) {
	if total == 0 {
		return 0, 0
	}
	z := distuv.UnitNormal.Quantile(0.975)
	n := float64(total)
	p := float64(correct) / n

	denom := 1 + z*z/n
	center := (p + z*z/(2*n)) / denom
	half := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n)) / denom

	return math.Max(0, center-half), math.Min(1, center+half)
}
