package models

import "time"

// DetectionRate summarises how well the user told one unordered tier pair apart
type DetectionRate struct {
	Accuracy        float64  `json:"accuracy"`
	AvgResponseTime float64  `json:"avgResponseTime"`
	SampleSize      int      `json:"sampleSize"`
	Expected        *float64 `json:"expectedAccuracy,omitempty"`
	CILow           float64  `json:"ciLow"`
	CIHigh          float64  `json:"ciHigh"`
}

// ResponseTimeStats describes the distribution of response times in milliseconds
type ResponseTimeStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Analysis is the raw aggregate record stored with a finished session
type Analysis struct {
	DeviceInfo       DeviceInfo               `json:"device_info"`
	TotalQuestions   int                      `json:"total_questions"`
	CorrectCount     int                      `json:"correct_count"`
	Accuracy         float64                  `json:"accuracy"`
	ConsistencyScore *float64                 `json:"consistency_score"`
	RetestCount      int                      `json:"retest_count"`
	DetectionRates   map[string]DetectionRate `json:"detection_rates"`
	CategoryScores   map[Category]*float64    `json:"category_scores"`
	AvgResponseTime  float64                  `json:"avg_response_time"`
	ResponseTime     ResponseTimeStats        `json:"response_time"`
	CompletedAt      time.Time                `json:"completed_at"`
}

// Grade is the headline label shown next to the score
type Grade struct {
	Emoji string `json:"emoji"`
	Text  string `json:"text"`
}

// Result is the user-facing outcome of a finished session.
//
// Percentile is a fixed banding of the score, not a position within an
// observed population.
type Result struct {
	Score          int        `json:"score"`
	Percentile     int        `json:"percentile"`
	TopPercent     int        `json:"topPercent"`
	Recommendation Resolution `json:"recommendation"`
	Grade          Grade      `json:"grade"`
	DeviceType     string     `json:"deviceType"`
	DeviceLabel    string     `json:"deviceLabel"`
	Analysis       Analysis   `json:"analysis"`
}
