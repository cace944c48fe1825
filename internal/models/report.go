package models

// PopulationSummary aggregates completed sessions across all users
type PopulationSummary struct {
	Sessions         int     `db:"sessions" json:"sessions"`
	Completed        int     `db:"completed" json:"completed"`
	Abandoned        int     `db:"abandoned" json:"abandoned"`
	MeanScore        float64 `db:"mean_score" json:"mean_score"`
	MeanAccuracy     float64 `db:"mean_accuracy" json:"mean_accuracy"`
	MeanResponseTime float64 `db:"mean_response_time" json:"mean_response_time"`
}

// PercentileCount is the number of completed sessions placed in one percentile band
type PercentileCount struct {
	Percentile int `db:"percentile" json:"percentile"`
	Count      int `db:"count" json:"count"`
}

// DeviceCount summarises completed sessions per device type
type DeviceCount struct {
	DeviceType string  `db:"device_type" json:"device_type"`
	Count      int     `db:"count" json:"count"`
	MeanScore  float64 `db:"mean_score" json:"mean_score"`
}

// PairTally is the population-wide detection record for one tier pair
type PairTally struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// PopulationStats is the payload of the statistics endpoint
type PopulationStats struct {
	Summary        PopulationSummary    `json:"summary"`
	Distribution   []PercentileCount    `json:"distribution"`
	Devices        []DeviceCount        `json:"devices"`
	DetectionRates map[string]PairTally `json:"detection_rates"`
}
