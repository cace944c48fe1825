package models

// CategoryInfo describes one image category for clients
type CategoryInfo struct {
	Name   Category `json:"name"`
	Label  string   `json:"label"`
	Images int      `json:"images"`
}

// ResolutionInfo describes one resolution tier for clients
type ResolutionInfo struct {
	Name    Resolution `json:"name"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Quality int        `json:"quality"`
}

// CatalogInfo is returned by the catalog endpoint
type CatalogInfo struct {
	Categories       []CategoryInfo   `json:"categories"`
	Resolutions      []ResolutionInfo `json:"resolutions"`
	ComparisonTrials int              `json:"comparisonTrials"`
	RetestTrials     int              `json:"retestTrials"`
	TotalQuestions   int              `json:"totalQuestions"`
}
