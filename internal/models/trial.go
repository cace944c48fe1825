package models

import "fmt"

// Category is one of the fixed image categories (product, human, nature)
type Category string

const (
	CategoryProduct Category = "product"
	CategoryHuman   Category = "human"
	CategoryNature  Category = "nature"
)

// Resolution is a resolution tier label such as "1080p"
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
	Res1440p Resolution = "1440p"
	Res4K    Resolution = "4k"
)

// DefaultResolutions is the ordered tier set, low to high
var DefaultResolutions = []Resolution{Res480p, Res720p, Res1080p, Res1440p, Res4K}

// Side identifies which image of a pair the user picked
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Valid reports whether s is left or right
func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// TestType classifies a trial by how many tiers apart its two resolutions are
type TestType string

const (
	TestAdjacent  TestType = "adjacent"
	TestTwoStep   TestType = "two-step"
	TestThreeStep TestType = "three-step"
)

// CatalogImage is one source image of the catalog
type CatalogImage struct {
	Category Category `json:"category"`
	ImageID  string   `json:"imageId"`
}

// Trial is a single comparison question. Trials are built once per session
// and never mutated afterwards.
type Trial struct {
	ID              int        `json:"id"`
	Category        Category   `json:"category"`
	ImageID         string     `json:"imageId"`
	LeftResolution  Resolution `json:"leftResolution"`
	RightResolution Resolution `json:"rightResolution"`
	CorrectAnswer   Side       `json:"correctAnswer"`
	IsRetest        bool       `json:"isRetest"`
	RetestOf        int        `json:"retestOf,omitempty"`
	TestType        TestType   `json:"testType,omitempty"`
}

// ResolutionOn returns the resolution shown on the given side
func (t *Trial) ResolutionOn(side Side) Resolution {
	if side == SideLeft {
		return t.LeftResolution
	}
	return t.RightResolution
}

// ImagePath returns the public path of the image shown on the given side
func (t *Trial) ImagePath(side Side) string {
	return fmt.Sprintf("/images/%s_%s.jpg", t.ImageID, t.ResolutionOn(side))
}
