package models

import "time"

// Device classes
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// DeviceInfo is a snapshot of the client environment taken once at session start
type DeviceInfo struct {
	ScreenResolution    string    `json:"screenResolution"`
	PixelRatio          float64   `json:"pixelRatio"`
	ColorDepth          int       `json:"colorDepth"`
	DeviceType          string    `json:"deviceType"`
	TouchSupport        bool      `json:"touchSupport"`
	UserAgent           string    `json:"userAgent"`
	Browser             string    `json:"browser"`
	BrowserVersion      string    `json:"browserVersion"`
	Orientation         string    `json:"orientation"`
	ViewingDistanceCm   int       `json:"viewingDistance"`
	EstimatedScreenSize float64   `json:"estimatedScreenSize"`
	EffectiveResolution string    `json:"effectiveResolution"`
	Timestamp           time.Time `json:"timestamp"`
}

// ScreenReport holds the raw screen metrics reported by the browser
type ScreenReport struct {
	Width        int     `json:"width" validate:"gte=0"`
	Height       int     `json:"height" validate:"gte=0"`
	PixelRatio   float64 `json:"pixelRatio" validate:"gte=0"`
	ColorDepth   int     `json:"colorDepth" validate:"gte=0"`
	TouchSupport bool    `json:"touchSupport"`
	Orientation  string  `json:"orientation,omitempty"`
}
