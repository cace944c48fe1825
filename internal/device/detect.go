// Package device classifies the client environment from the screen metrics
// the browser reports and the request's User-Agent.
package device

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/keen-eye/survey-engine/internal/models"
)

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Chrome/(\d+)`),
	regexp.MustCompile(`Safari/(\d+)`),
	regexp.MustCompile(`Firefox/(\d+)`),
}

// Detect builds a DeviceInfo snapshot. A nil report yields defaults.
func Detect(report *models.ScreenReport, userAgent string, now time.Time) models.DeviceInfo {
	var r models.ScreenReport
	if report != nil {
		r = *report
	}
	if r.PixelRatio <= 0 {
		r.PixelRatio = 1
	}
	orientation := r.Orientation
	if orientation == "" {
		orientation = "unknown"
	}

	deviceType := Type(r.Width)

	return models.DeviceInfo{
		ScreenResolution:    fmt.Sprintf("%dx%d", r.Width, r.Height),
		PixelRatio:          r.PixelRatio,
		ColorDepth:          r.ColorDepth,
		DeviceType:          deviceType,
		TouchSupport:        r.TouchSupport,
		UserAgent:           userAgent,
		Browser:             Browser(userAgent),
		BrowserVersion:      BrowserVersion(userAgent),
		Orientation:         orientation,
		ViewingDistanceCm:   ViewingDistance(deviceType),
		EstimatedScreenSize: ScreenSize(r.Width, r.Height, r.PixelRatio),
		EffectiveResolution: fmt.Sprintf("%gx%g", float64(r.Width)*r.PixelRatio, float64(r.Height)*r.PixelRatio),
		Timestamp:           now.UTC(),
	}
}

// Type classifies a screen by its CSS pixel width. An unknown (zero) width
// is treated as desktop.
func Type(width int) string {
	switch {
	case width <= 0:
		return models.DeviceDesktop
	case width < 768:
		return models.DeviceMobile
	case width < 1024:
		return models.DeviceTablet
	default:
		return models.DeviceDesktop
	}
}

// Browser returns the browser family. Checks run in a fixed order, so Edge
// and most Chromium browsers report as chrome.
func Browser(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Chrome"):
		return "chrome"
	case strings.Contains(userAgent, "Safari"):
		return "safari"
	case strings.Contains(userAgent, "Firefox"):
		return "firefox"
	case strings.Contains(userAgent, "Edge"):
		return "edge"
	default:
		return "other"
	}
}

// BrowserVersion extracts the major version, "0" when none matches
func BrowserVersion(userAgent string) string {
	for _, re := range versionPatterns {
		if m := re.FindStringSubmatch(userAgent); m != nil {
			return m[1]
		}
	}
	return "0"
}

// ViewingDistance estimates the eye-to-screen distance in centimetres
func ViewingDistance(deviceType string) int {
	switch deviceType {
	case models.DeviceMobile:
		return 30
	case models.DeviceTablet:
		return 40
	case models.DeviceDesktop:
		return 60
	default:
		return 50
	}
}

// ScreenSize estimates the diagonal in inches assuming 96 CSS dpi
func ScreenSize(width, height int, pixelRatio float64) float64 {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	diagonal := math.Hypot(float64(width), float64(height))
	inches := diagonal / (pixelRatio * 96)
	return math.Round(inches*10) / 10
}
