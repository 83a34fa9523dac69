package detector

import (
	"strings"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// DefaultDriveMarkers are substrings whose presence suggests spider code talks to Google Drive.
var DefaultDriveMarkers = []string{"pydrive", "GoogleDrive", "googleapiclient", "drive.google.com"}

// Drive flags projects whose drive flag is on but whose code shows no drive integration.
type Drive struct {
	markers []string
}

// NewDrive builds a detector. Blank markers are ignored; an empty list falls back to the defaults.
func NewDrive(markers []string) *Drive {
	cleaned := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultDriveMarkers...)
	}
	return &Drive{markers: cleaned}
}

// Markers returns a copy of the configured markers.
func (d *Drive) Markers() []string {
	return append([]string(nil), d.markers...)
}

// Supports reports whether code contains any drive marker.
func (d *Drive) Supports(code string) bool {
	for _, m := range d.markers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

// Mismatch is true when the project asks for drive export but its code lacks every marker.
// The result is advisory and never blocks an action.
func (d *Drive) Mismatch(p scraping.Project) bool {
	return p.GoogleDriveEnabled && !d.Supports(p.SpiderCode)
}

var _ scraping.DriveDetector = (*Drive)(nil)
