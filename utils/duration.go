package utils

import (
	"fmt"
	"math"
)

// FormatDuration renders elapsed seconds for display: sub-minute values round
// to whole seconds ("45s"), everything else is "1h 2m".
func FormatDuration(secondsRaw float64) string {
	seconds := math.Max(0, secondsRaw)
	if math.IsNaN(seconds) {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", int(math.Round(seconds)))
	}
	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
