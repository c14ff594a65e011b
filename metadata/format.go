package metadata

import (
	"fmt"
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatFileSize renders bytes with 1024-based units, e.g. "1.5 GB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatDuration renders seconds as "1h 2m 3s", "2m 3s" or "3s".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
