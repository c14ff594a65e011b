package metadata

import (
	"errors"
	"path/filepath"
	"regexp"
	"time"
)

// ErrTimestampUnparseable marks a file whose name carries no start time.
var ErrTimestampUnparseable = errors.New("filename has no YYYYMMDD_HHMMSS timestamp")

const filenameTimestampLayout = "20060102150405"

var digitRun = regexp.MustCompile(`\d+`)

// ParseFilenameTimestamp finds an 8-digit date followed by one non-digit and
// a 6-digit time (camera_YYYYMMDD_HHMMSS.mp4) and returns it in local time.
// Digit runs are matched whole, so a date glued to other digits
// ("cam_120251020_143025") is not split apart. It reports false when no such
// pair forms a valid calendar time.
func ParseFilenameTimestamp(name string) (time.Time, bool) {
	base := filepath.Base(name)
	runs := digitRun.FindAllStringIndex(base, -1)

	for i := 0; i+1 < len(runs); i++ {
		date, clock := runs[i], runs[i+1]
		if date[1]-date[0] != 8 || clock[1]-clock[0] != 6 || clock[0]-date[1] != 1 {
			continue
		}
		t, err := time.ParseInLocation(filenameTimestampLayout,
			base[date[0]:date[1]]+base[clock[0]:clock[1]], time.Local)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EndTime returns start plus the given number of seconds.
func EndTime(start time.Time, durationSeconds int) time.Time {
	return start.Add(time.Duration(durationSeconds) * time.Second)
}
