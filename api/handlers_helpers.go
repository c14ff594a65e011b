package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vms-recordings/database"
)

const dateLayout = "2006-01-02"

// parseListFilter reads the list query parameters: cameraId, startDate,
// endDate, storageTier, search, page and limit.
func parseListFilter(c *gin.Context) (database.RecordingFilter, error) {
	var f database.RecordingFilter
	var err error

	f.CameraID = strings.TrimSpace(c.Query("cameraId"))
	f.StorageTier = strings.TrimSpace(c.Query("storageTier"))
	f.Search = strings.TrimSpace(c.Query("search"))

	if f.StartDate, err = parseDateParam(c, "startDate", false); err != nil {
		return f, err
	}
	if f.EndDate, err = parseDateParam(c, "endDate", true); err != nil {
		return f, err
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, fmt.Errorf("startDate must not be after endDate")
	}

	if f.Page, err = parsePositiveInt(c, "page", 1); err != nil {
		return f, err
	}
	if f.Limit, err = parsePositiveInt(c, "limit", database.DefaultPageLimit); err != nil {
		return f, err
	}
	if f.Limit > database.MaxPageLimit {
		return f, fmt.Errorf("limit must be at most %d", database.MaxPageLimit)
	}
	return f, nil
}

// parseSearchFilter adds q (the dashboard's name for search), minDuration,
// maxDuration, resolution and codec to the list filter.
func parseSearchFilter(c *gin.Context) (database.RecordingFilter, error) {
	f, err := parseListFilter(c)
	if err != nil {
		return f, err
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		f.Search = q
	}
	f.Resolution = strings.TrimSpace(c.Query("resolution"))
	f.Codec = strings.TrimSpace(c.Query("codec"))

	if f.MinDuration, err = parseDurationParam(c, "minDuration"); err != nil {
		return f, err
	}
	if f.MaxDuration, err = parseDurationParam(c, "maxDuration"); err != nil {
		return f, err
	}
	if f.MinDuration != nil && f.MaxDuration != nil && *f.MinDuration > *f.MaxDuration {
		return f, fmt.Errorf("minDuration must not exceed maxDuration")
	}
	return f, nil
}

// parseDateParam accepts RFC 3339 or a plain date. A plain end date covers
// the whole day.
func parseDateParam(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD", key)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func parsePositiveInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

func parseDurationParam(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number of seconds", key)
	}
	return &n, nil
}
