package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vms-recordings/database"
	"vms-recordings/metadata"
	"vms-recordings/recording"
	"vms-recordings/service"
)

// recordingView adds human-readable size and duration to a recording.
type recordingView struct {
	*database.Recording
	FileSizeFormatted string `json:"fileSizeFormatted"`
	DurationFormatted string `json:"durationFormatted,omitempty"`
}

func newRecordingView(rec *database.Recording) recordingView {
	v := recordingView{
		Recording:         rec,
		FileSizeFormatted: metadata.FormatFileSize(rec.FileSizeBytes),
	}
	if rec.DurationSeconds != nil {
		v.DurationFormatted = metadata.FormatDuration(int64(*rec.DurationSeconds))
	}
	return v
}

// handleHealthCheck reports store, prober and storage status. Only an
// unreachable store makes the service unhealthy.
func (s *Server) handleHealthCheck(c *gin.Context) {
	report := s.svc.Health(c.Request.Context())
	status := http.StatusOK
	if report.Database != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"success": status == http.StatusOK, "data": report})
}

func (s *Server) listRecordings(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	recs, total, err := s.svc.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to list recordings", err)
		return
	}
	respondList(c, nonNil(recs), newPagination(filter.Page, filter.Limit, total))
}

func (s *Server) searchRecordings(c *gin.Context) {
	filter, err := parseSearchFilter(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	recs, total, err := s.svc.Search(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to search recordings", err)
		return
	}
	respondList(c, nonNil(recs), newPagination(filter.Page, filter.Limit, total))
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.svc.Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to load recording statistics", err)
		return
	}
	respondSuccess(c, stats)
}

func (s *Server) getSyncStatus(c *gin.Context) {
	respondSuccess(c, s.svc.LastSync())
}

// triggerSync runs a scan and returns its counts. Per-file failures are part
// of the counts; only a store failure fails the request.
func (s *Server) triggerSync(c *gin.Context) {
	result, err := s.svc.Sync(c.Request.Context(), service.TriggerHTTP)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Recording sync failed", err)
		return
	}
	respondSuccess(c, result)
}

func (s *Server) getRecording(c *gin.Context) {
	rec, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, recording.ErrNotFound) {
		s.respondError(c, http.StatusNotFound, CodeNotFound, "Recording not found", nil)
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to load recording", err)
		return
	}
	respondSuccess(c, newRecordingView(rec))
}

func (s *Server) streamRecording(c *gin.Context) {
	s.serveRecording(c, recording.Inline)
}

func (s *Server) downloadRecording(c *gin.Context) {
	s.serveRecording(c, recording.Attachment)
}

func (s *Server) serveRecording(c *gin.Context, disposition recording.Disposition) {
	id := c.Param("id")
	err := s.svc.Serve(c.Request.Context(), c.Writer, id, c.GetHeader("Range"), disposition)
	if err == nil {
		return
	}

	var rangeErr *recording.RangeError
	switch {
	case errors.As(err, &rangeErr):
		c.Header("Content-Range", recording.UnsatisfiedRangeHeader(rangeErr.Size))
		s.respondError(c, http.StatusBadRequest, CodeRangeInvalid, rangeMessage(rangeErr), nil)
	case errors.Is(err, recording.ErrNotFound):
		s.respondError(c, http.StatusNotFound, CodeNotFound, "Recording not found", nil)
	default:
		s.log.Error("[api] failed to serve recording", zap.String("id", id), zap.Error(err))
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to serve recording", err)
	}
}

func rangeMessage(e *recording.RangeError) string {
	if e.Size == 0 {
		return fmt.Sprintf("Invalid range (%s): the file is empty, request it without a Range header", e.Reason)
	}
	return fmt.Sprintf("Invalid range (%s): use bytes=<start>-<end> with 0 <= start <= end < %d", e.Reason, e.Size)
}

func (s *Server) deleteRecording(c *gin.Context) {
	id := c.Param("id")
	deleted, err := s.svc.Delete(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to delete recording", err)
		return
	}
	if !deleted {
		s.respondError(c, http.StatusNotFound, CodeNotFound, "Recording not found", nil)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Recording deleted"})
}

func nonNil(recs []database.Recording) []database.Recording {
	if recs == nil {
		return []database.Recording{}
	}
	return recs
}
