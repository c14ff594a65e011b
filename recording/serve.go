package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vms-recordings/database"
)

// Disposition selects inline playback or attachment download.
type Disposition int

const (
	Inline Disposition = iota
	Attachment
)

// ByteRange is an inclusive byte window.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the window.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ParseRange parses a single "bytes=start-end" range against a file of size
// bytes. A missing end means the last byte; an end past the file is clamped.
func ParseRange(header string, size int64) (ByteRange, error) {
	invalid := func(reason string) (ByteRange, error) {
		return ByteRange{}, &RangeError{Header: header, Size: size, Reason: reason}
	}

	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return invalid("unit must be bytes")
	}
	if strings.Contains(spec, ",") {
		return invalid("multiple ranges are not supported")
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return invalid("expected start-end")
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if startStr == "" {
		return invalid("start is required")
	}

	if !allDigits(startStr) {
		return invalid("start is not a non-negative integer")
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return invalid("start is not a non-negative integer")
	}
	if start >= size {
		return invalid("start is beyond the end of the file")
	}

	end := size - 1
	if endStr != "" {
		if !allDigits(endStr) {
			return invalid("end is not a non-negative integer")
		}
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return invalid("end is not a non-negative integer")
		}
		if start > end {
			return invalid("start is after end")
		}
		if end >= size {
			end = size - 1
		}
	}

	return ByteRange{Start: start, End: end}, nil
}

// allDigits reports whether s is non-empty ASCII digits; ParseInt alone
// would accept a sign.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FileServer streams catalogued recordings with byte-range support.
type FileServer struct {
	store       database.CatalogStore
	contentType string
	log         *zap.Logger
}

// NewFileServer creates a file server. contentType defaults to video/mp4.
func NewFileServer(store database.CatalogStore, contentType string, log *zap.Logger) *FileServer {
	if contentType == "" {
		contentType = "video/mp4"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileServer{store: store, contentType: contentType, log: log}
}

// Serve writes recording id to w. With an empty rangeHeader the whole file is
// sent with 200; otherwise the requested window is sent with 206. Errors are
// returned before anything is written: ErrNotFound or a *RangeError.
func (s *FileServer) Serve(ctx context.Context, w http.ResponseWriter, id, rangeHeader string, disposition Disposition) error {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}

	f, err := os.Open(rec.Filepath)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("[serve] catalogued file missing on disk",
			zap.String("id", id), zap.String("path", rec.Filepath))
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to open recording %s: %w", id, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat recording %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return ErrNotFound
	}
	size := info.Size()

	window := ByteRange{Start: 0, End: size - 1}
	partial := rangeHeader != ""
	if partial {
		if window, err = ParseRange(rangeHeader, size); err != nil {
			return err
		}
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", s.contentType)
	if disposition == Attachment {
		h.Set("Content-Disposition", attachmentHeader(rec.Filename))
	}

	status := http.StatusOK
	length := size
	if partial {
		status = http.StatusPartialContent
		length = window.Length()
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", window.Start, window.End, size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if length == 0 {
		return nil
	}
	n, err := io.Copy(w, io.NewSectionReader(f, window.Start, length))
	if err != nil {
		// Headers are gone; the client sees a short body.
		s.log.Debug("[serve] stream ended early",
			zap.String("id", id), zap.Int64("sent", n), zap.Int64("want", length), zap.Error(err))
	}
	return nil
}

// UnsatisfiedRangeHeader is the Content-Range value sent with a rejected range.
func UnsatisfiedRangeHeader(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

func attachmentHeader(filename string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "").Replace(filename)
	return `attachment; filename="` + escaped + `"`
}
