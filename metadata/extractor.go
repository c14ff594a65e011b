package metadata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultBatchSize is the number of prober processes run at once.
const DefaultBatchSize = 5

// ErrNoVideoStream is returned when the probed file has no video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// ExtractionError wraps any failure to read metadata from a file.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("metadata extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// VideoMetadata is the technical description of one video file.
type VideoMetadata struct {
	Duration   int // whole seconds, floored
	FileSize   int64
	Width      int
	Height     int
	Resolution string // "WxH", empty when dimensions are unknown
	FPS        int
	Codec      string
	Bitrate    int64
	Format     string
}

// Extractor turns prober output into VideoMetadata.
type Extractor struct {
	prober    Prober
	batchSize int
	log       *zap.Logger
}

// NewExtractor creates an extractor. batchSize bounds ExtractBatch.
func NewExtractor(prober Prober, batchSize int, log *zap.Logger) *Extractor {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{prober: prober, batchSize: batchSize, log: log}
}

// Extract reads metadata for the file at path. The file size comes from the
// file system, not from the prober.
func (e *Extractor) Extract(ctx context.Context, path string) (*VideoMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ExtractionError{Path: path, Err: errors.New("not a regular file")}
	}

	doc, err := e.prober.Probe(ctx, path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}

	meta, err := FromProbeDocument(doc, info.Size())
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return meta, nil
}

// ExtractBatch extracts metadata for paths with at most batchSize probes in
// flight. Failed files are logged and left out of the result.
func (e *Extractor) ExtractBatch(ctx context.Context, paths []string) map[string]*VideoMetadata {
	results := make(map[string]*VideoMetadata, len(paths))
	sem := semaphore.NewWeighted(int64(e.batchSize))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			e.log.Warn("[metadata] batch interrupted", zap.Error(err))
			break
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)

			meta, err := e.Extract(ctx, path)
			if err != nil {
				e.log.Warn("[metadata] skipping file", zap.String("path", path), zap.Error(err))
				return
			}
			mu.Lock()
			results[path] = meta
			mu.Unlock()
		}(path)
	}

	wg.Wait()
	return results
}

// FromProbeDocument maps a probe report onto VideoMetadata.
func FromProbeDocument(doc *ProbeDocument, fileSize int64) (*VideoMetadata, error) {
	if doc == nil {
		return nil, ErrProbeOutput
	}

	var video *ProbeStream
	for i := range doc.Streams {
		if doc.Streams[i].CodecType == "video" {
			video = &doc.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	meta := &VideoMetadata{
		Duration: parseDuration(string(doc.Format.Duration)),
		FileSize: fileSize,
		Width:    video.Width,
		Height:   video.Height,
		Codec:    orUnknown(video.CodecName),
		Bitrate:  parseBitrate(string(doc.Format.BitRate)),
		Format:   orUnknown(firstToken(doc.Format.FormatName)),
	}

	meta.FPS = ParseFrameRate(string(video.RFrameRate))
	if meta.FPS == 0 {
		meta.FPS = ParseFrameRate(string(video.AvgFrameRate))
	}

	if meta.Width > 0 && meta.Height > 0 {
		meta.Resolution = fmt.Sprintf("%dx%d", meta.Width, meta.Height)
	}
	return meta, nil
}

// ParseFrameRate converts "num/den" or a bare number to whole frames per
// second. A zero or missing denominator yields the numerator.
func ParseFrameRate(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	numStr, denStr, hasDen := strings.Cut(s, "/")
	num, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) || num <= 0 {
		return 0
	}
	if !hasDen {
		return int(math.Round(num))
	}
	den, err := strconv.ParseFloat(strings.TrimSpace(denStr), 64)
	if err != nil || den == 0 {
		return int(math.Round(num))
	}
	fps := num / den
	if fps <= 0 || math.IsInf(fps, 0) {
		return 0
	}
	return int(math.Round(fps))
}

func parseDuration(s string) int {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return int(math.Floor(d))
}

func parseBitrate(s string) int64 {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseInt(s, 10, 64); err == nil && b > 0 {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

func firstToken(s string) string {
	first, _, _ := strings.Cut(s, ",")
	return strings.TrimSpace(first)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
