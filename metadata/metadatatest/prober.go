// Package metadatatest provides a Prober double for tests.
package metadatatest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"vms-recordings/metadata"
)

// FakeProber returns canned documents keyed by file base name. Files without
// an entry get Default; a nil Default means failure.
type FakeProber struct {
	Docs    map[string]*metadata.ProbeDocument
	Errs    map[string]error
	Default *metadata.ProbeDocument
	Delay   time.Duration

	mu          sync.Mutex
	calls       []string
	inFlight    int
	maxInFlight int
}

// VideoDocument builds a document with one H.264 video stream.
func VideoDocument(duration string, width, height int, frameRate string) *metadata.ProbeDocument {
	return &metadata.ProbeDocument{
		Streams: []metadata.ProbeStream{
			{CodecType: "audio", CodecName: "aac"},
			{
				CodecType:    "video",
				CodecName:    "h264",
				Width:        width,
				Height:       height,
				RFrameRate:   metadata.ProbeValue(frameRate),
				AvgFrameRate: metadata.ProbeValue(frameRate),
			},
		},
		Format: metadata.ProbeFormat{
			Duration:   metadata.ProbeValue(duration),
			BitRate:    "4000000",
			FormatName: "mov,mp4,m4a,3gp,3g2,mj2",
		},
	}
}

func (f *FakeProber) Probe(ctx context.Context, path string) (*metadata.ProbeDocument, error) {
	name := filepath.Base(path)

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := f.Errs[name]; ok {
		return nil, err
	}
	if doc, ok := f.Docs[name]; ok {
		return doc, nil
	}
	if f.Default != nil {
		return f.Default, nil
	}
	return nil, errors.New("no canned probe document for " + name)
}

// Calls returns the base names probed so far.
func (f *FakeProber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// MaxInFlight returns the highest number of concurrent Probe calls seen.
func (f *FakeProber) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}
