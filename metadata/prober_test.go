package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "audio", "codec_name": "aac"},
    {"index": 1, "codec_type": "video", "codec_name": "hevc", "width": 2560, "height": 1440,
     "r_frame_rate": "20/1", "avg_frame_rate": "20/1"}
  ],
  "format": {"duration": "300.040000", "bit_rate": "2048000", "format_name": "mov,mp4,m4a"}
}`

func TestProbeValueUnmarshal(t *testing.T) {
	var doc struct {
		A ProbeValue `json:"a"`
		B ProbeValue `json:"b"`
		C ProbeValue `json:"c"`
		D ProbeValue `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": "12.5", "b": 30, "c": null, "d": 1.25e2}`), &doc)
	require.NoError(t, err)
	assert.Equal(t, ProbeValue("12.5"), doc.A)
	assert.Equal(t, ProbeValue("30"), doc.B)
	assert.Equal(t, ProbeValue(""), doc.C)
	assert.Equal(t, ProbeValue("1.25e2"), doc.D)

	assert.Error(t, json.Unmarshal([]byte(`{"a": true}`), &doc))
}

// fakeFFProbe writes an executable shell script standing in for ffprobe.
func fakeFFProbe(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script prober not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestFFProbeProbe(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	bin := fakeFFProbe(t, `echo "$@" > `+argsFile+`
cat <<'JSON'
`+sampleProbeJSON+`
JSON`)

	doc, err := NewFFProbe(bin, 5*time.Second).Probe(context.Background(), "/videos/cam1.mp4")
	require.NoError(t, err)
	require.Len(t, doc.Streams, 2)
	assert.Equal(t, "hevc", doc.Streams[1].CodecName)
	assert.Equal(t, ProbeValue("300.040000"), doc.Format.Duration)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-v quiet -print_format json -show_format -show_streams /videos/cam1.mp4",
		strings.TrimSpace(string(args)))

	meta, err := FromProbeDocument(doc, 1)
	require.NoError(t, err)
	assert.Equal(t, 300, meta.Duration)
	assert.Equal(t, "2560x1440", meta.Resolution)
	assert.Equal(t, 20, meta.FPS)
	assert.Equal(t, "mov", meta.Format)
}

func TestFFProbeTimeout(t *testing.T) {
	bin := fakeFFProbe(t, "exec sleep 5")

	start := time.Now()
	_, err := NewFFProbe(bin, 200*time.Millisecond).Probe(context.Background(), "x.mp4")
	assert.ErrorIs(t, err, ErrProbeTimeout)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestFFProbeFailures(t *testing.T) {
	t.Run("non-zero exit", func(t *testing.T) {
		bin := fakeFFProbe(t, "echo 'x.mp4: Invalid data' >&2; exit 1")
		_, err := NewFFProbe(bin, time.Second).Probe(context.Background(), "x.mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid data")
	})

	t.Run("garbage output", func(t *testing.T) {
		bin := fakeFFProbe(t, "echo 'not json'")
		_, err := NewFFProbe(bin, time.Second).Probe(context.Background(), "x.mp4")
		assert.ErrorIs(t, err, ErrProbeOutput)
	})

	t.Run("missing binary", func(t *testing.T) {
		p := NewFFProbe(filepath.Join(t.TempDir(), "nope"), time.Second)
		_, err := p.Probe(context.Background(), "x.mp4")
		assert.Error(t, err)
		assert.Error(t, p.Available(context.Background()))
	})
}

func TestFFProbeAvailable(t *testing.T) {
	bin := fakeFFProbe(t, "echo 'ffprobe version 6.1'")
	assert.NoError(t, NewFFProbe(bin, time.Second).Available(context.Background()))
}

func TestNewFFProbeDefaults(t *testing.T) {
	p := NewFFProbe("", 0)
	assert.Equal(t, "ffprobe", p.Binary)
	assert.Equal(t, 30*time.Second, p.Timeout)
}
