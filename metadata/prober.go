package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrProbeTimeout is returned when the prober does not finish in time.
	ErrProbeTimeout = errors.New("probe timed out")
	// ErrProbeOutput is returned when the prober output cannot be parsed.
	ErrProbeOutput = errors.New("unparseable probe output")
)

// Prober reads container and stream information from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeDocument, error)
}

// ProbeDocument is the subset of ffprobe's JSON output used here.
type ProbeDocument struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream of the container.
type ProbeStream struct {
	CodecType    string     `json:"codec_type"`
	CodecName    string     `json:"codec_name"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	RFrameRate   ProbeValue `json:"r_frame_rate"`
	AvgFrameRate ProbeValue `json:"avg_frame_rate"`
}

// ProbeFormat holds container-level fields.
type ProbeFormat struct {
	Duration   ProbeValue `json:"duration"`
	BitRate    ProbeValue `json:"bit_rate"`
	FormatName string     `json:"format_name"`
}

// ProbeValue accepts a JSON string or number. ffprobe quotes numeric
// fields but other producers may not.
type ProbeValue string

func (v *ProbeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ProbeValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = ProbeValue(n.String())
	return nil
}

// FFProbe runs the ffprobe binary.
type FFProbe struct {
	Binary  string
	Timeout time.Duration
}

// NewFFProbe returns an FFProbe; an empty binary means "ffprobe" on PATH.
func NewFFProbe(binary string, timeout time.Duration) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFProbe{Binary: binary, Timeout: timeout}
}

// Probe runs ffprobe against path and decodes its JSON report.
func (f *FFProbe) Probe(ctx context.Context, path string) (*ProbeDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrProbeTimeout, f.Timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var doc ProbeDocument
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeOutput, err)
	}
	return &doc, nil
}

// Available reports whether the ffprobe binary can be executed.
func (f *FFProbe) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, f.Binary, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not available: %w", err)
	}
	return nil
}
