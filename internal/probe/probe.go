// Package probe extracts source video metadata via ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"clipsheet/internal/util"
)

// ErrNoVideoStream marks inputs that ffprobe parsed but that carry no
// usable video stream. Such inputs are skipped; other inputs continue.
var ErrNoVideoStream = errors.New("no video stream found")

// ProbeError wraps any failure to inspect an input file.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %q: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// SourceVideo is the immutable description of one input file.
// The frame rate is kept as an exact rational so frame counts derived
// from clip lengths do not drift the way a float rate would.
type SourceVideo struct {
	Path         string
	Text         string // ffprobe banner text, used for the montage caption
	Width        int
	Height       int
	Duration     float64 // seconds, stream-level with container fallback
	FrameRateNum int
	FrameRateDen int
}

// FrameRate returns the frame rate as a float for display and clamping.
func (s *SourceVideo) FrameRate() float64 {
	if s.FrameRateDen == 0 {
		return 0
	}
	return float64(s.FrameRateNum) / float64(s.FrameRateDen)
}

// FrameInterval returns the duration of a single frame in seconds.
func (s *SourceVideo) FrameInterval() float64 {
	if s.FrameRateNum == 0 {
		return 0
	}
	return float64(s.FrameRateDen) / float64(s.FrameRateNum)
}

// Options controls probing.
type Options struct {
	FFprobePath string
	Verbose     bool
	Runner      util.CmdRunner
}

// Probe runs two ffprobe calls against path: one JSON call for structured
// stream/format metadata and one plain call whose stderr banner becomes
// the caption text.
func Probe(ctx context.Context, path string, opts Options) (*SourceVideo, error) {
	if opts.FFprobePath == "" {
		return nil, errors.New("ffprobe path is required")
	}
	runner := opts.Runner
	if runner == nil {
		runner = util.NewDefaultRunner()
	}

	res, err := runner.Run(ctx, util.CmdSpec{
		Path: opts.FFprobePath,
		Args: []string{
			"-hide_banner",
			"-print_format", "json",
			"-show_format", "-show_streams",
			path,
		},
		Verbose:       opts.Verbose,
		CaptureStdout: true,
	})
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	src, err := ParseJSON(res.Stdout)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	src.Path = path

	// ffprobe prints the human-readable stream summary on stderr.
	txt, err := runner.Run(ctx, util.CmdSpec{
		Path:    opts.FFprobePath,
		Args:    []string{"-hide_banner", path},
		Verbose: opts.Verbose,
	})
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	src.Text = strings.TrimSpace(string(txt.Stderr))

	return src, nil
}

// ParseJSON converts raw ffprobe JSON output into a SourceVideo.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*SourceVideo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildSource(&raw)
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Duration    string         `json:"duration"`
	RFrameRate  string         `json:"r_frame_rate"`
	Disposition map[string]int `json:"disposition"`
}

func buildSource(raw *ffprobeOutput) (*SourceVideo, error) {
	var videos []*ffprobeStream
	for i := range raw.Streams {
		if raw.Streams[i].CodecType == "video" {
			videos = append(videos, &raw.Streams[i])
		}
	}
	if len(videos) == 0 {
		return nil, ErrNoVideoStream
	}

	// Prefer the stream the container marks as default.
	stream := videos[0]
	for _, v := range videos {
		if v.Disposition["default"] == 1 {
			stream = v
			break
		}
	}

	num, den, err := parseRational(stream.RFrameRate)
	if err != nil {
		return nil, fmt.Errorf("frame rate %q: %w", stream.RFrameRate, err)
	}

	// Stream-level duration with container-level fallback.
	dur := parseFloat(stream.Duration)
	if dur == 0 {
		dur = parseFloat(raw.Format.Duration)
	}

	return &SourceVideo{
		Width:        stream.Width,
		Height:       stream.Height,
		Duration:     dur,
		FrameRateNum: num,
		FrameRateDen: den,
	}, nil
}

func parseRational(s string) (int, int, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, errors.New("not in num/den form")
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, 0, err
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil {
		return 0, 0, err
	}
	if d == 0 {
		return 0, 0, errors.New("zero denominator")
	}
	return n, d, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
