// Package encoder drives ffmpeg: batched extraction jobs, trial variant
// encodes, and the size-targeting parameter search.
package encoder

import (
	"context"
	"strconv"

	"clipsheet/internal/util"
)

// FFmpeg issues ffmpeg invocations through an injectable runner.
type FFmpeg struct {
	Path    string
	Runner  util.CmdRunner
	Verbose bool
}

// NewFFmpeg returns an FFmpeg bound to path, using the default runner
// when runner is nil.
func NewFFmpeg(path string, runner util.CmdRunner, verbose bool) *FFmpeg {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &FFmpeg{Path: path, Runner: runner, Verbose: verbose}
}

// run invokes ffmpeg with the standard prelude and wraps any failure in
// an EncodeError naming the stage.
func (f *FFmpeg) run(ctx context.Context, stage string, args []string) error {
	full := append([]string{"-y", "-hide_banner"}, args...)
	res, err := f.Runner.Run(ctx, util.CmdSpec{
		Path:    f.Path,
		Args:    full,
		Verbose: f.Verbose,
	})
	if err != nil {
		return &EncodeError{Stage: stage, Stderr: string(res.Stderr), Err: err}
	}
	return nil
}

// formatSeconds renders a seek offset without float formatting noise.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRate renders a frame rate for use inside an fps= filter.
func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
