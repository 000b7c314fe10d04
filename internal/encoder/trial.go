package encoder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"clipsheet/internal/util"
)

// DitherVariant names one palette-reduction strategy tried per GIF trial.
// The catalogue is passed in explicitly so tests can inject a small one.
type DitherVariant struct {
	Name   string // output basename, e.g. "bayer2.gif"
	Filter string // paletteuse dither expression
}

// DefaultDithers is the fixed catalogue of dithering algorithms trialed
// per iteration. Order matters: ties on size keep the earliest variant.
func DefaultDithers() []DitherVariant {
	return []DitherVariant{
		{Name: "bayer1.gif", Filter: "dither=bayer:bayer_scale=1"},
		{Name: "bayer2.gif", Filter: "dither=bayer:bayer_scale=2"},
		{Name: "bayer3.gif", Filter: "dither=bayer:bayer_scale=3"},
		{Name: "bayer4.gif", Filter: "dither=bayer:bayer_scale=4"},
		{Name: "floyd_steinberg.gif", Filter: "dither=floyd_steinberg"},
		{Name: "sierra2.gif", Filter: "dither=sierra2"},
		{Name: "sierra2_4a.gif", Filter: "dither=sierra2_4a"},
	}
}

// GIFParams is the variable state the search controller mutates between
// trials on the palette path.
type GIFParams struct {
	Depth        int     // palette size, colors
	Rate         float64 // output frame rate
	MultiPalette bool    // per-segment palettes vs. one global diff palette
}

// PaletteFilter builds the palettegen/paletteuse filter chain for one
// dither variant at the given parameters. Multi-palette mode generates an
// opaque palette per segment; single-palette mode reserves a transparent
// entry and feeds frame diffs into one global palette, which compresses
// better at the cost of visible quality.
func PaletteFilter(p GIFParams, dither string) string {
	statsMode := "stats_mode=single"
	transparent := "reserve_transparent=0"
	newPalette := "new=1"
	if !p.MultiPalette {
		statsMode = "stats_mode=diff"
		transparent = "reserve_transparent=1"
		newPalette = "new=0"
	}
	return fmt.Sprintf(
		"fps=%s,split[a][b],[a]fifo[c],[b]palettegen=max_colors=%d:%s:%s[p],[c][p]paletteuse=%s:%s",
		formatRate(p.Rate), p.Depth, statsMode, transparent, dither, newPalette,
	)
}

// TrialGIF encodes the concatenated manifest once per dither variant in a
// single ffmpeg invocation, keeps the smallest output, renames it to
// outPath and returns its size. Losing variants are deleted as they are
// superseded, so at most two candidate files exist at any moment.
func (f *FFmpeg) TrialGIF(ctx context.Context, manifest string, p GIFParams, variants []DitherVariant, prefix, outPath string) (int64, error) {
	if len(variants) == 0 {
		return 0, fmt.Errorf("clip trial: empty dither catalogue")
	}

	args := []string{"-f", "concat", "-safe", "0", "-i", manifest}
	paths := make([]string, len(variants))
	for i, v := range variants {
		paths[i] = prefix + v.Name
		args = append(args, "-filter:v", PaletteFilter(p, v.Filter), paths[i])
	}
	if err := f.run(ctx, "clip trial", args); err != nil {
		return 0, err
	}

	bestPath := ""
	var bestSize int64
	for _, path := range paths {
		size, err := util.FileSize(path)
		if err != nil {
			return 0, fmt.Errorf("clip trial: %w", err)
		}
		switch {
		case bestPath == "":
			bestPath, bestSize = path, size
		case size < bestSize:
			_ = os.Remove(bestPath)
			bestPath, bestSize = path, size
		default:
			// Ties keep the earlier-enumerated variant.
			_ = os.Remove(path)
		}
	}

	if err := os.Rename(bestPath, outPath); err != nil {
		return 0, fmt.Errorf("clip trial: %w", err)
	}
	return bestSize, nil
}

// TrialWebP encodes the manifest once at the given quality and returns
// the resulting size. The WebP path needs no variant fan-out: quality is
// the only knob.
func (f *FFmpeg) TrialWebP(ctx context.Context, manifest string, rate float64, quality int, outPath string) (int64, error) {
	args := []string{
		"-f", "concat", "-safe", "0", "-i", manifest,
		"-filter:v", "fps=" + formatRate(rate),
		"-codec:v", "libwebp_anim",
		"-quality", strconv.Itoa(quality),
		"-loop", "0",
		"-an",
		outPath,
	}
	if err := f.run(ctx, "clip trial", args); err != nil {
		return 0, err
	}
	size, err := util.FileSize(outPath)
	if err != nil {
		return 0, fmt.Errorf("clip trial: %w", err)
	}
	return size, nil
}
