package encoder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipsheet/internal/util"
)

// fileWritingRunner simulates an ffmpeg trial by writing every output
// file named in the argument list with a configured size.
type fileWritingRunner struct {
	sizes map[string]int // basename -> bytes
	specs []util.CmdSpec
}

func (r *fileWritingRunner) Run(_ context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	r.specs = append(r.specs, spec)
	for _, a := range spec.Args {
		base := filepath.Base(a)
		if size, ok := r.sizes[base]; ok {
			if err := os.WriteFile(a, make([]byte, size), 0o644); err != nil {
				return util.CmdResult{}, err
			}
		}
	}
	return util.CmdResult{}, nil
}

func testVariants() []DitherVariant {
	return []DitherVariant{
		{Name: "bayer2.gif", Filter: "dither=bayer:bayer_scale=2"},
		{Name: "floyd_steinberg.gif", Filter: "dither=floyd_steinberg"},
		{Name: "sierra2.gif", Filter: "dither=sierra2"},
	}
}

func TestTrialGIFKeepsSmallestVariant(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "v1") + "-"
	out := filepath.Join(dir, "v1-clips.gif")
	r := &fileWritingRunner{sizes: map[string]int{
		"v1-bayer2.gif":          300,
		"v1-floyd_steinberg.gif": 120,
		"v1-sierra2.gif":         500,
	}}
	ff := NewFFmpeg("ffmpeg", r, false)

	size, err := ff.TrialGIF(context.Background(), "playlist.txt", GIFParams{Depth: 256, Rate: 25, MultiPalette: true}, testVariants(), prefix, out)
	if err != nil {
		t.Fatalf("TrialGIF: %v", err)
	}
	if size != 120 {
		t.Errorf("size = %d, want 120", size)
	}
	if got, _ := util.FileSize(out); got != 120 {
		t.Errorf("winner at %s has %d bytes, want 120", out, got)
	}

	// Exactly the canonical output remains.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "v1-clips.gif" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("leftover files: %v, want only v1-clips.gif", names)
	}
}

func TestTrialGIFTiePrefersEarliestVariant(t *testing.T) {
	dir := t.TempDir()
	prefix := dir + string(os.PathSeparator)
	out := filepath.Join(dir, "clips.gif")
	r := &fileWritingRunner{sizes: map[string]int{
		"bayer2.gif":          200,
		"floyd_steinberg.gif": 200,
		"sierra2.gif":         200,
	}}
	ff := NewFFmpeg("ffmpeg", r, false)

	if _, err := ff.TrialGIF(context.Background(), "playlist.txt", GIFParams{Depth: 128, Rate: 12, MultiPalette: false}, testVariants(), prefix, out); err != nil {
		t.Fatalf("TrialGIF: %v", err)
	}
	// All sizes equal: the first-listed variant must win the rename, which
	// is observable through the single invocation's argument order only;
	// assert instead that no variant files survive beside the output.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected a single surviving file, got %d", len(entries))
	}
}

func TestTrialGIFSingleInvocationWithAllVariants(t *testing.T) {
	dir := t.TempDir()
	r := &fileWritingRunner{sizes: map[string]int{
		"bayer2.gif":          1,
		"floyd_steinberg.gif": 2,
		"sierra2.gif":         3,
	}}
	ff := NewFFmpeg("ffmpeg", r, false)

	p := GIFParams{Depth: 192, Rate: 20, MultiPalette: true}
	if _, err := ff.TrialGIF(context.Background(), "list.txt", p, testVariants(), dir+string(os.PathSeparator), filepath.Join(dir, "clips.gif")); err != nil {
		t.Fatalf("TrialGIF: %v", err)
	}
	if len(r.specs) != 1 {
		t.Fatalf("invocations = %d, want 1 (variants fan out of one encode)", len(r.specs))
	}
	args := strings.Join(r.specs[0].Args, " ")
	if !strings.Contains(args, "-f concat -safe 0 -i list.txt") {
		t.Errorf("missing concat input: %v", args)
	}
	for _, v := range testVariants() {
		if !strings.Contains(args, v.Filter) {
			t.Errorf("missing dither filter %q", v.Filter)
		}
	}
	if !strings.Contains(args, "max_colors=192") {
		t.Errorf("missing palette depth in filter: %v", args)
	}
}

func TestPaletteFilterModes(t *testing.T) {
	multi := PaletteFilter(GIFParams{Depth: 256, Rate: 25, MultiPalette: true}, "dither=sierra2")
	single := PaletteFilter(GIFParams{Depth: 256, Rate: 25, MultiPalette: false}, "dither=sierra2")

	for _, want := range []string{"fps=25", "max_colors=256", "stats_mode=single", "reserve_transparent=0", "new=1", "dither=sierra2"} {
		if !strings.Contains(multi, want) {
			t.Errorf("multi-palette filter missing %q: %s", want, multi)
		}
	}
	for _, want := range []string{"stats_mode=diff", "reserve_transparent=1", "new=0"} {
		if !strings.Contains(single, want) {
			t.Errorf("single-palette filter missing %q: %s", want, single)
		}
	}
}

func TestTrialWebPReadsOutputSize(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clips.webp")
	r := &fileWritingRunner{sizes: map[string]int{"clips.webp": 4321}}
	ff := NewFFmpeg("ffmpeg", r, false)

	size, err := ff.TrialWebP(context.Background(), "list.txt", 24, 60, out)
	if err != nil {
		t.Fatalf("TrialWebP: %v", err)
	}
	if size != 4321 {
		t.Errorf("size = %d, want 4321", size)
	}
	args := strings.Join(r.specs[0].Args, " ")
	for _, want := range []string{"libwebp_anim", "-quality 60", "fps=24", "-loop 0"} {
		if !strings.Contains(args, want) {
			t.Errorf("missing %q in args: %v", want, args)
		}
	}
}
