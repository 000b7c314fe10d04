package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipsheet/internal/encoder"
	"clipsheet/internal/model"
	"clipsheet/internal/util"
	"clipsheet/internal/util/deps"
)

const probeJSON = `{
  "format": {"duration": "100.000000"},
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080,
     "duration": "100.000000", "r_frame_rate": "25/1",
     "disposition": {"default": 1}}
  ]
}`

// toolRunner fakes the whole external toolchain: ffprobe answers with
// canned metadata, everything else writes its output file arguments.
type toolRunner struct {
	specs     []util.CmdSpec
	gifSize   int64
	frameSize int64
	failStage string // substring of args; matching invocations fail
}

func (r *toolRunner) Run(_ context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	r.specs = append(r.specs, spec)
	joined := strings.Join(spec.Args, " ")

	if strings.Contains(spec.Path, "ffprobe") {
		if strings.Contains(joined, "-print_format") {
			return util.CmdResult{Stdout: []byte(probeJSON)}, nil
		}
		return util.CmdResult{Stderr: []byte("Input #0, mov,mp4: 'test.mp4'\n  Stream #0:0: Video: h264")}, nil
	}

	if r.failStage != "" && strings.Contains(joined, r.failStage) {
		return util.CmdResult{Stderr: []byte("boom")}, errors.New("exit status 1")
	}

	for _, a := range spec.Args {
		size := r.frameSize
		switch filepath.Ext(a) {
		case ".gif", ".webp":
			size = r.gifSize
		case ".mkv", ".png", ".jpg":
		default:
			continue
		}
		if err := os.WriteFile(a, make([]byte, size), 0o644); err != nil {
			return util.CmdResult{}, err
		}
	}
	return util.CmdResult{}, nil
}

func (r *toolRunner) ffmpegCalls() []util.CmdSpec {
	var out []util.CmdSpec
	for _, s := range r.specs {
		if strings.HasSuffix(s.Path, "ffmpeg") {
			out = append(out, s)
		}
	}
	return out
}

func testTools() deps.Tools {
	return deps.Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", Montage: "montage", Convert: "convert"}
}

func testOptions(dir string) model.CLIOptions {
	return model.CLIOptions{
		OutDir:     dir,
		Columns:    2,
		Rows:       2,
		Width:      100,
		Frames:     2,
		Clips:      2,
		ClipWidth:  120,
		ClipLength: 2,
		ClipBudget: 1 << 20,
		ClipFormat: model.FormatGIF,
		Prefix:     "v-",
	}
}

func TestRunJobFullPipeline(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 100, frameSize: 100}
	svc := NewService(
		WithTools(testTools()),
		WithCLIOptions(testOptions(dir)),
		WithRunner(r),
	)

	res, err := svc.RunJob(context.Background(), "test.mp4")
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	pv := res.Preview
	if pv == nil {
		t.Fatal("no preview result")
	}

	if pv.Clip == nil {
		t.Fatal("no clip artifact")
	}
	if pv.Clip.Path != filepath.Join(dir, "v-clips.gif") {
		t.Errorf("clip path = %s", pv.Clip.Path)
	}
	if pv.Clip.Bytes != 100 || pv.Clip.Trials != 1 {
		t.Errorf("clip = %d bytes after %d trials, want 100 after 1", pv.Clip.Bytes, pv.Clip.Trials)
	}
	if pv.Clip.Depth != 256 || pv.Clip.FrameRate != 25 || !pv.Clip.MultiPalette {
		t.Errorf("clip params = %d/%v/multi=%v, want 256/25/true",
			pv.Clip.Depth, pv.Clip.FrameRate, pv.Clip.MultiPalette)
	}

	if len(pv.FramePaths) != 2 {
		t.Fatalf("frames = %d, want 2", len(pv.FramePaths))
	}
	if pv.MontagePath != filepath.Join(dir, "v-montage.jpg") {
		t.Errorf("montage path = %s", pv.MontagePath)
	}

	// Only final artifacts survive: the clip windows, playlist, palette
	// variants, montage tiles, grid and label are all cleaned up.
	entries, _ := os.ReadDir(dir)
	got := make(map[string]bool, len(entries))
	for _, e := range entries {
		got[e.Name()] = true
	}
	want := []string{"v-clips.gif", "v-frame1.png", "v-frame2.png", "v-montage.jpg"}
	if len(got) != len(want) {
		t.Errorf("surviving files = %v, want %v", keys(got), want)
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("missing artifact %s", name)
		}
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRunJobClipWindowsSeekSource(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 50, frameSize: 50}
	opts := testOptions(dir)
	opts.Frames = 0
	opts.Columns = 0
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	if _, err := svc.RunJob(context.Background(), "test.mp4"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}

	calls := r.ffmpegCalls()
	if len(calls) < 1 {
		t.Fatal("no ffmpeg calls recorded")
	}
	// First call extracts both windows in one batch. 100s usable, 2 clips
	// of 2s: centers at 33.33/66.67, starts one second earlier.
	extract := strings.Join(calls[0].Args, " ")
	for _, want := range []string{
		"-vsync passthrough",
		"-ss 32.3333333333333", "-ss 65.6666666666666",
		"-frames:v 50", // 2s at 25 fps
		"-x265-params lossless=1",
		"scale=120:-1,setsar=1",
		"-map 0:v", "-map 1:v",
	} {
		if !strings.Contains(extract, want) {
			t.Errorf("extraction call missing %q:\n%s", want, extract)
		}
	}

	// The trial consumes the concat playlist, whose entries are the
	// prefixed basenames relative to the playlist's directory.
	if util.FileExists(filepath.Join(dir, "v-playlist.txt")) {
		t.Fatal("playlist not cleaned up")
	}
	trial := strings.Join(calls[1].Args, " ")
	if !strings.Contains(trial, "-f concat -safe 0 -i "+filepath.Join(dir, "v-playlist.txt")) {
		t.Errorf("trial call missing concat input:\n%s", trial)
	}
}

func TestRunJobPlaylistOrder(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 50}
	opts := testOptions(dir)
	opts.Frames = 0
	opts.Columns = 0
	opts.Clips = 3
	opts.Keep = true // keep intermediates so the playlist survives
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	if _, err := svc.RunJob(context.Background(), "test.mp4"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "v-playlist.txt"))
	if err != nil {
		t.Fatalf("read playlist: %v", err)
	}
	want := "file 'v-clip1.mkv'\nfile 'v-clip2.mkv'\nfile 'v-clip3.mkv'\n"
	if string(data) != want {
		t.Errorf("playlist = %q, want %q", string(data), want)
	}
}

func TestRunJobKeepReusesExistingClips(t *testing.T) {
	dir := t.TempDir()
	// Pre-existing first window; only the second needs extraction.
	if err := os.WriteFile(filepath.Join(dir, "v-clip1.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &toolRunner{gifSize: 50}
	opts := testOptions(dir)
	opts.Frames = 0
	opts.Columns = 0
	opts.Keep = true
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	if _, err := svc.RunJob(context.Background(), "test.mp4"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	extract := strings.Join(r.ffmpegCalls()[0].Args, " ")
	if strings.Contains(extract, "v-clip1.mkv") {
		t.Errorf("re-extracted kept clip:\n%s", extract)
	}
	if !strings.Contains(extract, "v-clip2.mkv") {
		t.Errorf("missing extraction of second clip:\n%s", extract)
	}
}

func TestRunJobDryRunPlansWithoutEncoding(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{}
	opts := testOptions(dir)
	opts.DryRun = true
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	res, err := svc.RunJob(context.Background(), "test.mp4")
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !res.Planned || res.Plan == nil {
		t.Fatal("expected a plan")
	}
	if len(res.Plan.Windows) != 2 || res.Plan.ClipFrames != 50 {
		t.Errorf("plan windows/frames = %d/%d, want 2/50", len(res.Plan.Windows), res.Plan.ClipFrames)
	}
	if res.Plan.FrameRate != "25/1" || res.Plan.Duration != 100 {
		t.Errorf("plan metadata = %s/%v", res.Plan.FrameRate, res.Plan.Duration)
	}
	if res.Plan.Rows != 2 || res.Plan.Cells != 4 {
		t.Errorf("plan rows/cells = %d/%d, want 2/4", res.Plan.Rows, res.Plan.Cells)
	}
	if got := len(r.ffmpegCalls()); got != 0 {
		t.Errorf("dry run issued %d ffmpeg calls", got)
	}
}

func TestRunJobSearchFailureRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 4096, frameSize: 50} // never fits
	opts := testOptions(dir)
	opts.Frames = 0
	opts.Columns = 0
	opts.ClipBudget = 100
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	_, err := svc.RunJob(context.Background(), "test.mp4")
	if !errors.Is(err, encoder.ErrBudgetUnreachable) {
		t.Fatalf("err = %v, want ErrBudgetUnreachable", err)
	}
	if util.FileExists(filepath.Join(dir, "v-clips.gif")) {
		t.Error("oversized clip left at canonical output path")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover files after failed search: %v", entries)
	}
}

func TestRunJobDropsOversizedFrames(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{frameSize: 5000}
	opts := testOptions(dir)
	opts.Clips = 0
	opts.Columns = 0
	opts.ClipBudget = 1000
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	res, err := svc.RunJob(context.Background(), "test.mp4")
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(res.Preview.FramePaths) != 0 {
		t.Errorf("kept %d oversized frames", len(res.Preview.FramePaths))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("oversized frames not deleted: %v", entries)
	}
}

func TestRunJobWebPFormat(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 100, frameSize: 50}
	opts := testOptions(dir)
	opts.Frames = 0
	opts.Columns = 0
	opts.ClipFormat = model.FormatWebP
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	res, err := svc.RunJob(context.Background(), "test.mp4")
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	clip := res.Preview.Clip
	if clip.Path != filepath.Join(dir, "v-clips.webp") {
		t.Errorf("clip path = %s", clip.Path)
	}
	if clip.Quality != encoder.WebPStartQuality {
		t.Errorf("quality = %d, want %d", clip.Quality, encoder.WebPStartQuality)
	}
	trial := strings.Join(r.ffmpegCalls()[1].Args, " ")
	for _, want := range []string{"libwebp_anim", "-quality 75", "fps=25"} {
		if !strings.Contains(trial, want) {
			t.Errorf("webp trial missing %q:\n%s", want, trial)
		}
	}
}

func TestRunJobMontageTimestampOverlay(t *testing.T) {
	dir := t.TempDir()
	r := &toolRunner{gifSize: 50, frameSize: 50}
	opts := testOptions(dir)
	opts.Clips = 0
	opts.Frames = 0
	svc := NewService(WithTools(testTools()), WithCLIOptions(opts), WithRunner(r))

	if _, err := svc.RunJob(context.Background(), "test.mp4"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	tiles := strings.Join(r.ffmpegCalls()[0].Args, " ")
	for _, want := range []string{
		`drawtext=text=%{pts\\:hms}`,
		"setpts=(0+1)/TB*20", // 100s / (4 cells + 1)
		"scale=100:-1",
	} {
		if !strings.Contains(tiles, want) {
			t.Errorf("tile extraction missing %q:\n%s", want, tiles)
		}
	}

	// Composition order: grid, caption, then label stacked above the grid.
	var comps []util.CmdSpec
	for _, s := range r.specs {
		if s.Path == "montage" || s.Path == "convert" {
			comps = append(comps, s)
		}
	}
	if len(comps) != 3 {
		t.Fatalf("composition calls = %d, want 3", len(comps))
	}
	appendArgs := strings.Join(comps[2].Args, " ")
	label := filepath.Join(dir, "v-label.png")
	grid := filepath.Join(dir, "v-montage.png")
	if !strings.Contains(appendArgs, label+" "+grid) {
		t.Errorf("label not appended above grid:\n%s", appendArgs)
	}
}
