package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clipsheet/internal/encoder"
	"clipsheet/internal/model"
	"clipsheet/internal/montage"
	"clipsheet/internal/probe"
	"clipsheet/internal/progress"
	"clipsheet/internal/util"
	"clipsheet/internal/util/deps"
	"clipsheet/internal/util/format"
)

// Canonical artifact names, always preceded by the per-input prefix.
const (
	PlaylistFile = "playlist.txt"
	ClipsGIF     = "clips.gif"
	ClipsWebP    = "clips.webp"
	LabelFile    = "label.png"
	MontagePNG   = "montage.png"
	MontageJPG   = "montage.jpg"
)

// Service orchestrates probe → clips → search → frames → montage for one
// input file.
type Service struct {
	tools    deps.Tools
	opts     model.CLIOptions
	runner   util.CmdRunner
	reporter progress.Reporter
	jobID    string
	prefix   string // per-input file name prefix, unique across inputs
}

// Option configures a Service.
type Option func(*Service)

// WithTools sets the external binary paths.
func WithTools(t deps.Tools) Option {
	return func(s *Service) { s.tools = t }
}

// WithCLIOptions sets the CLI options used for planning and execution.
func WithCLIOptions(o model.CLIOptions) Option {
	return func(s *Service) { s.opts = o }
}

// WithRunner injects a custom command runner (useful for testing).
func WithRunner(r util.CmdRunner) Option {
	return func(s *Service) { s.runner = r }
}

// WithReporter attaches a progress reporter (used by TUI).
func WithReporter(rp progress.Reporter) Option {
	return func(s *Service) { s.reporter = rp }
}

// WithJobID sets the job ID associated with reporter events.
func WithJobID(id string) Option {
	return func(s *Service) { s.jobID = id }
}

// WithPrefix sets the per-input artifact prefix. Uniqueness across
// concurrent inputs is what keeps their temporary files from colliding.
func WithPrefix(p string) Option {
	return func(s *Service) { s.prefix = p }
}

// NewService constructs a Service, applying defaults for missing parts.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	if s.runner == nil {
		s.runner = util.NewDefaultRunner()
	}
	if s.prefix == "" {
		s.prefix = s.opts.Prefix
	}
	return s
}

// Plan describes the work RunJob would do, for dry-run introspection.
type Plan struct {
	Input      string
	Duration   float64
	Width      int
	Height     int
	FrameRate  string // exact rational, "num/den"
	Windows    []Window
	ClipFrames int
	Budget     int64
	ClipOutput string
	Frames     int
	Rows       int
	Cells      int
}

// Result is the outcome of RunJob.
type Result struct {
	Input   string
	Planned bool
	Plan    *Plan
	Preview *model.PreviewResult
}

// RunJob executes the full preview pipeline for a single input file.
// It never prints; when a Reporter is present, it emits progress events.
func (s *Service) RunJob(ctx context.Context, input string) (Result, error) {
	res := Result{Input: input}
	if s.tools.FFprobe == "" {
		return res, fmt.Errorf("ffprobe path is required")
	}
	if !s.opts.DryRun && s.tools.FFmpeg == "" {
		return res, fmt.Errorf("ffmpeg path is required")
	}

	s.update(progress.StageProbe, -1, "Probing "+filepath.Base(input))
	src, err := probe.Probe(ctx, input, probe.Options{
		FFprobePath: s.tools.FFprobe,
		Verbose:     s.opts.Verbose,
		Runner:      s.runner,
	})
	if err != nil {
		return res, fmt.Errorf("probe: %w", err)
	}

	if s.opts.DryRun {
		res.Planned = true
		res.Plan = s.plan(src)
		s.emitPlanned(res.Plan)
		return res, nil
	}

	ff := encoder.NewFFmpeg(s.tools.FFmpeg, s.runner, s.opts.Verbose)
	preview := &model.PreviewResult{Input: input}

	if s.opts.Clips > 0 {
		clip, err := s.buildClip(ctx, ff, src)
		if err != nil {
			return res, fmt.Errorf("clip: %w", err)
		}
		preview.Clip = clip
	}

	if s.opts.Frames > 0 {
		paths, err := s.extractFrames(ctx, ff, src)
		if err != nil {
			return res, fmt.Errorf("frames: %w", err)
		}
		preview.FramePaths = paths
	}

	if s.opts.Columns > 0 && s.opts.Rows > 0 {
		sheet, err := s.buildMontage(ctx, ff, src)
		if err != nil {
			return res, fmt.Errorf("montage: %w", err)
		}
		preview.MontagePath = sheet
	}

	res.Preview = preview
	s.emitCompleted(preview)
	return res, nil
}

// artifact returns the full path of a prefixed artifact file.
func (s *Service) artifact(name string) string {
	return filepath.Join(s.opts.OutDir, s.prefix+name)
}

// artifactPrefix returns the path prefix shared by every artifact.
func (s *Service) artifactPrefix() string {
	return strings.TrimSuffix(s.artifact(ClipsGIF), ClipsGIF)
}

func (s *Service) clipOutput() string {
	if s.opts.ClipFormat == model.FormatWebP {
		return s.artifact(ClipsWebP)
	}
	return s.artifact(ClipsGIF)
}

func (s *Service) plan(src *probe.SourceVideo) *Plan {
	rows := 0
	cells := 0
	if s.opts.Columns > 0 && s.opts.Rows > 0 {
		rows = MontageRows(src.Duration, s.opts.Columns, s.opts.Rows)
		cells = s.opts.Columns * rows
	}
	var windows []Window
	clipFrames := 0
	if s.opts.Clips > 0 {
		windows = PlanClips(src.Duration, s.opts.CutStart, s.opts.CutEnd, s.opts.ClipLength, s.opts.Clips)
		clipFrames = ClipFrameCount(s.opts.ClipLength, src.FrameRateNum, src.FrameRateDen)
	}
	return &Plan{
		Input:      src.Path,
		Duration:   src.Duration,
		Width:      src.Width,
		Height:     src.Height,
		FrameRate:  fmt.Sprintf("%d/%d", src.FrameRateNum, src.FrameRateDen),
		Windows:    windows,
		ClipFrames: clipFrames,
		Budget:     s.opts.ClipBudget,
		ClipOutput: s.clipOutput(),
		Frames:     s.opts.Frames,
		Rows:       rows,
		Cells:      cells,
	}
}

// buildClip extracts the clip windows, then drives the size-targeting
// search until the animated preview fits the budget.
func (s *Service) buildClip(ctx context.Context, ff *encoder.FFmpeg, src *probe.SourceVideo) (*model.ClipArtifact, error) {
	windows := PlanClips(src.Duration, s.opts.CutStart, s.opts.CutEnd, s.opts.ClipLength, s.opts.Clips)
	frames := ClipFrameCount(s.opts.ClipLength, src.FrameRateNum, src.FrameRateDen)
	manifest := s.artifact(PlaylistFile)
	d := Digits(len(windows))

	var jobs []encoder.Job
	clipFiles := make([]string, 0, len(windows))
	var playlist strings.Builder
	for i, w := range windows {
		name := s.artifact(fmt.Sprintf("clip%0*d.mkv", d, i+1))
		clipFiles = append(clipFiles, name)
		// Manifest order is concatenation order, even for skipped windows.
		fmt.Fprintf(&playlist, "file '%s'\n", filepath.Base(name))
		if s.opts.Keep && util.FileExists(name) {
			continue
		}
		jobs = append(jobs, encoder.Job{
			InputArgs: []string{"-ss", formatSeconds(w.Start), "-i", src.Path},
			OutputArgs: []string{
				"-frames:v", strconv.Itoa(frames),
				// Lossless intermediate: the palette/quality pass is the
				// only lossy generation.
				"-pix_fmt", "yuv444p",
				"-filter:v", fmt.Sprintf("scale=%d:-1,setsar=1", s.opts.ClipWidth),
				"-codec:v", "libx265",
				"-preset:v", "ultrafast",
				"-x265-params", "lossless=1",
				"-an", "-sn", "-dn",
				name,
			},
		})
	}
	if err := os.WriteFile(manifest, []byte(playlist.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	s.update(progress.StageClips, -1, fmt.Sprintf("Extracting %d clip windows", len(jobs)))
	if err := ff.Dispatch(ctx, "clip extraction", jobs, encoder.DefaultBatchSize); err != nil {
		s.cleanupClips(clipFiles, manifest)
		return nil, err
	}

	out := s.clipOutput()
	art, err := s.searchClip(ctx, ff, src, manifest, out)
	if err != nil {
		// Leave no partial artifact at the canonical path.
		_ = util.RemoveIfExists(out)
		s.cleanupClips(clipFiles, manifest)
		return nil, err
	}
	s.cleanupClips(clipFiles, manifest)
	return art, nil
}

func (s *Service) searchClip(ctx context.Context, ff *encoder.FFmpeg, src *probe.SourceVideo, manifest, out string) (*model.ClipArtifact, error) {
	lim := encoder.DefaultLimits()

	if s.opts.ClipFormat == model.FormatWebP {
		rate := math.Min(src.FrameRate(), lim.MaxRate)
		trial := func(ctx context.Context, quality int) (int64, error) {
			s.update(progress.StageSearch, -1, fmt.Sprintf("Trial encode at quality %d", quality))
			return ff.TrialWebP(ctx, manifest, rate, quality, out)
		}
		qres, err := encoder.SearchQuality(ctx, trial, s.opts.ClipBudget, lim.MaxTrials)
		if err != nil {
			return nil, err
		}
		return &model.ClipArtifact{
			Path:    out,
			Bytes:   qres.Bytes,
			Trials:  qres.Trials,
			Quality: qres.Quality,
		}, nil
	}

	variants := encoder.DefaultDithers()
	prefix := s.artifactPrefix()
	trial := func(ctx context.Context, p encoder.GIFParams) (int64, error) {
		mode := "multi"
		if !p.MultiPalette {
			mode = "single"
		}
		s.update(progress.StageSearch, -1,
			fmt.Sprintf("Trial encode: %d colors @ %.4g fps, %s palette", p.Depth, p.Rate, mode))
		return ff.TrialGIF(ctx, manifest, p, variants, prefix, out)
	}
	gres, err := encoder.SearchGIF(ctx, trial, src.FrameRate(), s.opts.ClipBudget, lim)
	if err != nil {
		return nil, err
	}
	return &model.ClipArtifact{
		Path:         out,
		Bytes:        gres.Bytes,
		Trials:       gres.Trials,
		Depth:        gres.Params.Depth,
		FrameRate:    gres.Params.Rate,
		MultiPalette: gres.Params.MultiPalette,
	}, nil
}

func (s *Service) cleanupClips(clipFiles []string, manifest string) {
	if s.opts.Keep {
		return
	}
	util.RemoveAllFiles(clipFiles)
	_ = os.Remove(manifest)
}

// extractFrames writes evenly spaced full-size stills, then deletes any
// still that alone exceeds the clip budget.
func (s *Service) extractFrames(ctx context.Context, ff *encoder.FFmpeg, src *probe.SourceVideo) ([]string, error) {
	ts := FrameTimestamps(src.Duration, s.opts.CutStart, s.opts.CutEnd, s.opts.Frames)
	dt := src.FrameInterval()
	d := Digits(s.opts.Frames)

	jobs := make([]encoder.Job, 0, len(ts))
	paths := make([]string, 0, len(ts))
	for i, t := range ts {
		name := s.artifact(fmt.Sprintf("frame%0*d.png", d, i+1))
		paths = append(paths, name)
		jobs = append(jobs, encoder.Job{
			InputArgs:  []string{"-ss", formatSeconds(t), "-to", formatSeconds(t + dt), "-i", src.Path},
			OutputArgs: []string{"-frames:v", "1", name},
		})
	}

	s.update(progress.StageFrames, -1, fmt.Sprintf("Extracting %d frames", len(jobs)))
	if err := ff.Dispatch(ctx, "frame extraction", jobs, encoder.DefaultBatchSize); err != nil {
		return nil, err
	}

	kept := paths[:0]
	for _, p := range paths {
		size, err := util.FileSize(p)
		if err != nil {
			return nil, fmt.Errorf("stat frame: %w", err)
		}
		if s.opts.ClipBudget > 0 && size > s.opts.ClipBudget {
			_ = os.Remove(p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, nil
}

// buildMontage extracts timestamped tiles over the full duration, grids
// them and appends the caption label on top.
func (s *Service) buildMontage(ctx context.Context, ff *encoder.FFmpeg, src *probe.SourceVideo) (string, error) {
	rows := MontageRows(src.Duration, s.opts.Columns, s.opts.Rows)
	cells := s.opts.Columns * rows
	dtCell := src.Duration / float64(cells+1)
	dtFrame := src.FrameInterval()
	d := Digits(cells)

	jobs := make([]encoder.Job, 0, cells)
	tiles := make([]string, 0, cells)
	for i := 0; i < cells; i++ {
		t := float64(i+1) * dtCell
		name := s.artifact(fmt.Sprintf("montage%0*d.png", d, i))
		tiles = append(tiles, name)
		filter := strings.Join([]string{
			fmt.Sprintf("scale=%d:-1", s.opts.Width),
			// Restore the source timestamp so drawtext overlays wall-clock
			// position, not the single extracted frame's zero pts.
			fmt.Sprintf("setpts=(%d+1)/TB*%s", i, formatSeconds(dtCell)),
			fmt.Sprintf(`drawtext=text=%%{pts\\:hms}:fontfile=%s:fontsize=%d:x=4:y=4:shadowx=-2:shadowy=-2:fontcolor=%s:shadowcolor=%s`,
				montage.FontFile, montage.FontSize, montage.FontColor, montage.FontBackground),
		}, ",")
		jobs = append(jobs, encoder.Job{
			InputArgs:  []string{"-ss", formatSeconds(t), "-to", formatSeconds(t + dtFrame), "-i", src.Path},
			OutputArgs: []string{"-filter:v", filter, "-frames:v", "1", name},
		})
	}

	s.update(progress.StageMontage, -1, fmt.Sprintf("Composing %dx%d contact sheet", s.opts.Columns, rows))
	if err := ff.Dispatch(ctx, "montage frame extraction", jobs, encoder.DefaultBatchSize); err != nil {
		return "", err
	}

	comp := montage.NewCompositor(s.tools.Montage, s.tools.Convert, s.runner, s.opts.Verbose)
	grid := s.artifact(MontagePNG)
	label := s.artifact(LabelFile)
	final := s.artifact(MontageJPG)

	if err := comp.Tile(ctx, grid, s.opts.Columns, rows, tiles); err != nil {
		return "", err
	}
	if err := comp.Caption(ctx, label, src.Text, s.opts.Columns*s.opts.Width); err != nil {
		return "", err
	}
	if err := comp.AppendVertical(ctx, final, label, grid); err != nil {
		return "", err
	}

	util.RemoveAllFiles(tiles)
	_ = os.Remove(grid)
	_ = os.Remove(label)
	return final, nil
}

func (s *Service) update(stage progress.Stage, percent float64, msg string) {
	if s.reporter == nil {
		return
	}
	s.reporter.Update(progress.Update{
		JobID:   s.jobID,
		Stage:   stage,
		Percent: percent,
		Message: msg,
	})
}

// emitPlanned sends a final "planned" update and reporter result for TUI.
func (s *Service) emitPlanned(pl *Plan) {
	if s.reporter == nil {
		return
	}
	s.reporter.Update(progress.Update{
		JobID:   s.jobID,
		Stage:   progress.StageCompleted,
		Percent: 100,
		Message: fmt.Sprintf("Planned: %s (dry-run)", filepath.Base(pl.ClipOutput)),
	})
	s.reporter.Result(progress.Result{
		JobID:      s.jobID,
		OutputPath: pl.ClipOutput,
	})
}

// emitCompleted sends a final update and reporter result for TUI.
func (s *Service) emitCompleted(pv *model.PreviewResult) {
	if s.reporter == nil {
		return
	}
	path := pv.MontagePath
	var bytes int64
	var msg string
	if pv.Clip != nil {
		path = pv.Clip.Path
		bytes = pv.Clip.Bytes
		msg = fmt.Sprintf("Saved: %s (%s, %d trials)", filepath.Base(path), format.HumanizeBytes(bytes), pv.Clip.Trials)
	} else if path != "" {
		msg = "Saved: " + filepath.Base(path)
	} else {
		msg = "Completed"
	}
	s.reporter.Update(progress.Update{
		JobID:   s.jobID,
		Stage:   progress.StageCompleted,
		Percent: 100,
		Bytes:   &bytes,
		Message: msg,
	})
	s.reporter.Result(progress.Result{
		JobID:      s.jobID,
		OutputPath: path,
		Bytes:      bytes,
	})
}
