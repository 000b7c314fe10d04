package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"clipsheet/internal/encoder"
	"clipsheet/internal/model"
	"clipsheet/internal/pipeline"
	"clipsheet/internal/probe"
	"clipsheet/internal/ui"
	"clipsheet/internal/util/deps"
	"clipsheet/internal/util/format"
)

type runMode struct {
	ForceTUI   bool
	DryRunOnly bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "run [files...]",
		Short:         "Generate previews for the given video files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		PreRunE:       runPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args, runMode{
				ForceTUI:   false,
				DryRunOnly: false,
			})
		},
	}
	// Bind same flags as root for explicit subcommand usage
	bindRunFlags(cmd.Flags())
	return cmd
}

type ctxKey string

const runInputsKey ctxKey = "runInputs"

type runInputs struct {
	Files   []string
	Options model.CLIOptions
}

func runPreRun(cmd *cobra.Command, args []string) error {
	files, opts, err := assembleRunInputs(cmd, args)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	ctx := context.WithValue(cmd.Context(), runInputsKey, runInputs{
		Files:   files,
		Options: opts,
	})
	cmd.SetContext(ctx)
	return nil
}

func assembleRunInputs(cmd *cobra.Command, args []string) ([]string, model.CLIOptions, error) {
	// Persistent flags with precedence: flag > env/config > default
	outDir := viper.GetString("out_dir")
	if outDir == "" {
		outDir = "."
	}
	verbose := viper.GetBool("verbose")
	ffmpegPath := viper.GetString("ffmpeg")
	jobs := viper.GetInt("jobs")
	if jobs <= 0 {
		jobs = 2
	}

	// Run flags
	columns, _ := cmd.Flags().GetInt("columns")
	rows, _ := cmd.Flags().GetInt("rows")
	width, _ := cmd.Flags().GetInt("width")
	frames, _ := cmd.Flags().GetInt("frames")
	clips, _ := cmd.Flags().GetInt("clips")
	clipWidth, _ := cmd.Flags().GetInt("clip-width")
	clipLength, _ := cmd.Flags().GetFloat64("clip-length")
	clipSize, _ := cmd.Flags().GetString("clip-size")
	clipFormat, _ := cmd.Flags().GetString("format")
	cutStart, _ := cmd.Flags().GetFloat64("cut-start")
	cutEnd, _ := cmd.Flags().GetFloat64("cut-end")
	keep, _ := cmd.Flags().GetBool("keep")
	prefix, _ := cmd.Flags().GetString("prefix")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noUI, _ := cmd.Flags().GetBool("no-ui")

	clipFormat = strings.ToLower(clipFormat)
	switch clipFormat {
	case string(model.FormatGIF), string(model.FormatWebP):
	default:
		return nil, model.CLIOptions{}, fmt.Errorf("invalid --format: %q (valid: gif|webp)", clipFormat)
	}

	budget, err := format.ParseBytes(clipSize)
	if err != nil {
		return nil, model.CLIOptions{}, fmt.Errorf("invalid --clip-size: %w", err)
	}
	if budget <= 0 {
		return nil, model.CLIOptions{}, fmt.Errorf("invalid --clip-size: must be positive")
	}

	if columns < 0 || rows < 0 {
		return nil, model.CLIOptions{}, fmt.Errorf("--columns and --rows must not be negative")
	}
	if frames < 0 || clips < 0 {
		return nil, model.CLIOptions{}, fmt.Errorf("--frames and --clips must not be negative")
	}
	if clips > 0 && clipLength <= 0 {
		return nil, model.CLIOptions{}, fmt.Errorf("--clip-length must be positive")
	}
	if cutStart < 0 || cutEnd < 0 {
		return nil, model.CLIOptions{}, fmt.Errorf("--cut-start and --cut-end must not be negative")
	}

	// Input files must exist up front; a typo should not surface as an
	// ffprobe failure halfway through a batch.
	var files []string
	for _, raw := range args {
		if fi, err := os.Stat(raw); err != nil || fi.IsDir() {
			return nil, model.CLIOptions{}, fmt.Errorf("not a readable file: %q", raw)
		}
		files = append(files, raw)
	}

	opts := model.CLIOptions{
		OutDir:     filepath.Clean(outDir),
		Columns:    columns,
		Rows:       rows,
		Width:      width,
		Frames:     frames,
		Clips:      clips,
		ClipWidth:  clipWidth,
		ClipLength: clipLength,
		ClipBudget: budget,
		ClipFormat: model.ClipFormat(clipFormat),
		CutStart:   cutStart,
		CutEnd:     cutEnd,
		Keep:       keep,
		Prefix:     prefix,
		FFmpegPath: ffmpegPath,
		DryRun:     dryRun,
		Verbose:    verbose,
		NoUI:       noUI,
		Jobs:       jobs,
	}
	return files, opts, nil
}

func runExecute(cmd *cobra.Command, args []string, mode runMode) error {
	// Grab inputs from context; if not present (root called without
	// PreRunE), assemble now.
	var in runInputs
	if v := cmd.Context().Value(runInputsKey); v != nil {
		in = v.(runInputs)
	} else {
		files, opts, err := assembleRunInputs(cmd, args)
		if err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		in = runInputs{Files: files, Options: opts}
	}

	if mode.DryRunOnly {
		in.Options.DryRun = true
		in.Options.NoUI = true
	}

	if err := ensureDir(in.Options.OutDir); err != nil {
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("failed to create output dir: %v", err)}
	}

	// TUI path (forced or auto if TTY and not disabled)
	useTUI := mode.ForceTUI || (!in.Options.NoUI && isTerminal())
	if useTUI && !mode.DryRunOnly {
		if err := ui.Run(cmd.Context(), in.Files, in.Options); err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		return nil
	}

	// Non-UI path
	tools, derr := deps.Find(in.Options.FFmpegPath)
	if derr != nil {
		return &ExitError{Code: ExitMissingDep, Err: derr}
	}

	// One bad input must not sink the batch; remember the worst failure.
	var firstErr *ExitError
	failed := 0
	for i, file := range in.Files {
		prefix := pipeline.JobPrefix(in.Options.Prefix, i, len(in.Files))
		if err := processOne(cmd.Context(), file, prefix, in.Options, tools); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", file, err)
			if firstErr == nil {
				firstErr = classify(err)
			}
		}
	}
	if firstErr != nil {
		return &ExitError{Code: firstErr.Code, Err: fmt.Errorf("%d of %d input(s) failed", failed, len(in.Files))}
	}
	return nil
}

func classify(err error) *ExitError {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	var pe *probe.ProbeError
	if errors.As(err, &pe) {
		return &ExitError{Code: ExitProbeError, Err: err}
	}
	var encErr *encoder.EncodeError
	if errors.As(err, &encErr) || errors.Is(err, encoder.ErrBudgetUnreachable) {
		return &ExitError{Code: ExitEncodeError, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func processOne(ctx context.Context, file, prefix string, opts model.CLIOptions, tools deps.Tools) error {
	svc := pipeline.NewService(
		pipeline.WithTools(tools),
		pipeline.WithCLIOptions(opts),
		pipeline.WithPrefix(prefix),
	)
	res, err := svc.RunJob(ctx, file)
	if err != nil {
		return err
	}

	if res.Planned {
		printPlan(res.Plan, tools, opts)
		return nil
	}

	pv := res.Preview
	if pv.Clip != nil {
		fmt.Printf("Saved: %s (%s, %d trial(s))\n", pv.Clip.Path, format.HumanizeBytes(pv.Clip.Bytes), pv.Clip.Trials)
	}
	if len(pv.FramePaths) > 0 {
		fmt.Printf("Saved: %d frame(s) under %s\n", len(pv.FramePaths), opts.OutDir)
	}
	if pv.MontagePath != "" {
		fmt.Printf("Saved: %s\n", pv.MontagePath)
	}
	return nil
}

// printPlan outputs a dry-run plan of actions without executing them.
func printPlan(pl *pipeline.Plan, tools deps.Tools, opts model.CLIOptions) {
	fmt.Println("Dry-run plan:")
	fmt.Printf("- Input:        %s\n", pl.Input)
	fmt.Printf("- FFmpeg:       %s\n", tools.FFmpeg)
	fmt.Printf("- Duration:     %.2fs @ %s fps (%dx%d)\n", pl.Duration, pl.FrameRate, pl.Width, pl.Height)
	fmt.Printf("- Output dir:   %s\n", opts.OutDir)
	if len(pl.Windows) > 0 {
		fmt.Printf("- Clip output:  %s (budget %s)\n", pl.ClipOutput, format.HumanizeBytes(pl.Budget))
		fmt.Printf("- Clip windows: %d x %.2fs (%d frames each)\n", len(pl.Windows), opts.ClipLength, pl.ClipFrames)
		for i, w := range pl.Windows {
			fmt.Printf("    %2d: %9.3fs .. %9.3fs\n", i+1, w.Start, w.End())
		}
	}
	if pl.Frames > 0 {
		fmt.Printf("- Frame grabs:  %d\n", pl.Frames)
	}
	if pl.Cells > 0 {
		fmt.Printf("- Contact sheet: %dx%d cells at %dpx wide\n", opts.Columns, pl.Rows, opts.Width)
	}
}
