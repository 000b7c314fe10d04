package model

// ClipFormat selects the animated preview codec.
type ClipFormat string

const (
	FormatGIF  ClipFormat = "gif"
	FormatWebP ClipFormat = "webp"
)

// CLIOptions holds user-configurable runtime options as parsed from flags.
type CLIOptions struct {
	OutDir     string
	Columns    int     // Montage columns; 0 disables the montage stage.
	Rows       int     // Maximum montage rows.
	Width      int     // Width of one montage cell in pixels.
	Frames     int     // Number of full-size frames; 0 disables the stage.
	Clips      int     // Number of preview clips; 0 disables the stage.
	ClipWidth  int     // Width of the animated clip in pixels.
	ClipLength float64 // Length of each clip window in seconds.
	ClipBudget int64   // Maximum byte size of the animated clip.
	ClipFormat ClipFormat
	CutStart   float64 // Seconds skipped at the head of the source.
	CutEnd     float64 // Seconds skipped at the tail of the source.
	Keep       bool    // Keep and reuse intermediate files.
	Prefix     string  // Artifact file name prefix.
	FFmpegPath string  // Optional explicit path to ffmpeg.
	DryRun     bool
	Verbose    bool

	NoUI bool // Disable TUI when true
	Jobs int  // Max concurrent jobs for TUI
}

// ClipArtifact captures the outcome of the size-targeted clip search.
type ClipArtifact struct {
	Path   string
	Bytes  int64
	Trials int // Trial encodes performed before meeting the budget.

	// GIF path parameters of the winning trial (zero for WebP).
	Depth        int
	FrameRate    float64
	MultiPalette bool
	// WebP path quality of the winning trial (zero for GIF).
	Quality int
}

// PreviewResult aggregates every artifact produced for one input file.
type PreviewResult struct {
	Input       string
	Clip        *ClipArtifact
	FramePaths  []string
	MontagePath string
}
