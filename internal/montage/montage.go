// Package montage wraps the ImageMagick montage/convert binaries used to
// compose the labeled contact sheet.
package montage

import (
	"context"
	"fmt"
	"strconv"

	"clipsheet/internal/util"
)

// Caption rendering defaults, matched to the montage cell styling.
const (
	FontFile       = "/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf"
	FontSize       = 16
	FontColor      = "white"
	FontBackground = "black"
)

// Compositor issues still-image composition commands.
type Compositor struct {
	MontagePath string
	ConvertPath string
	Runner      util.CmdRunner
	Verbose     bool
}

// NewCompositor returns a Compositor using the default runner when
// runner is nil.
func NewCompositor(montagePath, convertPath string, runner util.CmdRunner, verbose bool) *Compositor {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	return &Compositor{MontagePath: montagePath, ConvertPath: convertPath, Runner: runner, Verbose: verbose}
}

// Tile arranges tiles into a columns x rows grid with no padding.
func (c *Compositor) Tile(ctx context.Context, outFile string, columns, rows int, tiles []string) error {
	args := []string{"-geometry", "+0+0", "-tile", fmt.Sprintf("%dx%d", columns, rows)}
	args = append(args, tiles...)
	args = append(args, outFile)
	return c.run(ctx, c.MontagePath, "montage", args)
}

// Caption renders text into a standalone image of the given pixel width.
func (c *Compositor) Caption(ctx context.Context, outFile, text string, width int) error {
	args := []string{
		"-background", FontBackground,
		"-fill", FontColor,
		"-font", FontFile,
		"-pointsize", strconv.Itoa(FontSize),
		"-size", strconv.Itoa(width) + "x",
		"caption:" + text,
		outFile,
	}
	return c.run(ctx, c.ConvertPath, "caption", args)
}

// AppendVertical stacks the part images top to bottom into outFile.
func (c *Compositor) AppendVertical(ctx context.Context, outFile string, parts ...string) error {
	args := []string{"-quality", "95", "-background", "black", "-append"}
	args = append(args, parts...)
	args = append(args, outFile)
	return c.run(ctx, c.ConvertPath, "append", args)
}

func (c *Compositor) run(ctx context.Context, path, stage string, args []string) error {
	res, err := c.Runner.Run(ctx, util.CmdSpec{Path: path, Args: args, Verbose: c.Verbose})
	if err != nil {
		return fmt.Errorf("%s failed: %w\n%s", stage, err, res.Stderr)
	}
	return nil
}
