// Package deps locates the external binaries clipsheet drives.
package deps

import (
	"fmt"
	"os"
	"os/exec"
)

// Tools holds resolved paths to every external binary used by the pipeline.
type Tools struct {
	FFmpeg  string
	FFprobe string
	Montage string
	Convert string
}

// Find resolves all required binaries. customFFmpeg, when non-empty, is
// tried as a path or PATH lookup before the default "ffmpeg".
func Find(customFFmpeg string) (Tools, error) {
	ff, err := FindFFmpeg(customFFmpeg)
	if err != nil {
		return Tools{}, err
	}
	fp, err := lookup("ffprobe")
	if err != nil {
		return Tools{}, err
	}
	mt, err := lookup("montage")
	if err != nil {
		return Tools{}, err
	}
	cv, err := lookup("convert")
	if err != nil {
		return Tools{}, err
	}
	return Tools{FFmpeg: ff, FFprobe: fp, Montage: mt, Convert: cv}, nil
}

// FindFFmpeg returns the path to the ffmpeg binary.
// If customPath is non-empty, it tries that path or looks it up in PATH.
func FindFFmpeg(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		if p, err := exec.LookPath(customPath); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("could not find ffmpeg at %q", customPath)
	}
	return lookup("ffmpeg")
}

func lookup(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("could not find %s in PATH. Please install it.", name)
}
