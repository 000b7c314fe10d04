// Package pipeline plans and orchestrates the per-input preview workflow.
package pipeline

import (
	"fmt"
	"math"
	"strconv"
)

// MinTimeDelta is the minimum spacing in seconds between montage cells;
// short videos get fewer rows rather than near-duplicate tiles.
const MinTimeDelta = 10

// Window is one clip time window on the source timeline.
type Window struct {
	Start  float64 // seconds
	Length float64 // seconds
}

// End returns the window's end offset.
func (w Window) End() float64 { return w.Start + w.Length }

// PlanClips derives count evenly spaced clip windows from the usable
// duration (duration minus head/tail cuts). Window i (1-indexed) is
// centered at the i/(count+1) fraction of the usable range and clamped
// so it never extends past [cutStart, duration-cutEnd].
func PlanClips(duration, cutStart, cutEnd, clipLength float64, count int) []Window {
	usable := duration - cutStart - cutEnd
	lo, hi := cutStart, duration-cutEnd
	windows := make([]Window, 0, count)
	for i := 1; i <= count; i++ {
		center := cutStart + usable*float64(i)/float64(count+1)
		start := center - clipLength/2
		if start < lo {
			start = lo
		}
		if start+clipLength > hi {
			start = hi - clipLength
		}
		windows = append(windows, Window{Start: start, Length: clipLength})
	}
	return windows
}

// ClipFrameCount converts a clip length to an exact frame count using the
// source's rational frame rate, avoiding float drift over long clips.
func ClipFrameCount(clipLength float64, rateNum, rateDen int) int {
	return int(math.Round(clipLength * float64(rateNum) / float64(rateDen)))
}

// FrameTimestamps returns count evenly spaced timestamps over the usable
// duration, excluding the endpoints.
func FrameTimestamps(duration, cutStart, cutEnd float64, count int) []float64 {
	usable := duration - cutStart - cutEnd
	dt := usable / float64(count+1)
	ts := make([]float64, count)
	for i := range ts {
		ts[i] = cutStart + float64(i+1)*dt
	}
	return ts
}

// MontageRows clamps the row count so cells stay at least MinTimeDelta
// seconds apart, with at least one row.
func MontageRows(duration float64, columns, maxRows int) int {
	rows := int(math.Floor(duration / (MinTimeDelta * float64(columns))))
	if rows < 1 {
		rows = 1
	}
	if rows > maxRows {
		rows = maxRows
	}
	return rows
}

// Digits returns the number of decimal digits needed to index n items.
func Digits(n int) int {
	return int(math.Ceil(math.Log10(float64(n + 1))))
}

// JobPrefix returns the artifact prefix for input index (0-based) out of
// total. A single input uses the base prefix unchanged; multiple inputs
// get a zero-padded ordinal so their artifacts never collide.
func JobPrefix(base string, index, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s%0*d-", base, Digits(total), index+1)
}

// formatSeconds renders a timestamp without float formatting noise.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
