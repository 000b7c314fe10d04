// Package format converts byte counts to and from human-readable strings.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// HumanizeBytes converts a byte count into a human-readable string (e.g., "1.5 MB").
func HumanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	// Use a fixed buffer to avoid allocation
	var buf [20]byte
	frac := float64(b) / float64(div)
	s := strconv.AppendFloat(buf[:0], frac, 'f', 1, 64)
	suffix := []string{"KB", "MB", "GB", "TB", "PB"}[exp]
	return string(s) + " " + suffix
}

type unit struct {
	suffix string
	mult   float64
}

// Suffix order matters: longer suffixes must be tried before the bare "B".
var units = []unit{
	{"KiB", math.Pow(2, 10)}, {"MiB", math.Pow(2, 20)}, {"GiB", math.Pow(2, 30)}, {"TiB", math.Pow(2, 40)},
	{"PiB", math.Pow(2, 50)}, {"EiB", math.Pow(2, 60)}, {"ZiB", math.Pow(2, 70)}, {"YiB", math.Pow(2, 80)},
	{"kB", 1e3}, {"MB", 1e6}, {"GB", 1e9}, {"TB", 1e12},
	{"PB", 1e15}, {"EB", 1e18}, {"ZB", 1e21}, {"YB", 1e24},
}

// ParseBytes parses a human byte-size string such as "5MB", "2MiB" or "4096".
// A bare "B" suffix or no suffix at all means plain bytes.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			return int64(v * u.mult), nil
		}
	}
	num := s
	if strings.HasSuffix(s, "B") {
		num = strings.TrimSpace(strings.TrimSuffix(s, "B"))
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(v), nil
}
