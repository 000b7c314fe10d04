package encoder

import (
	"context"
	"fmt"
	"math"
)

// SearchLimits bounds the parameter space of the size-targeting search.
type SearchLimits struct {
	MinDepth  int
	MaxDepth  int
	MinRate   float64
	MaxRate   float64
	MaxTrials int // safety bound; the search errors out past this
}

// DefaultLimits returns the stock search bounds.
func DefaultLimits() SearchLimits {
	return SearchLimits{
		MinDepth:  96,
		MaxDepth:  256,
		MinRate:   12,
		MaxRate:   50,
		MaxTrials: 32,
	}
}

// WebP quality path tuning. SizeFactor is the empirical per-quality-step
// size elasticity: one quality point shrinks output by roughly 7%.
const (
	WebPStartQuality = 75
	WebPSizeFactor   = 1.07
)

// TrialFunc runs one variant-encode-and-select cycle at the given
// parameters and reports the byte size of the best variant.
type TrialFunc func(ctx context.Context, p GIFParams) (int64, error)

// QualityTrialFunc runs one encode at the given quality.
type QualityTrialFunc func(ctx context.Context, quality int) (int64, error)

// GIFResult describes the trial that met the budget.
type GIFResult struct {
	Params GIFParams
	Bytes  int64
	Trials int
}

// NextGuess computes the next (depth, rate) from the observed
// size ratio, assuming output size scales with log2(depth) * rate.
// Halving the depth is the first guess; if that alone over-shrinks — the
// model would then allow a rate above the current one — the candidate
// depth is averaged back toward the old depth until the implied rate is
// non-increasing. This keeps the rate monotonic across iterations and
// prevents depth/rate oscillation.
func NextGuess(depth int, rate float64, ratio float64) (int, float64) {
	newDepth := depth / 2
	newRate := math.Log2(float64(depth)) * rate * ratio / math.Log2(float64(newDepth))
	for newRate > rate {
		newDepth = (newDepth + depth) / 2
		newRate = math.Log2(float64(depth)) * rate * ratio / math.Log2(float64(newDepth))
	}
	return newDepth, newRate
}

// SearchGIF drives trial until the reported size fits budget.
//
// It starts at (MaxDepth, min(sourceRate, MaxRate)) in multi-palette
// mode. While over budget it adjusts depth and rate via NextGuess; once
// a guess falls below MinDepth or MinRate it abandons multi-palette mode
// entirely, resets both parameters to their maxima and switches to the
// single-palette regime, where only the frame rate shrinks (linearly by
// the remaining ratio). The single-palette model systematically
// underestimates achieved compression at low rates — smaller inter-frame
// transparent regions shrink less than linearly — so extra passes there
// are expected, not a bug.
func SearchGIF(ctx context.Context, trial TrialFunc, sourceRate float64, budget int64, lim SearchLimits) (GIFResult, error) {
	startRate := math.Min(sourceRate, lim.MaxRate)
	p := GIFParams{Depth: lim.MaxDepth, Rate: startRate, MultiPalette: true}

	size, err := trial(ctx, p)
	if err != nil {
		return GIFResult{}, err
	}
	trials := 1

	for size > budget {
		if trials >= lim.MaxTrials {
			return GIFResult{Params: p, Bytes: size, Trials: trials},
				fmt.Errorf("%w after %d trials (best %d bytes, budget %d)", ErrBudgetUnreachable, trials, size, budget)
		}
		ratio := float64(budget) / float64(size)
		if p.MultiPalette {
			depth, rate := NextGuess(p.Depth, p.Rate, ratio)
			if depth < lim.MinDepth || rate < lim.MinRate {
				p = GIFParams{Depth: lim.MaxDepth, Rate: startRate, MultiPalette: false}
			} else {
				p.Depth, p.Rate = depth, rate
			}
		} else {
			p.Rate *= ratio
		}
		if size, err = trial(ctx, p); err != nil {
			return GIFResult{}, err
		}
		trials++
	}
	return GIFResult{Params: p, Bytes: size, Trials: trials}, nil
}

// QualityResult describes the quality trial that met the budget.
type QualityResult struct {
	Quality int
	Bytes   int64
	Trials  int
}

// SearchQuality is the convergence loop for the quality-parameterized
// path. The step size is derived from the observed overshoot through the
// SizeFactor elasticity; there is no regime switch.
func SearchQuality(ctx context.Context, trial QualityTrialFunc, budget int64, maxTrials int) (QualityResult, error) {
	quality := WebPStartQuality
	size, err := trial(ctx, quality)
	if err != nil {
		return QualityResult{}, err
	}
	trials := 1

	for size > budget {
		if trials >= maxTrials || quality <= 0 {
			return QualityResult{Quality: quality, Bytes: size, Trials: trials},
				fmt.Errorf("%w after %d trials (best %d bytes, budget %d)", ErrBudgetUnreachable, trials, size, budget)
		}
		step := int(math.Ceil(math.Log(float64(size)/float64(budget)) / math.Log(WebPSizeFactor)))
		if step < 1 {
			step = 1
		}
		quality -= step
		if quality < 0 {
			quality = 0
		}
		if size, err = trial(ctx, quality); err != nil {
			return QualityResult{}, err
		}
		trials++
	}
	return QualityResult{Quality: quality, Bytes: size, Trials: trials}, nil
}
