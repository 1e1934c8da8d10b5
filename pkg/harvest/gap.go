package harvest

import (
	"context"

	"github.com/rs/zerolog"
)

// GapFinder locates the end of a run of missing identifiers by binary search
// over existence probes.
type GapFinder struct {
	fetcher   *WindowFetcher
	tolerance int64
	ceiling   int64
	logger    zerolog.Logger
}

// NewGapFinder creates a gap finder probing through fetcher.
func NewGapFinder(fetcher *WindowFetcher, tolerance, ceiling int64, logger zerolog.Logger) *GapFinder {
	if tolerance < 1 {
		tolerance = DefaultGapTolerance
	}
	if ceiling < 1 {
		ceiling = DefaultSearchCeiling
	}
	return &GapFinder{
		fetcher:   fetcher,
		tolerance: tolerance,
		ceiling:   ceiling,
		logger:    logger,
	}
}

// FindNext searches [after, ceiling) and returns an identifier at or below
// the first live identifier, less than tolerance away from it. No record
// exists in [after, result). When after is at or past the ceiling, after is
// returned unchanged.
func (g *GapFinder) FindNext(ctx context.Context, after int64) (int64, error) {
	low, high := after, g.ceiling
	probes := 0
	for high-low >= g.tolerance && high-low > 1 {
		mid := low + (high-low)/2
		found, err := g.fetcher.Exists(ctx, Bounded(low, mid))
		if err != nil {
			return after, err
		}
		probes++
		if found {
			high = mid
		} else {
			low = mid
		}
	}

	g.logger.Debug().
		Int64("after", after).
		Int64("landed", low).
		Int64("high", high).
		Int("probes", probes).
		Msg("Gap search finished")

	return low, nil
}
