package harvest

import (
	"fmt"

	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/Sternrassler/feature-harvester/pkg/spatialref"
	"github.com/rs/zerolog"
)

const (
	// DefaultBatchWidth is the identifier width of one full window.
	DefaultBatchWidth = 50

	// DefaultEmptyWindowThreshold is the number of consecutive empty windows
	// tolerated before the stream checks for a gap.
	DefaultEmptyWindowThreshold = 10

	// DefaultGapTolerance is the landing precision of the gap search.
	DefaultGapTolerance = 1000

	// DefaultSearchCeiling is the exclusive upper identifier bound of the
	// gap search: (2^31-1)/2.
	DefaultSearchCeiling = (1<<31 - 1) / 2
)

// Config holds engine configuration.
//
// BatchWidth, EmptyWindowThreshold and GapTolerance interact. A gap search
// starts once more than EmptyWindowThreshold windows (about
// EmptyWindowThreshold*BatchWidth identifiers) came back empty, and lands up
// to GapTolerance identifiers before the next record. The stream then scans
// up to GapTolerance/BatchWidth empty windows to reach that record. When
// that number exceeds EmptyWindowThreshold (the defaults give 20 against 10)
// a second search runs before the data is reached. Worst case per gap of
// width W is roughly
//
//	2 * (EmptyWindowThreshold + 1 + log2(SearchCeiling/GapTolerance))
//
// requests, against W/BatchWidth for a linear scan. Keep
// GapTolerance <= EmptyWindowThreshold*BatchWidth to get a single search per
// gap.
type Config struct {
	// BatchWidth is the identifier width of each full window (default 50)
	BatchWidth int64

	// EmptyWindowThreshold is how many consecutive empty windows are allowed
	// before a gap check (default 10)
	EmptyWindowThreshold int

	// GapTolerance stops the gap search once the candidate range is narrower
	// than this (default 1000)
	GapTolerance int64

	// SearchCeiling is the exclusive upper bound of the gap search
	// (default 1073741823)
	SearchCeiling int64

	// Getter performs the HTTP calls (optional, defaults to a client built
	// from client.DefaultConfig)
	Getter client.Getter

	// Store caches probed descriptors (optional)
	Store service.DescriptorStore

	// SpatialRefs resolves spatial references (optional, defaults to the
	// process-wide cache)
	SpatialRefs *spatialref.Cache

	// Logger (optional, defaults to the global logger with component=harvest)
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BatchWidth:           DefaultBatchWidth,
		EmptyWindowThreshold: DefaultEmptyWindowThreshold,
		GapTolerance:         DefaultGapTolerance,
		SearchCeiling:        DefaultSearchCeiling,
	}
}

// Validate checks the window parameters.
func (c Config) Validate() error {
	if c.BatchWidth < 1 {
		return fmt.Errorf("batch width must be >= 1 (got %d)", c.BatchWidth)
	}
	if c.EmptyWindowThreshold < 0 {
		return fmt.Errorf("empty window threshold must not be negative (got %d)", c.EmptyWindowThreshold)
	}
	if c.GapTolerance < 1 {
		return fmt.Errorf("gap tolerance must be >= 1 (got %d)", c.GapTolerance)
	}
	if c.SearchCeiling < 1 {
		return fmt.Errorf("search ceiling must be >= 1 (got %d)", c.SearchCeiling)
	}
	return nil
}
