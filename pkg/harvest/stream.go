package harvest

import (
	"context"
	"iter"
	"time"

	"github.com/rs/zerolog"
)

// Cursor is the scan position of a stream.
type Cursor struct {
	// Next is the lower bound of the next full window
	Next int64

	// ConsecutiveEmpty counts full windows in a row that returned nothing
	ConsecutiveEmpty int
}

// Stats summarises a harvest run.
type Stats struct {
	Emitted  int64 `json:"emitted"`
	Dropped  int64 `json:"dropped"`
	Windows  int   `json:"windows"`
	Probes   int   `json:"probes"`
	GapJumps int   `json:"gap_jumps"`
	Done     bool  `json:"done"`
}

// Stream is a single-pass, pull-based record sequence. Each call to Next
// performs at most the network calls needed to produce one record; nothing
// is fetched ahead of the consumer. A Stream is not safe for concurrent use.
type Stream struct {
	fetcher *WindowFetcher
	gaps    *GapFinder
	field   string
	total   *int64
	width   int64
	maxIdle int
	logger  zerolog.Logger

	cursor  Cursor
	batch   []Record
	window  Window
	idx     int
	lastID  int64
	hasLast bool

	stats    Stats
	started  time.Time
	finished bool
	err      error
}

// Cursor returns the current scan position.
func (s *Stream) Cursor() Cursor {
	return s.cursor
}

// Stats returns the counters of this run so far.
func (s *Stream) Stats() Stats {
	st := s.stats
	st.Windows = s.fetcher.full
	st.Probes = s.fetcher.probes
	st.Done = s.finished
	return st
}

// Next returns the next record. It returns (nil, false, nil) once the
// harvest is complete. After an error every later call returns that error.
func (s *Stream) Next(ctx context.Context) (Record, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	if s.finished {
		return nil, false, nil
	}
	if s.started.IsZero() {
		s.started = time.Now()
		s.logger.Info().
			Int64("batch_width", s.width).
			Int("empty_threshold", s.maxIdle).
			Msg("Harvest started")
	}

	for {
		if s.total != nil && s.stats.Emitted >= *s.total {
			s.finish("total_count")
			return nil, false, nil
		}

		if s.idx < len(s.batch) {
			rec := s.batch[s.idx]
			s.idx++
			if !s.accept(rec) {
				continue
			}
			s.stats.Emitted++
			harvestRecordsEmittedTotal.Inc()
			return rec, true, nil
		}

		s.batch, s.idx = nil, 0
		if err := s.advance(ctx); err != nil {
			s.fail(err)
			return nil, false, err
		}
		if s.finished {
			return nil, false, nil
		}
	}
}

// All adapts the stream to a range-over-func sequence. Iteration stops
// after the first error.
func (s *Stream) All(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, ok, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok || !yield(rec, nil) {
				return
			}
		}
	}
}

// accept applies the window and monotonic identifier filters.
func (s *Stream) accept(rec Record) bool {
	id, ok := rec.Identifier(s.field)
	if !ok {
		return true
	}
	if !s.window.Contains(id) || (s.hasLast && id <= s.lastID) {
		s.stats.Dropped++
		harvestRecordsDroppedTotal.Inc()
		s.logger.Debug().Int64("id", id).Stringer("window", s.window).Msg("Dropped record outside window or out of order")
		return false
	}
	s.lastID, s.hasLast = id, true
	return true
}

// advance performs one scan step: an optional gap check, then one full
// window.
func (s *Stream) advance(ctx context.Context) error {
	if s.cursor.ConsecutiveEmpty > s.maxIdle {
		found, err := s.fetcher.Exists(ctx, From(s.cursor.Next))
		if err != nil {
			return err
		}
		if !found {
			s.finish("exhausted")
			return nil
		}

		target, err := s.gaps.FindNext(ctx, s.cursor.Next)
		if err != nil {
			return err
		}
		if target > s.cursor.Next {
			s.stats.GapJumps++
			harvestGapJumpsTotal.Inc()
			harvestGapJumpWidth.Observe(float64(target - s.cursor.Next))
			s.logger.Info().
				Int64("from", s.cursor.Next).
				Int64("to", target).
				Msg("Jumped identifier gap")
			s.cursor.Next = target
		}
		s.cursor.ConsecutiveEmpty = 0
	}

	w := Bounded(s.cursor.Next, s.cursor.Next+s.width)
	records, err := s.fetcher.Fetch(ctx, w, true)
	if err != nil {
		return err
	}
	s.cursor.Next += s.width

	if len(records) == 0 {
		s.cursor.ConsecutiveEmpty++
		return nil
	}
	s.cursor.ConsecutiveEmpty = 0
	s.batch, s.window, s.idx = records, w, 0
	return nil
}

func (s *Stream) finish(reason string) {
	s.finished = true
	s.batch = nil
	harvestRunsTotal.WithLabelValues(reason).Inc()
	st := s.Stats()
	s.logger.Info().
		Str("reason", reason).
		Int64("emitted", st.Emitted).
		Int64("dropped", st.Dropped).
		Int("windows", st.Windows).
		Int("probes", st.Probes).
		Int("gap_jumps", st.GapJumps).
		Dur("duration", time.Since(s.started)).
		Msg("Harvest finished")
}

func (s *Stream) fail(err error) {
	s.err = err
	s.batch = nil
	harvestRunsTotal.WithLabelValues("error").Inc()
	s.logger.Error().
		Err(err).
		Int64("cursor", s.cursor.Next).
		Int64("emitted", s.stats.Emitted).
		Msg("Harvest failed")
}
