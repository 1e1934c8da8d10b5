package harvest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/query"
	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/rs/zerolog"
)

// Window is a half-open identifier range [Min, Max). An unbounded window
// has no upper limit.
type Window struct {
	Min       int64
	Max       int64
	Unbounded bool
}

// Bounded returns the window [min, max).
func Bounded(min, max int64) Window {
	return Window{Min: min, Max: max}
}

// From returns the unbounded window [min, +inf).
func From(min int64) Window {
	return Window{Min: min, Unbounded: true}
}

// Contains reports whether id lies in the window.
func (w Window) Contains(id int64) bool {
	return id >= w.Min && (w.Unbounded || id < w.Max)
}

// Predicate renders the window as a where clause over field.
func (w Window) Predicate(field string) string {
	p := field + " >= " + strconv.FormatInt(w.Min, 10)
	if !w.Unbounded {
		p += " AND " + field + " < " + strconv.FormatInt(w.Max, 10)
	}
	return p
}

// String implements fmt.Stringer.
func (w Window) String() string {
	if w.Unbounded {
		return fmt.Sprintf("[%d, +inf)", w.Min)
	}
	return fmt.Sprintf("[%d, %d)", w.Min, w.Max)
}

// WindowFetcher issues one identifier-window query per call.
type WindowFetcher struct {
	getter client.Getter
	base   string
	desc   *service.Descriptor
	logger zerolog.Logger

	full   int
	probes int
}

// NewWindowFetcher creates a fetcher for the layer and filter in q.
func NewWindowFetcher(getter client.Getter, q service.Query, desc *service.Descriptor, logger zerolog.Logger) *WindowFetcher {
	return &WindowFetcher{
		getter: getter,
		base:   q.QueryURL(),
		desc:   desc,
		logger: logger,
	}
}

// URL returns the request URL for a window. It fails when the layer has no
// unique identifier field.
func (f *WindowFetcher) URL(w Window, full bool) (string, error) {
	field, err := f.desc.RequireIdentifier()
	if err != nil {
		return "", err
	}

	u := query.SetParameter(f.base, "where", func(current string) string {
		return query.AndWhere(current, w.Predicate(field))
	})
	if full {
		u = query.Set(u, "outFields", "*")
		u = query.Set(u, "returnGeometry", "true")
	} else {
		u = query.Set(u, "outFields", "")
		u = query.Set(u, "returnGeometry", "false")
	}
	return query.Set(u, "f", "json"), nil
}

// Fetch queries one window and returns the features verbatim. With
// full=false only existence is meaningful; the rows carry neither
// attributes nor geometry.
func (f *WindowFetcher) Fetch(ctx context.Context, w Window, full bool) ([]Record, error) {
	u, err := f.URL(w, full)
	if err != nil {
		return nil, err
	}

	kind := "full"
	switch {
	case !full && w.Unbounded:
		kind = "open_probe"
	case !full:
		kind = "probe"
	}
	if full {
		f.full++
	} else {
		f.probes++
	}

	envelope, err := f.getter.GetJSON(ctx, u)
	if err != nil {
		harvestWindowsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("fetch window %s: %w", w, err)
	}

	raw, ok := envelope["features"].([]any)
	if !ok {
		harvestWindowsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("fetch window %s: response has no features array", w)
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			records = append(records, Record(m))
		}
	}

	result := "records"
	if len(records) == 0 {
		result = "empty"
	}
	harvestWindowsTotal.WithLabelValues(kind, result).Inc()

	f.logger.Debug().
		Str("kind", kind).
		Stringer("window", w).
		Int("records", len(records)).
		Msg("Window fetched")

	return records, nil
}

// Exists reports whether the window holds at least one record.
func (f *WindowFetcher) Exists(ctx context.Context, w Window) (bool, error) {
	records, err := f.Fetch(ctx, w, false)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}
