package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/query"
	"github.com/Sternrassler/feature-harvester/pkg/spatialref"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	harvestProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_metadata_probes_total",
		Help: "Layer metadata probes by result",
	}, []string{"result"})

	harvestCountProbeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_count_probe_failures_total",
		Help: "Count-only queries that failed and left the total count unknown",
	})
)

// DescriptorStore caches descriptors between runs. Get reports a miss with
// found=false and a nil error.
type DescriptorStore interface {
	Get(ctx context.Context, q Query) (d *Descriptor, found bool, err error)
	Set(ctx context.Context, q Query, d *Descriptor) error
}

// ProberConfig holds prober dependencies.
type ProberConfig struct {
	// Getter performs the HTTP calls (REQUIRED)
	Getter client.Getter

	// SpatialRefs resolves spatial references (default: spatialref.Shared())
	SpatialRefs *spatialref.Cache

	// Store caches descriptors (optional)
	Store DescriptorStore

	// Logger (optional, defaults to the global logger with component=probe)
	Logger *zerolog.Logger
}

// Prober resolves a Descriptor for a layer.
type Prober struct {
	getter client.Getter
	srs    *spatialref.Cache
	store  DescriptorStore
	logger zerolog.Logger
}

// NewProber creates a new prober.
func NewProber(cfg ProberConfig) (*Prober, error) {
	if cfg.Getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	srs := cfg.SpatialRefs
	if srs == nil {
		srs = spatialref.Shared()
	}
	logger := log.With().Str("component", "probe").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "probe").Logger()
	}
	return &Prober{
		getter: cfg.Getter,
		srs:    srs,
		store:  cfg.Store,
		logger: logger,
	}, nil
}

// Probe describes the layer named by q. Metadata failures are fatal;
// count failures only leave TotalCount unset. The store holds layer
// metadata only: the count query runs on every call, cache hit or not.
func (p *Prober) Probe(ctx context.Context, q Query) (*Descriptor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	d, cached := p.lookup(ctx, q)
	if !cached {
		meta, err := p.getter.GetJSON(ctx, q.MetadataURL())
		if err != nil {
			harvestProbesTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetch layer metadata: %w", err)
		}

		d, err = p.describe(q, meta)
		if err != nil {
			harvestProbesTotal.WithLabelValues("unsupported").Inc()
			return nil, err
		}
		p.save(ctx, q, d)
	}

	total, err := p.count(ctx, q)
	if err != nil {
		harvestProbesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	d.TotalCount = total
	if cached {
		harvestProbesTotal.WithLabelValues("cached").Inc()
	} else {
		harvestProbesTotal.WithLabelValues("ok").Inc()
	}

	logEvent := p.logger.Info().
		Str("layer", q.LayerURL).
		Str("kind", string(d.Kind)).
		Str("identifier_field", d.IdentifierField).
		Str("geometry_type", d.GeometryType).
		Bool("cached", cached)
	if d.TotalCount != nil {
		logEvent = logEvent.Int64("total_count", *d.TotalCount)
	}
	logEvent.Msg("Layer probed")

	return d, nil
}

// lookup returns a private copy of the cached metadata.
func (p *Prober) lookup(ctx context.Context, q Query) (*Descriptor, bool) {
	if p.store == nil {
		return nil, false
	}
	d, found, err := p.store.Get(ctx, q)
	switch {
	case err != nil:
		p.logger.Warn().Err(err).Str("layer", q.LayerURL).Msg("Descriptor cache get error")
		return nil, false
	case !found || d == nil:
		return nil, false
	}
	p.logger.Debug().Str("layer", q.LayerURL).Msg("Descriptor cache hit")
	fresh := *d
	fresh.TotalCount = nil
	return &fresh, true
}

// save stores d without its record count.
func (p *Prober) save(ctx context.Context, q Query, d *Descriptor) {
	if p.store == nil {
		return
	}
	static := *d
	static.TotalCount = nil
	if err := p.store.Set(ctx, q, &static); err != nil {
		p.logger.Warn().Err(err).Str("layer", q.LayerURL).Msg("Descriptor cache set error")
	}
}

func (p *Prober) describe(q Query, meta map[string]any) (*Descriptor, error) {
	declared, _ := meta["type"].(string)
	d := &Descriptor{Type: declared}
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "feature layer":
		d.Kind = KindFeatureLayer
	case "table":
		d.Kind = KindTable
	default:
		return nil, &UnsupportedServiceError{URL: q.LayerURL, Type: declared}
	}

	d.GeometryType, _ = meta["geometryType"].(string)

	if fields, ok := meta["fields"].([]any); ok {
		for _, f := range fields {
			field, ok := f.(map[string]any)
			if !ok {
				continue
			}
			name, _ := field["name"].(string)
			typ, _ := field["type"].(string)
			if typ == OIDFieldType && name != "" {
				d.OIDCandidates = append(d.OIDCandidates, name)
			}
		}
	}
	if len(d.OIDCandidates) == 1 {
		d.IdentifierField = d.OIDCandidates[0]
	} else {
		p.logger.Warn().
			Str("layer", q.LayerURL).
			Strs("candidates", d.OIDCandidates).
			Msg("Layer has no unique object identifier field, windowed harvest unavailable")
	}

	d.SpatialReference = p.spatialReference(q, meta)
	return d, nil
}

func (p *Prober) spatialReference(q Query, meta map[string]any) *spatialref.SpatialReference {
	extent, ok := meta["extent"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := extent["spatialReference"].(map[string]any)
	if !ok {
		return nil
	}

	var (
		sr  *spatialref.SpatialReference
		err error
	)
	if wkid := number(raw["latestWkid"]); wkid > 0 {
		sr, err = p.srs.ByWKID(int(wkid))
	} else if wkid := number(raw["wkid"]); wkid > 0 {
		sr, err = p.srs.ByWKID(int(wkid))
	} else if wkt, _ := raw["wkt"].(string); wkt != "" {
		sr, err = p.srs.ByWKT(wkt)
	} else {
		return nil
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("layer", q.LayerURL).Msg("Could not resolve spatial reference")
		return nil
	}
	return sr
}

// count asks for the number of matching records. Older servers reject
// count-only queries; that is expected and only logged. A cancelled or
// expired context is returned as an error.
func (p *Prober) count(ctx context.Context, q Query) (*int64, error) {
	countURL := query.Set(query.Set(q.QueryURL(), "returnCountOnly", "true"), "f", "json")
	envelope, err := p.getter.GetJSON(ctx, countURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("count records: %w", err)
		}
		harvestCountProbeFailuresTotal.Inc()
		p.logger.Debug().Err(err).Str("layer", q.LayerURL).Msg("Count query failed, total count unknown")
		return nil, nil
	}
	raw, ok := envelope["count"]
	if !ok {
		harvestCountProbeFailuresTotal.Inc()
		p.logger.Debug().Str("layer", q.LayerURL).Msg("Count response has no count, total count unknown")
		return nil, nil
	}
	n := number(raw)
	if n < 0 {
		harvestCountProbeFailuresTotal.Inc()
		return nil, nil
	}
	return &n, nil
}

// number converts a decoded JSON number to int64, -1 when not numeric.
func number(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return -1
}
