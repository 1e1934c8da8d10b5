package harvest

import (
	"context"
	"fmt"

	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine holds the probed description of one logical query and hands out
// record streams over it.
type Engine struct {
	query  service.Query
	desc   *service.Descriptor
	getter client.Getter
	config Config
	logger zerolog.Logger
}

// New validates cfg, probes the layer once and returns an engine. Probe
// failures (transport, service error envelope, unsupported type) are
// returned as-is. A layer without a unique identifier field still yields an
// engine; its streams fail with *service.MissingIdentifierFieldError.
func New(ctx context.Context, q service.Query, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "harvest").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "harvest").Logger()
	}

	getter := cfg.Getter
	if getter == nil {
		ccfg := client.DefaultConfig()
		ccfg.Logger = cfg.Logger
		c, err := client.New(ccfg)
		if err != nil {
			return nil, fmt.Errorf("create transport client: %w", err)
		}
		getter = c
	}

	prober, err := service.NewProber(service.ProberConfig{
		Getter:      getter,
		SpatialRefs: cfg.SpatialRefs,
		Store:       cfg.Store,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	desc, err := prober.Probe(ctx, q)
	if err != nil {
		return nil, err
	}

	return &Engine{
		query:  q,
		desc:   desc,
		getter: getter,
		config: cfg,
		logger: logger.With().Str("layer", q.LayerURL).Logger(),
	}, nil
}

// Descriptor returns the probed layer description.
func (e *Engine) Descriptor() *service.Descriptor {
	return e.desc
}

// Query returns the query the engine was built for.
func (e *Engine) Query() service.Query {
	return e.query
}

// Stream returns a new stream starting at identifier 0. Streams are
// independent; each call restarts the harvest.
func (e *Engine) Stream() *Stream {
	fetcher := NewWindowFetcher(e.getter, e.query, e.desc, e.logger)
	return &Stream{
		fetcher: fetcher,
		gaps:    NewGapFinder(fetcher, e.config.GapTolerance, e.config.SearchCeiling, e.logger),
		field:   e.desc.IdentifierField,
		total:   e.desc.TotalCount,
		width:   e.config.BatchWidth,
		maxIdle: e.config.EmptyWindowThreshold,
		logger:  e.logger,
	}
}
