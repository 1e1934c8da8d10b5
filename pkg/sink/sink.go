// Package sink writes harvested records to their destination.
package sink

import (
	"context"
	"fmt"

	"github.com/Sternrassler/feature-harvester/pkg/harvest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var harvestSinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_sink_writes_total",
	Help: "Records written to sinks by sink and result",
}, []string{"sink", "result"})

// Sink receives records in stream order.
type Sink interface {
	Write(ctx context.Context, rec harvest.Record) error
	Close(ctx context.Context) error
}

// Source yields records; *harvest.Stream implements it.
type Source interface {
	Next(ctx context.Context) (harvest.Record, bool, error)
}

// Drain pulls src to the end and writes every record to dst. It returns the
// number of records written. dst is not closed.
func Drain(ctx context.Context, src Source, dst Sink) (int64, error) {
	var n int64
	for {
		rec, ok, err := src.Next(ctx)
		if err != nil {
			return n, fmt.Errorf("harvest: %w", err)
		}
		if !ok {
			return n, nil
		}
		if err := dst.Write(ctx, rec); err != nil {
			return n, fmt.Errorf("write record %d: %w", n, err)
		}
		n++
	}
}
