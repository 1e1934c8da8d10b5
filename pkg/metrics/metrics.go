// Package metrics exposes the harvester's Prometheus metrics.
// All metrics are defined in their respective packages (client, ratelimit,
// spatialref, service, cache, harvest, sink) via promauto and registered
// with the default registry.
//
// This package serves them over HTTP and documents them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Transport Metrics (pkg/client):
//   - harvest_requests_total{endpoint, status} (Counter): Requests by layer path and HTTP status
//   - harvest_request_duration_seconds{endpoint} (Histogram): Duration per GetJSON call, retries included
//   - harvest_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode, cancelled, too_large)
//   - harvest_retries_total{error_class} (Counter): Retry attempts by error class
//   - harvest_retry_exhausted_total{error_class} (Counter): Calls that spent the whole retry budget
//   - harvest_service_errors_total{code} (Counter): Error envelopes by service error code
//
// Pacer Metrics (pkg/ratelimit):
//   - harvest_rate_limit_wait_seconds{host} (Histogram): Time spent waiting for a request token
//
// Spatial Reference Metrics (pkg/spatialref):
//   - harvest_spatialref_resolutions_total{source, result} (Counter): Resolutions by wkid/wkt and ok/error
//
// Probe Metrics (pkg/service):
//   - harvest_metadata_probes_total{result} (Counter): Probes by result (ok, cached, error, unsupported)
//   - harvest_count_probe_failures_total (Counter): Count queries that left the total unknown
//
// Descriptor Cache Metrics (pkg/cache):
//   - harvest_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - harvest_cache_misses_total (Counter): Cache misses
//   - harvest_cache_written_bytes_total{layer="redis"} (Counter): Bytes written to the cache
//   - harvest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Harvest Metrics (pkg/harvest):
//   - harvest_windows_total{kind, result} (Counter): Window queries by kind (full, probe, open_probe)
//   - harvest_gap_jumps_total (Counter): Cursor relocations past gaps
//   - harvest_gap_jump_width (Histogram): Identifiers skipped per jump
//   - harvest_records_emitted_total (Counter): Records emitted
//   - harvest_records_dropped_total (Counter): Records outside their window or out of order
//   - harvest_runs_total{outcome} (Counter): Finished streams (exhausted, total_count, error)
//
// Sink Metrics (pkg/sink):
//   - harvest_sink_writes_total{sink, result} (Counter): Records written by sink
//
// Example Prometheus Queries:
//
//   # Requests per emitted record
//   sum(rate(harvest_requests_total[5m])) / sum(rate(harvest_records_emitted_total[5m]))
//
//   # Empty window share
//   sum(rate(harvest_windows_total{kind="full",result="empty"}[5m])) /
//   sum(rate(harvest_windows_total{kind="full"}[5m]))
//
//   # Retry pressure
//   sum by (error_class) (rate(harvest_retries_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(harvest_request_duration_seconds_bucket[5m]))
