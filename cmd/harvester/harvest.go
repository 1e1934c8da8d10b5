package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/feature-harvester/pkg/cache"
	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/harvest"
	"github.com/Sternrassler/feature-harvester/pkg/logging"
	"github.com/Sternrassler/feature-harvester/pkg/metrics"
	"github.com/Sternrassler/feature-harvester/pkg/ratelimit"
	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/Sternrassler/feature-harvester/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest <layer-url>",
		Short: "Stream every record of a layer to a sink",
		Args:  cobra.ExactArgs(1),
		RunE:  runHarvest,
	}

	f := cmd.Flags()
	f.Int64("batch-width", 0, "identifier width of each window")
	f.Int("empty-threshold", 0, "consecutive empty windows before a gap search")
	f.Int64("gap-tolerance", 0, "landing precision of the gap search")
	f.Int64("search-ceiling", 0, "exclusive upper identifier bound of the gap search")
	f.String("sink", "", "ndjson or postgres")
	f.String("out", "", "NDJSON output file, - for stdout")
	f.String("dsn", "", "Postgres connection string")
	f.String("table", "", "Postgres table")
	f.Bool("create-table", false, "create the Postgres table if missing")
	f.String("metrics-addr", "", "serve /metrics on this address while harvesting")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <layer-url>",
		Short: "Probe a layer and print its descriptor as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := settingsFrom(ctx)
			if err != nil {
				return err
			}
			logger := logging.NewLogger("cli")

			engine, closeDeps, err := buildEngine(ctx, s, args[0], logger)
			if err != nil {
				return err
			}
			defer closeDeps()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(engine.Descriptor())
		},
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := settingsFrom(ctx)
	if err != nil {
		return err
	}
	logger := logging.NewLogger("cli")

	if s.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, s.MetricsAddr, logger); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	engine, closeDeps, err := buildEngine(ctx, s, args[0], logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	dst, err := openSink(ctx, s, engine, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	stream := engine.Stream()
	n, drainErr := sink.Drain(ctx, stream, dst)
	if err := dst.Close(ctx); err != nil && drainErr == nil {
		drainErr = fmt.Errorf("close sink: %w", err)
	}

	st := stream.Stats()
	logger.Info().
		Str("layer", args[0]).
		Int64("written", n).
		Int("windows", st.Windows).
		Int("probes", st.Probes).
		Int("gap_jumps", st.GapJumps).
		Msg("Harvest command finished")
	return drainErr
}

// buildEngine wires pacer, transport, optional descriptor cache and probes
// the layer. The returned func releases the cache connection.
func buildEngine(ctx context.Context, s settings, layerURL string, logger zerolog.Logger) (*harvest.Engine, func(), error) {
	closeDeps := func() {}

	ccfg := s.clientConfig()
	ccfg.Limiter = ratelimit.New(ratelimit.Config{RPS: s.RPS, Burst: s.Burst})
	ccfg.Logger = &logger
	c, err := client.New(ccfg)
	if err != nil {
		return nil, closeDeps, fmt.Errorf("create transport client: %w", err)
	}

	hcfg := s.harvestConfig()
	hcfg.Getter = c
	hcfg.Logger = &logger

	if s.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: s.RedisAddr, DB: s.RedisDB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", s.RedisAddr).Msg("Redis unavailable, descriptor cache disabled")
			_ = rc.Close()
		} else {
			hcfg.Store = cache.NewDescriptorStore(cache.NewManager(rc), s.CacheTTL)
			closeDeps = func() { _ = rc.Close() }
		}
	}

	engine, err := harvest.New(ctx, service.Query{LayerURL: layerURL, Where: s.Where}, hcfg)
	if err != nil {
		closeDeps()
		return nil, func() {}, err
	}
	return engine, closeDeps, nil
}

// nopCloser keeps the sink from closing stdout.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func openSink(ctx context.Context, s settings, engine *harvest.Engine, stdout io.Writer) (sink.Sink, error) {
	if s.Sink == "postgres" {
		return sink.NewPostgresSink(ctx, sink.PostgresConfig{
			DSN:             s.DSN,
			Table:           s.Table,
			Layer:           engine.Query().LayerURL,
			IdentifierField: engine.Descriptor().IdentifierField,
			CreateTable:     s.CreateTable,
		})
	}

	var w io.WriteCloser = nopCloser{stdout}
	if s.Out != "" && s.Out != "-" {
		f, err := os.Create(s.Out)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		w = f
	}
	return &fileSink{NDJSONSink: sink.NewNDJSONSink(w), file: w}, nil
}

// fileSink closes the output file after flushing.
type fileSink struct {
	*sink.NDJSONSink
	file io.Closer
}

func (f *fileSink) Close(ctx context.Context) error {
	if err := f.NDJSONSink.Close(ctx); err != nil {
		_ = f.file.Close()
		return err
	}
	return f.file.Close()
}
