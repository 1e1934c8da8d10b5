package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/feature-harvester/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type settingsKeyType string

const settingsKey settingsKeyType = "settings"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-pretty":      "log.pretty",
	"user-agent":      "transport.user_agent",
	"timeout":         "transport.timeout",
	"retry-attempts":  "transport.retry_attempts",
	"retry-delay":     "transport.retry_delay",
	"rps":             "transport.rps",
	"burst":           "transport.burst",
	"redis":           "redis.addr",
	"redis-db":        "redis.db",
	"cache-ttl":       "redis.ttl",
	"where":           "harvest.where",
	"batch-width":     "harvest.batch_width",
	"empty-threshold": "harvest.empty_threshold",
	"gap-tolerance":   "harvest.gap_tolerance",
	"search-ceiling":  "harvest.search_ceiling",
	"sink":            "sink.type",
	"out":             "sink.out",
	"dsn":             "postgres.dsn",
	"table":           "postgres.table",
	"create-table":    "postgres.create_table",
	"metrics-addr":    "metrics.addr",
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest complete record sets from ArcGIS-style feature services",
		Long: `harvester walks the object identifier space of a feature-service layer in
fixed-width windows, jumps identifier gaps with a binary search and streams
every matching record exactly once, in identifier order.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(configFile)
			if err != nil {
				return err
			}
			var bindErr error
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if key, ok := flagKeys[f.Name]; ok {
					bindErr = errors.Join(bindErr, v.BindPFlag(key, f))
				}
			})
			if bindErr != nil {
				return fmt.Errorf("bind flags: %w", bindErr)
			}

			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  s.LogLevel,
				Pretty: s.LogPretty,
				Output: cmd.ErrOrStderr(),
			})
			cmd.SetContext(context.WithValue(cmd.Context(), settingsKey, s))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default is ./harvester.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("log-pretty", false, "human-readable console logs")
	pf.String("user-agent", "", "User-Agent header")
	pf.Duration("timeout", 0, "per-attempt request timeout")
	pf.Int("retry-attempts", 0, "attempts per request, first included")
	pf.Duration("retry-delay", 0, "fixed delay between attempts")
	pf.Float64("rps", 0, "requests per second per host (0 = unlimited)")
	pf.Int("burst", 0, "request burst per host")
	pf.String("redis", "", "Redis address for the descriptor cache (empty = no cache)")
	pf.Int("redis-db", 0, "Redis database")
	pf.Duration("cache-ttl", 0, "descriptor cache TTL")
	pf.String("where", "", "where clause (default 1=1)")

	cmd.AddCommand(newHarvestCmd(), newDescribeCmd())
	return cmd
}

func settingsFrom(ctx context.Context) (settings, error) {
	s, ok := ctx.Value(settingsKey).(settings)
	if !ok {
		return settings{}, errors.New("configuration not loaded")
	}
	return s, nil
}
