package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/feature-harvester/pkg/client"
	"github.com/Sternrassler/feature-harvester/pkg/harvest"
	"github.com/Sternrassler/feature-harvester/pkg/logging"
	"github.com/spf13/viper"
)

// settings is the resolved CLI configuration.
type settings struct {
	LogLevel  logging.LogLevel
	LogPretty bool

	Where         string
	BatchWidth    int64
	EmptyWindows  int
	GapTolerance  int64
	SearchCeiling int64

	UserAgent     string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RPS           float64
	Burst         int

	RedisAddr string
	RedisDB   int
	CacheTTL  time.Duration

	Sink        string
	Out         string
	DSN         string
	Table       string
	CreateTable bool

	MetricsAddr string
}

// newViper returns a viper instance with defaults, the HARVESTER_ env
// prefix and harvester.yaml search paths.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	harvestDefaults := harvest.DefaultConfig()
	clientDefaults := client.DefaultConfig()

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
	v.SetDefault("harvest.where", "")
	v.SetDefault("harvest.batch_width", harvestDefaults.BatchWidth)
	v.SetDefault("harvest.empty_threshold", harvestDefaults.EmptyWindowThreshold)
	v.SetDefault("harvest.gap_tolerance", harvestDefaults.GapTolerance)
	v.SetDefault("harvest.search_ceiling", harvestDefaults.SearchCeiling)
	v.SetDefault("transport.user_agent", clientDefaults.UserAgent)
	v.SetDefault("transport.timeout", clientDefaults.Timeout)
	v.SetDefault("transport.retry_attempts", clientDefaults.Retry.MaxAttempts)
	v.SetDefault("transport.retry_delay", clientDefaults.Retry.Delay)
	v.SetDefault("transport.rps", 0.0)
	v.SetDefault("transport.burst", 1)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)
	v.SetDefault("sink.type", "ndjson")
	v.SetDefault("sink.out", "-")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "harvested_features")
	v.SetDefault("postgres.create_table", false)
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix("HARVESTER") // e.g. HARVESTER_HARVEST_BATCH_WIDTH=100
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("harvester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/harvester")
		v.AddConfigPath("/etc/harvester/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// loadSettings reads and validates settings from v.
func loadSettings(v *viper.Viper) (settings, error) {
	level, err := logging.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		LogLevel:      level,
		LogPretty:     v.GetBool("log.pretty"),
		Where:         v.GetString("harvest.where"),
		BatchWidth:    v.GetInt64("harvest.batch_width"),
		EmptyWindows:  v.GetInt("harvest.empty_threshold"),
		GapTolerance:  v.GetInt64("harvest.gap_tolerance"),
		SearchCeiling: v.GetInt64("harvest.search_ceiling"),
		UserAgent:     v.GetString("transport.user_agent"),
		Timeout:       v.GetDuration("transport.timeout"),
		RetryAttempts: v.GetInt("transport.retry_attempts"),
		RetryDelay:    v.GetDuration("transport.retry_delay"),
		RPS:           v.GetFloat64("transport.rps"),
		Burst:         v.GetInt("transport.burst"),
		RedisAddr:     v.GetString("redis.addr"),
		RedisDB:       v.GetInt("redis.db"),
		CacheTTL:      v.GetDuration("redis.ttl"),
		Sink:          strings.ToLower(v.GetString("sink.type")),
		Out:           v.GetString("sink.out"),
		DSN:           v.GetString("postgres.dsn"),
		Table:         v.GetString("postgres.table"),
		CreateTable:   v.GetBool("postgres.create_table"),
		MetricsAddr:   v.GetString("metrics.addr"),
	}

	switch s.Sink {
	case "ndjson":
	case "postgres":
		if s.DSN == "" {
			return settings{}, fmt.Errorf("postgres sink requires --dsn")
		}
	default:
		return settings{}, fmt.Errorf("unknown sink %q (want ndjson or postgres)", s.Sink)
	}

	if err := s.harvestConfig().Validate(); err != nil {
		return settings{}, err
	}
	return s, nil
}

func (s settings) harvestConfig() harvest.Config {
	return harvest.Config{
		BatchWidth:           s.BatchWidth,
		EmptyWindowThreshold: s.EmptyWindows,
		GapTolerance:         s.GapTolerance,
		SearchCeiling:        s.SearchCeiling,
	}
}

func (s settings) clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.UserAgent = s.UserAgent
	cfg.Timeout = s.Timeout
	cfg.Retry = client.RetryConfig{MaxAttempts: s.RetryAttempts, Delay: s.RetryDelay}
	return cfg
}
