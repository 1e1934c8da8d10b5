package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/feature-harvester/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--retry-delay", "1ms", "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, sc.Err())
	return rows
}

func TestHarvestCommand_Stdout(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{
		IDs: testutil.Concat(testutil.Range(0, 60), testutil.Range(9000, 9010)),
	})
	defer fs.Close()

	out, err := execute(t, "harvest", fs.LayerURL())
	require.NoError(t, err)

	rows := decodeLines(t, out)
	require.Len(t, rows, 70)
	first := rows[0]["attributes"].(map[string]any)
	last := rows[69]["attributes"].(map[string]any)
	assert.Equal(t, float64(0), first["OBJECTID"])
	assert.Equal(t, float64(9009), last["OBJECTID"])
}

func TestHarvestCommand_FileAndFlags(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(0, 35)})
	defer fs.Close()

	path := filepath.Join(t.TempDir(), "out.ndjson")
	out, err := execute(t, "harvest", fs.LayerURL(), "--out", path, "--batch-width", "10", "--where", "NAME <> ''")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, string(data)), 35)
	assert.Equal(t, 4, fs.Count(testutil.KindFull))
	assert.Equal(t, "NAME <> ''", fs.Wheres()[0])
}

func TestDescribeCommand(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(1, 11), WKID: 4326})
	defer fs.Close()

	out, err := execute(t, "describe", fs.LayerURL())
	require.NoError(t, err)

	var desc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	assert.Equal(t, "feature-layer", desc["kind"])
	assert.Equal(t, "OBJECTID", desc["identifier_field"])
	assert.Equal(t, float64(10), desc["total_count"])
	assert.Zero(t, fs.Count(testutil.KindFull))
}

func TestCommands_Errors(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(0, 5)})
	defer fs.Close()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown sink", args: []string{"harvest", fs.LayerURL(), "--sink", "kafka"}, wantErr: `unknown sink "kafka"`},
		{name: "postgres without dsn", args: []string{"harvest", fs.LayerURL(), "--sink", "postgres"}, wantErr: "postgres sink requires --dsn"},
		{name: "bad batch width", args: []string{"harvest", fs.LayerURL(), "--batch-width", "-1"}, wantErr: "batch width must be >= 1"},
		{name: "missing url", args: []string{"harvest"}, wantErr: "accepts 1 arg(s)"},
		{name: "bad url", args: []string{"describe", "ftp://host/layer"}, wantErr: "layer url must be http or https"},
		{name: "missing config file", args: []string{"describe", fs.LayerURL(), "--config", "/nonexistent/harvester.yaml"}, wantErr: "read config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettings_EnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
harvest:
  gap_tolerance: 250
  where: "STATUS = 'open'"
transport:
  retry_delay: 5ms
sink:
  type: ndjson
`), 0o600))

	t.Setenv("HARVESTER_HARVEST_BATCH_WIDTH", "7")

	v, err := newViper(path)
	require.NoError(t, err)
	s, err := loadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, int64(7), s.BatchWidth)
	assert.Equal(t, int64(250), s.GapTolerance)
	assert.Equal(t, "STATUS = 'open'", s.Where)
	assert.Equal(t, 5*time.Millisecond, s.RetryDelay)
	assert.Equal(t, 10, s.EmptyWindows)
	assert.Equal(t, 10, s.RetryAttempts)
	assert.Equal(t, "feature-harvester/0.1.0", s.UserAgent)
}

func TestSettings_Defaults(t *testing.T) {
	v, err := newViper("")
	require.NoError(t, err)
	s, err := loadSettings(v)
	require.NoError(t, err)

	assert.Equal(t, "ndjson", s.Sink)
	assert.Equal(t, "-", s.Out)
	assert.Equal(t, int64(50), s.BatchWidth)
	assert.Equal(t, int64(1073741823), s.SearchCeiling)
	assert.Equal(t, 10*time.Minute, s.CacheTTL)
	assert.Empty(t, s.RedisAddr)
}
