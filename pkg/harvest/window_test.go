package harvest

import (
	"context"
	"testing"

	"github.com/Sternrassler/feature-harvester/internal/testutil"
	"github.com/Sternrassler/feature-harvester/pkg/query"
	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Predicate(t *testing.T) {
	assert.Equal(t, "OBJECTID >= 0 AND OBJECTID < 50", Bounded(0, 50).Predicate("OBJECTID"))
	assert.Equal(t, "FID >= 600", From(600).Predicate("FID"))
	assert.Equal(t, "[0, 50)", Bounded(0, 50).String())
	assert.Equal(t, "[600, +inf)", From(600).String())
}

func TestWindow_Contains(t *testing.T) {
	w := Bounded(10, 20)
	assert.True(t, w.Contains(10))
	assert.True(t, w.Contains(19))
	assert.False(t, w.Contains(20))
	assert.False(t, w.Contains(9))
	assert.True(t, From(10).Contains(1<<50))
}

func TestWindowFetcher_URL(t *testing.T) {
	q := service.Query{LayerURL: "https://host/FeatureServer/0?token=abc", Where: "POP > 5"}
	f := NewWindowFetcher(nil, q, &service.Descriptor{IdentifierField: "OBJECTID"}, zerolog.Nop())

	full, err := f.URL(Bounded(100, 150), true)
	require.NoError(t, err)
	where, _ := query.Get(full, "where")
	assert.Equal(t, "(POP > 5) AND OBJECTID >= 100 AND OBJECTID < 150", where)
	assertParam(t, full, "outFields", "*")
	assertParam(t, full, "returnGeometry", "true")
	assertParam(t, full, "f", "json")
	assertParam(t, full, "token", "abc")

	probe, err := f.URL(From(7), false)
	require.NoError(t, err)
	where, _ = query.Get(probe, "where")
	assert.Equal(t, "(POP > 5) AND OBJECTID >= 7", where)
	assertParam(t, probe, "outFields", "")
	assertParam(t, probe, "returnGeometry", "false")
}

func assertParam(t *testing.T, rawURL, name, want string) {
	t.Helper()
	got, ok := query.Get(rawURL, name)
	require.True(t, ok, "%s missing from %s", name, rawURL)
	assert.Equal(t, want, got, name)
}

func TestWindowFetcher_RequiresIdentifier(t *testing.T) {
	f := NewWindowFetcher(nil, service.Query{LayerURL: "https://host/FeatureServer/0"}, &service.Descriptor{}, zerolog.Nop())
	_, err := f.Fetch(context.Background(), Bounded(0, 50), true)
	var me *service.MissingIdentifierFieldError
	require.ErrorAs(t, err, &me)
}

func TestWindowFetcher_FetchAndExists(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(40, 60)})
	defer fs.Close()

	f := NewWindowFetcher(testGetter(t), service.Query{LayerURL: fs.LayerURL()},
		&service.Descriptor{IdentifierField: "OBJECTID"}, zerolog.Nop())
	ctx := context.Background()

	records, err := f.Fetch(ctx, Bounded(0, 50), true)
	require.NoError(t, err)
	require.Len(t, records, 10)
	id, ok := records[0].Identifier("OBJECTID")
	require.True(t, ok)
	assert.Equal(t, int64(40), id)

	found, err := f.Exists(ctx, Bounded(0, 40))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = f.Exists(ctx, From(59))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = f.Exists(ctx, From(60))
	require.NoError(t, err)
	assert.False(t, found)

	assert.Equal(t, 1, fs.Count(testutil.KindFull))
	assert.Equal(t, 1, fs.Count(testutil.KindProbe))
	assert.Equal(t, 2, fs.Count(testutil.KindOpenProbe))
	assert.Equal(t, 1, f.full)
	assert.Equal(t, 3, f.probes)
}

type staticGetter map[string]any

func (g staticGetter) GetJSON(context.Context, string) (map[string]any, error) {
	return g, nil
}

func TestWindowFetcher_MissingFeatures(t *testing.T) {
	f := NewWindowFetcher(staticGetter{"objectIdFieldName": "OBJECTID"}, service.Query{LayerURL: "https://host/FeatureServer/0"},
		&service.Descriptor{IdentifierField: "OBJECTID"}, zerolog.Nop())
	_, err := f.Fetch(context.Background(), Bounded(0, 50), true)
	assert.EqualError(t, err, "fetch window [0, 50): response has no features array")
}
