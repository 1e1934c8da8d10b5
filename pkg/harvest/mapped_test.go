package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/feature-harvester/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parcel struct {
	ID   int64
	Name string
}

func parcelMapper(rec Record) (parcel, error) {
	id, ok := rec.Identifier("OBJECTID")
	if !ok {
		return parcel{}, errors.New("no identifier")
	}
	name, _ := rec.Attributes()["NAME"].(string)
	return parcel{ID: id, Name: name}, nil
}

func TestMapStream(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(1, 4)})
	defer fs.Close()

	m := MapStream(newEngine(t, fs, "", nil).Stream(), parcelMapper)
	var got []parcel
	for p, err := range m.All(context.Background()) {
		require.NoError(t, err)
		got = append(got, p)
	}
	assert.Equal(t, []parcel{{1, "feature-1"}, {2, "feature-2"}, {3, "feature-3"}}, got)
	assert.True(t, m.Stream().Stats().Done)
}

func TestMapStream_MapperErrorIsSticky(t *testing.T) {
	fs := testutil.NewFeatureService(testutil.FeatureServiceConfig{IDs: testutil.Range(1, 10)})
	defer fs.Close()

	boom := errors.New("bad shape")
	m := MapStream(newEngine(t, fs, "", nil).Stream(), func(rec Record) (parcel, error) {
		p, err := parcelMapper(rec)
		if err == nil && p.ID == 2 {
			return parcel{}, boom
		}
		return p, err
	})

	ctx := context.Background()
	p, ok, err := m.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), p.ID)

	_, ok, err = m.Next(ctx)
	assert.False(t, ok)
	require.ErrorIs(t, err, boom)
	var me *MapError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, int64(2), me.ID)
	assert.Equal(t, "map record 2: bad shape", err.Error())

	_, _, again := m.Next(ctx)
	assert.Same(t, err, again)
}

func TestMapError_WithoutID(t *testing.T) {
	err := &MapError{Err: fmt.Errorf("x")}
	assert.Equal(t, "map record: x", err.Error())
}
