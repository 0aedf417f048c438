package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placestore/src/types"
)

func TestLoadData(t *testing.T) {
	s := newTestStore(t, Options{})

	data := "Name\tUser\tLat\tLon\tphone\n" +
		"Sushi Place\tjen@test.com\t37.3882807\t-122.0828559\t12345\n" +
		"Taco Truck\tbob@test.com\t34.0522\t-118.2437\t\n"
	n, err := s.LoadData(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	places, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "Taco Truck", places[0].Name)
	assert.Equal(t, losAngeles, places[0].Location)
	assert.Equal(t, map[string]any{"address": false, "phone": false}, places[0].Meta)

	assert.Equal(t, "Sushi Place", places[1].Name)
	assert.Equal(t, "jen@test.com", places[1].User)
	assert.Equal(t, mountainView, places[1].Location)
	assert.Equal(t, "12345", places[1].Meta["phone"])
}

func TestLoadDataErrors(t *testing.T) {
	s := newTestStore(t, Options{})

	n, err := s.LoadData(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.LoadData(strings.NewReader("name\tuser\tlat\n"))
	require.ErrorContains(t, err, `missing column "lon"`)

	data := "name\tuser\tlat\tlon\n" +
		"ok\tu\t1\t2\n" +
		"bad\tu\tnorth\t2\n" +
		"never\tu\t3\t4\n"
	n, err = s.LoadData(strings.NewReader(data))
	require.ErrorIs(t, err, types.ErrLocationFormat)
	assert.Contains(t, err.Error(), "row 3")
	assert.Equal(t, 1, n)

	_, err = s.LoadData(strings.NewReader("name\tuser\tlat\tlon\n\tu\t1\t2\n"))
	require.ErrorIs(t, err, types.ErrMissingFields)
}
